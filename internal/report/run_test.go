package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ruptura/internal/category"
	"ruptura/internal/table"
)

// fetcherStub implements category.Fetcher with a fixed category set.
type fetcherStub struct{ calls int }

func (f *fetcherStub) Fetch(ctx context.Context) (*table.Table, error) {
	f.calls++
	return table.New(
		table.Column{Name: "prme_cd_produto", Kind: table.Int, Vals: []any{int64(10), int64(12)}},
		table.Column{Name: "descprod", Kind: table.Text, Vals: []any{"pao", "cafe"}},
		table.Column{Name: "nivel1", Kind: table.Text, Vals: []any{"mercearia", "mercearia"}},
		table.Column{Name: "nivel2", Kind: table.Text, Vals: []any{"padaria", "bebidas"}},
		table.Column{Name: "nivel3", Kind: table.Text, Vals: []any{"paes", "cafes"}},
		table.Column{Name: "nivel4", Kind: table.Text, Vals: []any{"frances", "torrado"}},
	), nil
}

func newTestRunner(t *testing.T, src Source) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	cache := category.NewCache(filepath.Join(dir, "categ.parquet"), &fetcherStub{})
	r := NewRunner(NewTransformer(src), cache, NewExporter(dir), nil)
	r.Now = func() time.Time { return testDate }
	return r, dir
}

func collectEvents() (EventFunc, *[]Event) {
	var events []Event
	return func(ev Event) { events = append(events, ev) }, &events
}

func TestRunner_Run_Ruptura(t *testing.T) {
	src := &fakeSource{tables: map[string]map[string]*table.Table{
		"lojas/loja1.db": storeTables(),
		"lojas/loja2.db": storeTables(),
	}}
	runner, dir := newTestRunner(t, src)
	emit, events := collectEvents()

	got, err := runner.Run(context.Background(), Request{
		Kind:   KindRuptura,
		Files:  []string{"lojas/loja1.db", "lojas/loja2.db"},
		Format: FormatCSV,
	}, emit)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.NumRows() != 2 {
		t.Errorf("consolidated rows = %d, want one per store", got.NumRows())
	}

	// File progress starts at index 2, the final event follows the last file.
	wantMsgs := []string{
		"Transformando, lojas/loja1.db",
		"Transformando, lojas/loja2.db",
		"Ruptura Consolidada: Ruptura_02032024_103000.csv",
	}
	if len(*events) != len(wantMsgs) {
		t.Fatalf("got %d events, want %d: %+v", len(*events), len(wantMsgs), *events)
	}
	for i, want := range wantMsgs {
		ev := (*events)[i]
		if ev.Message != want {
			t.Errorf("event %d message = %q, want %q", i, ev.Message, want)
		}
		if ev.Index != i+2 {
			t.Errorf("event %d index = %d, want %d", i, ev.Index, i+2)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "Ruptura_02032024_103000.csv")); err != nil {
		t.Errorf("report file missing: %v", err)
	}
}

func TestRunner_Run_SkipsFailedFiles(t *testing.T) {
	src := &fakeSource{
		tables: map[string]map[string]*table.Table{
			"loja1.db": storeTables(),
			"loja3.db": storeTables(),
		},
		errs: map[string]error{"loja2.db": fmt.Errorf("file corrupted")},
	}
	runner, _ := newTestRunner(t, src)
	emit, events := collectEvents()

	got, err := runner.Run(context.Background(), Request{
		Kind:   KindRuptura,
		Files:  []string{"loja1.db", "loja2.db", "loja3.db"},
		Format: FormatCSV,
	}, emit)
	if err != nil {
		t.Fatalf("Run() error = %v, want failed file skipped", err)
	}
	if got.NumRows() != 2 {
		t.Errorf("consolidated rows = %d, want 2 surviving stores", got.NumRows())
	}

	// The failed file keeps its index in the event sequence.
	if msg := (*events)[1].Message; msg != "Error, loja2.db" {
		t.Errorf("failed-file message = %q, want %q", msg, "Error, loja2.db")
	}
	if idx := (*events)[1].Index; idx != 3 {
		t.Errorf("failed-file index = %d, want 3", idx)
	}
	final := (*events)[len(*events)-1]
	if final.Index != 5 {
		t.Errorf("final index = %d, want 5", final.Index)
	}
}

func TestRunner_Run_AllFilesFail(t *testing.T) {
	src := &fakeSource{errs: map[string]error{
		"loja1.db": fmt.Errorf("corrupted"),
		"loja2.db": fmt.Errorf("corrupted"),
	}}
	runner, dir := newTestRunner(t, src)
	emit, events := collectEvents()

	_, err := runner.Run(context.Background(), Request{
		Kind:   KindRuptura,
		Files:  []string{"loja1.db", "loja2.db"},
		Format: FormatCSV,
	}, emit)

	var exhausted *BatchExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want *BatchExhaustedError", err)
	}
	if got, want := err.Error(), "all listed databases failed"; got != want {
		t.Errorf("error message = %q, want %q", got, want)
	}
	// No consolidation event, no file written.
	for _, ev := range *events {
		if strings.Contains(ev.Message, "Consolidada") {
			t.Errorf("consolidation event emitted after total failure: %q", ev.Message)
		}
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "Ruptura_") {
			t.Errorf("report file written after total failure: %s", e.Name())
		}
	}
}

func TestRunner_Run_Produto(t *testing.T) {
	src := &fakeSource{tables: map[string]map[string]*table.Table{
		"loja1.db": storeTables(),
	}}
	runner, dir := newTestRunner(t, src)
	emit, events := collectEvents()

	got, err := runner.Run(context.Background(), Request{
		Kind:   KindProdutos,
		Files:  []string{"loja1.db"},
		Format: FormatCSV,
	}, emit)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The category step is event index 1; the cache is absent, so it is a
	// download, not a load.
	first := (*events)[0]
	if first.Index != 1 || first.Message != "Download Base Categoria" {
		t.Errorf("first event = %d %q, want 1 %q", first.Index, first.Message, "Download Base Categoria")
	}
	final := (*events)[len(*events)-1]
	if want := "Produtos Consolidado: Produtos_02032024_103000.csv"; final.Message != want {
		t.Errorf("final message = %q, want %q", final.Message, want)
	}

	// Product 10 is in the category set, so the inner merge keeps it and
	// carries the hierarchy columns.
	if got.NumRows() != 1 {
		t.Fatalf("rows = %d, want 1", got.NumRows())
	}
	r := got.Row(0)
	if r.Str("nivel1") != "mercearia" || r.Str("descprod") != "pao" {
		t.Errorf("category columns = %q/%q", r.Str("descprod"), r.Str("nivel1"))
	}

	if _, err := os.Stat(filepath.Join(dir, "Produtos_02032024_103000.csv")); err != nil {
		t.Errorf("report file missing: %v", err)
	}
}

func TestRunner_Run_ProdutoCategoryFailureIsFatal(t *testing.T) {
	src := &fakeSource{tables: map[string]map[string]*table.Table{"loja1.db": storeTables()}}
	dir := t.TempDir()
	cache := category.NewCache(filepath.Join(dir, "categ.parquet"), failingFetcher{})
	runner := NewRunner(NewTransformer(src), cache, NewExporter(dir), nil)
	runner.Now = func() time.Time { return testDate }

	_, err := runner.Run(context.Background(), Request{
		Kind:   KindProdutos,
		Files:  []string{"loja1.db"},
		Format: FormatCSV,
	}, nil)

	var rqErr *category.RemoteQueryError
	if !errors.As(err, &rqErr) {
		t.Fatalf("error = %v, want *RemoteQueryError", err)
	}
}

type failingFetcher struct{}

func (failingFetcher) Fetch(ctx context.Context) (*table.Table, error) {
	return nil, fmt.Errorf("athena unreachable")
}

func TestKindAndFormat(t *testing.T) {
	if !KindProdutos.Valid() || !KindRuptura.Valid() || Kind("x").Valid() {
		t.Error("Kind.Valid mismatch")
	}
	if !FormatCSV.Valid() || !FormatXLSX.Valid() || !FormatParquet.Valid() || Format("pdf").Valid() {
		t.Error("Format.Valid mismatch")
	}
	if FormatXLSX.Ext() != "xlsx" {
		t.Errorf("Ext = %q", FormatXLSX.Ext())
	}
}
