package extract

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ruptura/internal/table"
)

// createStoreFile writes a minimal store database with the given schema and
// rows into dir and returns its path.
func createStoreFile(t *testing.T, dir, name string, stmts ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return path
}

func TestExtractor_Table(t *testing.T) {
	path := createStoreFile(t, t.TempDir(), "store.db",
		`CREATE TABLE PRODUTO_MESTRE (
			PRME_CD_PRODUTO INTEGER,
			DESCRICAO TEXT,
			PRFI_VL_CMPG TEXT,
			VAZIA TEXT
		)`,
		`INSERT INTO PRODUTO_MESTRE VALUES (10, 'pão francês', '2.50', NULL)`,
		`INSERT INTO PRODUTO_MESTRE VALUES (11, 'leite', '4.00', NULL)`,
	)

	got, err := New().Table(context.Background(), path, "PRODUTO_MESTRE", Options{
		FloatCols: []string{"PRFI_VL_CMPG"},
	})
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}

	if got.NumRows() != 2 {
		t.Fatalf("NumRows = %d, want 2", got.NumRows())
	}
	// Names are normalized, the all-null column is gone.
	if !got.HasCol("prme_cd_produto") || !got.HasCol("descricao") {
		t.Fatalf("normalized columns missing, have %v", got.Names())
	}
	if got.HasCol("vazia") {
		t.Error("all-null column survived extraction")
	}
	// Text price came back as float.
	c, _ := got.Col("prfi_vl_cmpg")
	if c.Kind != table.Float {
		t.Fatalf("prfi_vl_cmpg kind = %v, want float", c.Kind)
	}
	if got.Row(0).Float("prfi_vl_cmpg") != 2.5 {
		t.Errorf("price = %v, want 2.5", got.Row(0).Float("prfi_vl_cmpg"))
	}
	// Text values are diacritic-stripped.
	if s := got.Row(0).Str("descricao"); s != "pao frances" {
		t.Errorf("descricao = %q, want %q", s, "pao frances")
	}
}

func TestExtractor_Table_ParsesDayFirstDates(t *testing.T) {
	path := createStoreFile(t, t.TempDir(), "store.db",
		`CREATE TABLE PARAMETRO_GERAL (PAGE_CD_FILIAL INTEGER, PAGE_DH_INCLUSAO TEXT)`,
		`INSERT INTO PARAMETRO_GERAL VALUES (5, '02/03/2024 10:30:00')`,
	)

	got, err := New().Table(context.Background(), path, "PARAMETRO_GERAL", Options{
		DateCols: []DateSpec{{Name: "PAGE_DH_INCLUSAO", DayFirst: true}},
	})
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}

	want := time.Date(2024, 3, 2, 10, 30, 0, 0, time.UTC)
	if ts := got.Row(0).Time("page_dh_inclusao"); !ts.Equal(want) {
		t.Errorf("date = %v, want day-first %v", ts, want)
	}
}

func TestExtractor_Table_MissingTable(t *testing.T) {
	path := createStoreFile(t, t.TempDir(), "store.db",
		`CREATE TABLE OUTRA (X INTEGER)`,
	)

	_, err := New().Table(context.Background(), path, "KARDEX_FILIAL", Options{})
	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("error = %v, want *ExtractionError", err)
	}
	if exErr.Path != path || exErr.Table != "KARDEX_FILIAL" {
		t.Errorf("error context = %q/%q, want path and table", exErr.Path, exErr.Table)
	}
}

func TestExtractor_Table_RejectsBadName(t *testing.T) {
	_, err := New().Table(context.Background(), "x.db", `KARDEX"; DROP TABLE Y`, Options{})
	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("error = %v, want *ExtractionError", err)
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "loja2")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		filepath.Join(dir, "b.db"),
		filepath.Join(dir, "a.DB"),
		filepath.Join(sub, "c.db"),
		filepath.Join(dir, "skip.txt"),
	} {
		if err := os.WriteFile(name, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ScanDir(dir, ".db")
	if err != nil {
		t.Fatalf("ScanDir() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("found %d files, want 3: %v", len(got), got)
	}
	// Sorted, recursive, extension matched case-insensitively.
	if filepath.Base(got[0]) != "a.DB" {
		t.Errorf("first = %s, want a.DB", got[0])
	}
	if filepath.Base(got[len(got)-1]) != "c.db" {
		t.Errorf("last = %s, want nested c.db", got[len(got)-1])
	}
}
