package report

// run.go is the batch orchestrator: a fold over the input files producing
// (successes, failures). Per-file failures become logged skips — no single
// file ever aborts the batch — and only an empty success set is fatal.

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"ruptura/internal/category"
	"ruptura/internal/table"
)

// Kind selects the report family. Its value is also the file-name prefix of
// the exported report.
type Kind string

const (
	KindProdutos Kind = "Produtos"
	KindRuptura  Kind = "Ruptura"
)

// Valid reports whether k names a known report family.
func (k Kind) Valid() bool { return k == KindProdutos || k == KindRuptura }

// Format selects the export encoding.
type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// Valid reports whether f names a known export format.
func (f Format) Valid() bool {
	return f == FormatXLSX || f == FormatCSV || f == FormatParquet
}

// Ext returns the file extension for the format.
func (f Format) Ext() string { return string(f) }

// BatchExhaustedError reports that every input file of a run failed. It is
// fatal and surfaced to the caller; nothing is exported.
type BatchExhaustedError struct{}

func (e *BatchExhaustedError) Error() string { return "all listed databases failed" }

// Request describes one orchestrator run.
type Request struct {
	Kind   Kind
	Files  []string
	Format Format
}

// Runner executes report batches. One Run call is internally sequential;
// hosting it off the interactive path is the worker pool's job.
type Runner struct {
	Transformer *Transformer
	Categories  *category.Cache
	Exporter    *Exporter
	Log         *slog.Logger

	// Now is the clock stamped into export file names; tests override it.
	Now func() time.Time
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(t *Transformer, c *category.Cache, e *Exporter, log *slog.Logger) *Runner {
	return &Runner{Transformer: t, Categories: c, Exporter: e, Log: log, Now: time.Now}
}

func (r *Runner) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// Run executes one batch: category refresh (product flow only), the
// per-file transform fold, consolidation, the category merge, and export.
// Events are emitted with strictly increasing indices; index 1 is the
// category step, files follow from 2, and the final export event has the
// highest index. Returns the consolidated table.
func (r *Runner) Run(ctx context.Context, req Request, emit EventFunc) (*table.Table, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	log := r.logger()

	var categ *table.Table
	if req.Kind == KindProdutos {
		if r.Categories.Stale() {
			emit(Event{Type: EventProgress, Index: 1, Message: "Download Base Categoria"})
		} else {
			emit(Event{Type: EventProgress, Index: 1, Message: "Load Base Categoria"})
		}
		var err error
		categ, err = r.Categories.Categories(ctx)
		if err != nil {
			return nil, err
		}
	}

	var parts []*table.Table
	index := 1
	for i, file := range req.Files {
		index = i + 2
		short := shortPath(file)

		tbl, err := r.transform(ctx, req.Kind, file)
		if err != nil {
			emit(Event{Type: EventProgress, Index: index, Message: "Error, " + short})
			log.Warn("transform failed", "file", file, "error", err)
			continue
		}
		parts = append(parts, tbl)
		emit(Event{Type: EventProgress, Index: index, Message: "Transformando, " + short})
	}

	if len(parts) == 0 {
		err := &BatchExhaustedError{}
		log.Warn(err.Error())
		return nil, err
	}

	consolidated := table.Concat(parts...)
	if req.Kind == KindProdutos {
		consolidated = consolidated.
			SortColumns(vendasLast).
			FillZero().
			CastInt32Where(IsMonthColumn).
			CastInt64("prme_cd_produto").
			InnerJoin(categ, "prme_cd_produto")
	}

	name := fmt.Sprintf("%s_%s.%s", req.Kind, r.Now().Format("02012006_150405"), req.Format.Ext())
	emit(Event{Type: EventProgress, Index: index + 1, Message: consolidatedMessage(req.Kind, name)})

	path, err := r.Exporter.Write(consolidated, name, req.Format)
	if err != nil {
		return nil, err
	}
	log.Info("report written", "path", path, "rows", consolidated.NumRows())

	return consolidated, nil
}

func (r *Runner) transform(ctx context.Context, kind Kind, file string) (*table.Table, error) {
	switch kind {
	case KindProdutos:
		return r.Transformer.Produto(ctx, file)
	case KindRuptura:
		return r.Transformer.Ruptura(ctx, file)
	default:
		return nil, fmt.Errorf("unknown report kind %q", kind)
	}
}

func consolidatedMessage(kind Kind, name string) string {
	if kind == KindRuptura {
		return "Ruptura Consolidada: " + name
	}
	return "Produtos Consolidado: " + name
}

// shortPath returns the last two path components, the way per-file progress
// and log lines identify a store file.
func shortPath(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, "/")
}
