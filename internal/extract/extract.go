// Package extract opens one legacy per-store database file at a time and
// turns a full-table scan into a normalized in-memory table.
//
// The store files are self-contained SQLite databases. Each extraction opens
// its own scoped connection and releases it on every exit path, so a failing
// file never leaks a handle into the processing of the next one.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ruptura/internal/table"
)

// ExtractionError reports that a single input file could not be read or did
// not contain the requested table. It carries the file path so the batch
// loop can log the skip with full context.
type ExtractionError struct {
	Path  string
	Table string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s from %s: %v", e.Table, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// DateSpec names a column to be parsed as a date, and whether day-first
// layouts apply.
type DateSpec struct {
	Name     string
	DayFirst bool
}

// Options adjusts how a scanned table is typed before normalization.
type Options struct {
	// FloatCols are columns force-cast to floating point.
	FloatCols []string
	// DateCols are columns parsed into timestamps.
	DateCols []DateSpec
}

// tableNameRe matches the fixed legacy table identifiers. The table name is
// interpolated into the scan statement, so anything else is rejected.
var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Extractor reads tables out of legacy store files.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor { return &Extractor{} }

// Table scans the named table from the store file at path, applies the
// requested casts and date parses, and returns the normalized result.
// All failures come back as *ExtractionError.
func (e *Extractor) Table(ctx context.Context, path, tableName string, opts Options) (*table.Table, error) {
	t, err := e.scan(ctx, path, tableName)
	if err != nil {
		return nil, &ExtractionError{Path: path, Table: tableName, Err: err}
	}

	for _, name := range opts.FloatCols {
		if t, err = castFloat(t, name); err != nil {
			return nil, &ExtractionError{Path: path, Table: tableName, Err: err}
		}
	}
	for _, spec := range opts.DateCols {
		if t, err = parseDates(t, spec); err != nil {
			return nil, &ExtractionError{Path: path, Table: tableName, Err: err}
		}
	}

	return table.Normalize(t), nil
}

// scan opens a scoped connection, runs the full-table scan and drains the
// result. The connection is released unconditionally before returning.
func (e *Extractor) scan(ctx context.Context, path, tableName string) (*table.Table, error) {
	if !tableNameRe.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open store file: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT * FROM "`+tableName+`"`)
	if err != nil {
		return nil, fmt.Errorf("scan table: %w", err)
	}
	defer rows.Close()

	return table.FromRows(rows)
}

// castFloat forces the named column (matched case-insensitively, since
// option names use the source schema's casing) to floating point.
func castFloat(t *table.Table, name string) (*table.Table, error) {
	idx := findCol(t, name)
	if idx < 0 {
		return nil, fmt.Errorf("cast column %q to float: column not found", name)
	}
	src := t.Cols[idx]

	vals := make([]any, len(src.Vals))
	for i, v := range src.Vals {
		switch n := v.(type) {
		case nil:
			vals[i] = nil
		case float64:
			vals[i] = n
		case int64:
			vals[i] = float64(n)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, fmt.Errorf("cast column %q to float: %w", name, err)
			}
			vals[i] = f
		default:
			return nil, fmt.Errorf("cast column %q to float: unsupported value %v", name, v)
		}
	}

	out := t.Select(t.Names()...)
	out.Cols[idx] = table.Column{Name: src.Name, Kind: table.Float, Vals: vals}
	return out, nil
}

// Date layouts split by day-first convention. The legacy stores write
// timestamps either ISO-style or in the Brazilian day-first form.
var (
	dayFirstLayouts = []string{
		"02/01/2006 15:04:05", "02/01/2006 15:04", "02/01/2006",
		"02-01-2006 15:04:05", "02-01-2006",
	}
	isoLayouts = []string{
		"2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00", "2006-01-02",
		"01/02/2006 15:04:05", "01/02/2006",
	}
)

// parseDates converts the named column into timestamps.
func parseDates(t *table.Table, spec DateSpec) (*table.Table, error) {
	idx := findCol(t, spec.Name)
	if idx < 0 {
		return nil, fmt.Errorf("parse dates in %q: column not found", spec.Name)
	}
	src := t.Cols[idx]

	layouts := isoLayouts
	if spec.DayFirst {
		layouts = append(append([]string{}, dayFirstLayouts...), isoLayouts...)
	}

	vals := make([]any, len(src.Vals))
	for i, v := range src.Vals {
		switch n := v.(type) {
		case nil:
			vals[i] = nil
		case time.Time:
			vals[i] = n
		case string:
			ts, err := parseDate(strings.TrimSpace(n), layouts)
			if err != nil {
				return nil, fmt.Errorf("parse dates in %q: %w", spec.Name, err)
			}
			vals[i] = ts
		default:
			return nil, fmt.Errorf("parse dates in %q: unsupported value %v", spec.Name, v)
		}
	}

	out := t.Select(t.Names()...)
	out.Cols[idx] = table.Column{Name: src.Name, Kind: table.Time, Vals: vals}
	return out, nil
}

func parseDate(s string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// findCol locates a column by source-schema name, case-insensitively.
func findCol(t *table.Table, name string) int {
	for i, n := range t.Names() {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}
