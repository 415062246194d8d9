// Package table implements the in-memory column-oriented table that every
// pipeline stage produces and consumes, together with the relational
// operations the report transforms are built from (filter, cross join,
// keyed merge, group-by, pivot, concat) and the shared column normalizer.
//
// Tables are treated as immutable values: every operation returns a new
// Table and never mutates its receiver, so a table handed to a downstream
// stage can never change underneath it.
package table

import (
	"fmt"
	"time"
)

// Kind identifies the uniform value type of a column.
type Kind int

const (
	Text Kind = iota
	Int
	Float
	Time
)

// String returns a short human-readable kind name, used in error messages.
func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Int:
		return "int"
	case Float:
		return "float"
	case Time:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column is an ordered sequence of values of a single Kind.
//
// A nil entry in Vals is a null. Non-null entries hold string, int64,
// float64 or time.Time according to Kind. Bits records the logical numeric
// width after downcasting (8, 16, 32 or 64); zero means the width has not
// been determined and 64 is assumed.
type Column struct {
	Name string
	Kind Kind
	Bits int
	Vals []any
}

// Table is an ordered collection of equal-length columns.
type Table struct {
	Cols []Column
}

// New builds a table from the given columns. All columns must have the
// same length; New panics otherwise since that is a programming error,
// not a data error.
func New(cols ...Column) *Table {
	if len(cols) > 1 {
		n := len(cols[0].Vals)
		for _, c := range cols[1:] {
			if len(c.Vals) != n {
				panic(fmt.Sprintf("table: column %q has %d values, want %d", c.Name, len(c.Vals), n))
			}
		}
	}
	return &Table{Cols: cols}
}

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int {
	if len(t.Cols) == 0 {
		return 0
	}
	return len(t.Cols[0].Vals)
}

// NumCols returns the number of columns in the table.
func (t *Table) NumCols() int { return len(t.Cols) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Cols))
	for i, c := range t.Cols {
		names[i] = c.Name
	}
	return names
}

// Col returns the column with the given name, or false if absent.
// The returned pointer aliases the table and must not be mutated.
func (t *Table) Col(name string) (*Column, bool) {
	for i := range t.Cols {
		if t.Cols[i].Name == name {
			return &t.Cols[i], true
		}
	}
	return nil, false
}

// HasCol reports whether a column with the given name exists.
func (t *Table) HasCol(name string) bool {
	_, ok := t.Col(name)
	return ok
}

// colIndex returns the position of a column, or -1.
func (t *Table) colIndex(name string) int {
	for i := range t.Cols {
		if t.Cols[i].Name == name {
			return i
		}
	}
	return -1
}

// Row is a read-only view of one table row.
type Row struct {
	t *Table
	i int
}

// Row returns a view of row i.
func (t *Table) Row(i int) Row { return Row{t: t, i: i} }

// Val returns the raw value at the named column, nil for nulls.
// Missing columns also read as nil so predicates stay total.
func (r Row) Val(name string) any {
	c, ok := r.t.Col(name)
	if !ok {
		return nil
	}
	return c.Vals[r.i]
}

// IsNull reports whether the named column is null at this row.
func (r Row) IsNull(name string) bool { return r.Val(name) == nil }

// Float reads the named column as float64. Ints are widened, nulls and
// non-numeric values read as 0.
func (r Row) Float(name string) float64 {
	switch v := r.Val(name).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Int reads the named column as int64. Floats are truncated, nulls and
// non-numeric values read as 0.
func (r Row) Int(name string) int64 {
	switch v := r.Val(name).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Str reads the named column as a string; nulls read as "".
func (r Row) Str(name string) string {
	if v, ok := r.Val(name).(string); ok {
		return v
	}
	return ""
}

// Time reads the named column as a time.Time; nulls read as the zero time.
func (r Row) Time(name string) time.Time {
	if v, ok := r.Val(name).(time.Time); ok {
		return v
	}
	return time.Time{}
}

// clone returns a deep copy of the table's column slice headers and value
// slices. Values themselves are immutable scalars and are shared.
func (t *Table) clone() *Table {
	cols := make([]Column, len(t.Cols))
	for i, c := range t.Cols {
		vals := make([]any, len(c.Vals))
		copy(vals, c.Vals)
		cols[i] = Column{Name: c.Name, Kind: c.Kind, Bits: c.Bits, Vals: vals}
	}
	return &Table{Cols: cols}
}

// emptyLike returns a zero-row table with the same column layout.
func (t *Table) emptyLike() *Table {
	cols := make([]Column, len(t.Cols))
	for i, c := range t.Cols {
		cols[i] = Column{Name: c.Name, Kind: c.Kind, Bits: c.Bits}
	}
	return &Table{Cols: cols}
}
