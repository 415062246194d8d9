package table

// ops.go implements the relational operations the report transforms are
// composed of. Every operation returns a new Table; receivers are never
// mutated. The "cross join then filter" stages in the transforms rely on
// CrossJoin and Filter being separate, explicit steps.

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := t.emptyLike()
	for i := 0; i < t.NumRows(); i++ {
		if !keep(t.Row(i)) {
			continue
		}
		for c := range t.Cols {
			out.Cols[c].Vals = append(out.Cols[c].Vals, t.Cols[c].Vals[i])
		}
	}
	return out
}

// Assign returns a table with the named column computed row-wise from the
// receiver. An existing column is replaced in place (keeping its position);
// otherwise the column is appended. f may return nil to produce a null.
func (t *Table) Assign(name string, kind Kind, f func(Row) any) *Table {
	vals := make([]any, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		vals[i] = f(t.Row(i))
	}
	out := t.clone()
	col := Column{Name: name, Kind: kind, Vals: vals}
	if idx := out.colIndex(name); idx >= 0 {
		out.Cols[idx] = col
	} else {
		out.Cols = append(out.Cols, col)
	}
	return out
}

// Select returns a table holding only the named columns, in the given order.
// Unknown names are ignored.
func (t *Table) Select(names ...string) *Table {
	out := &Table{}
	for _, name := range names {
		if idx := t.colIndex(name); idx >= 0 {
			c := t.Cols[idx]
			vals := make([]any, len(c.Vals))
			copy(vals, c.Vals)
			out.Cols = append(out.Cols, Column{Name: c.Name, Kind: c.Kind, Bits: c.Bits, Vals: vals})
		}
	}
	return out
}

// Rename returns a table with column old renamed to new.
func (t *Table) Rename(old, new string) *Table {
	out := t.clone()
	if idx := out.colIndex(old); idx >= 0 {
		out.Cols[idx].Name = new
	}
	return out
}

// CrossJoin returns the cartesian product of the receiver and other.
// Column names are assumed disjoint between the two tables.
func (t *Table) CrossJoin(other *Table) *Table {
	ln, rn := t.NumRows(), other.NumRows()
	out := &Table{}
	for _, c := range t.Cols {
		vals := make([]any, 0, ln*rn)
		for i := 0; i < ln; i++ {
			for j := 0; j < rn; j++ {
				vals = append(vals, c.Vals[i])
			}
		}
		out.Cols = append(out.Cols, Column{Name: c.Name, Kind: c.Kind, Bits: c.Bits, Vals: vals})
	}
	for _, c := range other.Cols {
		vals := make([]any, 0, ln*rn)
		for i := 0; i < ln; i++ {
			vals = append(vals, c.Vals...)
		}
		out.Cols = append(out.Cols, Column{Name: c.Name, Kind: c.Kind, Bits: c.Bits, Vals: vals})
	}
	return out
}

// joinKey maps a value to a canonical comparable key so that integer-typed
// and float-typed representations of the same code match up across tables.
func joinKey(v any) any {
	if f, ok := v.(float64); ok {
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return int64(f)
		}
	}
	return v
}

// LeftJoin merges other onto the receiver by equality on the key column.
// Every left row appears at least once; unmatched rows carry nulls in the
// columns contributed by other. Matching right rows multiply the left row,
// and the key column itself is taken from the left side only.
func (t *Table) LeftJoin(other *Table, key string) *Table {
	return t.join(other, key, true)
}

// InnerJoin merges other onto the receiver by equality on the key column,
// keeping only left rows with at least one match.
func (t *Table) InnerJoin(other *Table, key string) *Table {
	return t.join(other, key, false)
}

func (t *Table) join(other *Table, key string, keepUnmatched bool) *Table {
	rightIdx := make(map[any][]int)
	if kc, ok := other.Col(key); ok {
		for i, v := range kc.Vals {
			if v == nil {
				continue
			}
			k := joinKey(v)
			rightIdx[k] = append(rightIdx[k], i)
		}
	}

	out := &Table{}
	for _, c := range t.Cols {
		out.Cols = append(out.Cols, Column{Name: c.Name, Kind: c.Kind, Bits: c.Bits})
	}
	var rightCols []int
	for i, c := range other.Cols {
		if c.Name == key {
			continue
		}
		rightCols = append(rightCols, i)
		out.Cols = append(out.Cols, Column{Name: c.Name, Kind: c.Kind, Bits: c.Bits})
	}

	leftKey, _ := t.Col(key)
	appendRow := func(li, ri int) {
		for c := range t.Cols {
			out.Cols[c].Vals = append(out.Cols[c].Vals, t.Cols[c].Vals[li])
		}
		for n, rc := range rightCols {
			oc := len(t.Cols) + n
			if ri < 0 {
				out.Cols[oc].Vals = append(out.Cols[oc].Vals, nil)
			} else {
				out.Cols[oc].Vals = append(out.Cols[oc].Vals, other.Cols[rc].Vals[ri])
			}
		}
	}

	for i := 0; i < t.NumRows(); i++ {
		var matches []int
		if leftKey != nil && leftKey.Vals[i] != nil {
			matches = rightIdx[joinKey(leftKey.Vals[i])]
		}
		if len(matches) == 0 {
			if keepUnmatched {
				appendRow(i, -1)
			}
			continue
		}
		for _, ri := range matches {
			appendRow(i, ri)
		}
	}
	return out
}

// compareVals orders two values of the same logical column: nulls first,
// then by numeric, lexical or chronological order.
func compareVals(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch av := a.(type) {
	case string:
		return strings.Compare(av, b.(string))
	case time.Time:
		bt := b.(time.Time)
		switch {
		case av.Before(bt):
			return -1
		case av.After(bt):
			return 1
		default:
			return 0
		}
	default:
		af, bf := asFloat(a), asFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

// SortBy returns the table with rows stably sorted ascending by the named
// columns, in priority order.
func (t *Table) SortBy(names ...string) *Table {
	order := make([]int, t.NumRows())
	for i := range order {
		order[i] = i
	}
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		if c, ok := t.Col(n); ok {
			cols = append(cols, c)
		}
	}
	sort.SliceStable(order, func(x, y int) bool {
		for _, c := range cols {
			if cmp := compareVals(c.Vals[order[x]], c.Vals[order[y]]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})

	out := t.emptyLike()
	for c := range t.Cols {
		vals := make([]any, len(order))
		for i, idx := range order {
			vals[i] = t.Cols[c].Vals[idx]
		}
		out.Cols[c].Vals = vals
	}
	return out
}

// SortColumns returns the table with columns stably reordered by ascending
// key value; columns with equal keys keep their relative order. This mirrors
// the "vendas sorts last" reordering in the product report.
func (t *Table) SortColumns(key func(name string) int) *Table {
	out := t.clone()
	sort.SliceStable(out.Cols, func(i, j int) bool {
		return key(out.Cols[i].Name) < key(out.Cols[j].Name)
	})
	return out
}

// AggFn identifies a group-by aggregation.
type AggFn int

const (
	// Sum adds the non-null values of the source column; all-null groups
	// sum to zero.
	Sum AggFn = iota
	// CountNonNull counts the non-null values of the source column.
	CountNonNull
)

// Agg describes one aggregated output column of a GroupBy.
type Agg struct {
	Col string // source column
	As  string // output column name
	Fn  AggFn
}

// GroupBy groups rows by the key columns and computes the given aggregates.
// The result has one row per distinct key tuple, sorted ascending by the
// keys, with the key columns first followed by the aggregate columns.
func (t *Table) GroupBy(keys []string, aggs []Agg) *Table {
	type group struct {
		keyVals []any
		rows    []int
	}
	byKey := make(map[string]*group)
	var groups []*group

	keyCols := make([]*Column, len(keys))
	for i, k := range keys {
		keyCols[i], _ = t.Col(k)
	}

	for i := 0; i < t.NumRows(); i++ {
		var sb strings.Builder
		kv := make([]any, len(keys))
		for ki, kc := range keyCols {
			var v any
			if kc != nil {
				v = kc.Vals[i]
			}
			kv[ki] = v
			sb.WriteString(encodeKeyPart(v))
			sb.WriteByte(0x1f)
		}
		ks := sb.String()
		g, ok := byKey[ks]
		if !ok {
			g = &group{keyVals: kv}
			byKey[ks] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, i)
	}

	sort.SliceStable(groups, func(x, y int) bool {
		for ki := range keys {
			if cmp := compareVals(groups[x].keyVals[ki], groups[y].keyVals[ki]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})

	out := &Table{}
	for i, k := range keys {
		col := Column{Name: k, Kind: Text}
		if keyCols[i] != nil {
			col.Kind = keyCols[i].Kind
			col.Bits = keyCols[i].Bits
		}
		for _, g := range groups {
			col.Vals = append(col.Vals, g.keyVals[i])
		}
		out.Cols = append(out.Cols, col)
	}
	for _, a := range aggs {
		src, _ := t.Col(a.Col)
		col := Column{Name: a.As}
		switch a.Fn {
		case CountNonNull:
			col.Kind = Int
		default:
			col.Kind = Float
			if src != nil && src.Kind == Int {
				col.Kind = Int
			}
		}
		for _, g := range groups {
			col.Vals = append(col.Vals, aggregate(src, g.rows, a.Fn, col.Kind))
		}
		out.Cols = append(out.Cols, col)
	}
	return out
}

func aggregate(src *Column, rows []int, fn AggFn, kind Kind) any {
	switch fn {
	case CountNonNull:
		var n int64
		if src != nil {
			for _, i := range rows {
				if src.Vals[i] != nil {
					n++
				}
			}
		}
		return n
	default:
		var sum float64
		if src != nil {
			for _, i := range rows {
				if src.Vals[i] != nil {
					sum += asFloat(src.Vals[i])
				}
			}
		}
		if kind == Int {
			return int64(sum)
		}
		return sum
	}
}

func encodeKeyPart(v any) string {
	switch n := v.(type) {
	case nil:
		return "\x00"
	case string:
		return "s" + n
	case int64:
		return "i" + strconv.FormatInt(n, 10)
	case float64:
		return "f" + strconv.FormatFloat(n, 'g', -1, 64)
	case time.Time:
		return "t" + n.UTC().Format(time.RFC3339Nano)
	default:
		return "?"
	}
}

// Pivot spreads the distinct values of the column argument into new columns,
// one per value sorted ascending, filling each cell with the sum of the
// value column over the matching (index tuple, column value) rows and fill
// for combinations that never occur. Index columns come first in the result,
// one row per distinct index tuple sorted ascending.
func (t *Table) Pivot(index []string, column, value string, fill any) *Table {
	grouped := t.GroupBy(append(append([]string{}, index...), column), []Agg{{Col: value, As: value, Fn: Sum}})

	colCol, _ := grouped.Col(column)
	valCol, _ := grouped.Col(value)

	// Distinct spread values, ascending.
	seen := make(map[string]bool)
	var spread []string
	if colCol != nil {
		for _, v := range colCol.Vals {
			if s, ok := v.(string); ok && !seen[s] {
				seen[s] = true
				spread = append(spread, s)
			}
		}
	}
	sort.Strings(spread)

	// Distinct index tuples, in grouped (already sorted) order.
	idxCols := make([]*Column, len(index))
	for i, n := range index {
		idxCols[i], _ = grouped.Col(n)
	}
	type idxRow struct {
		vals []any
		pos  map[string]int // spread value -> grouped row
	}
	byKey := make(map[string]*idxRow)
	var idxRows []*idxRow
	for i := 0; i < grouped.NumRows(); i++ {
		var sb strings.Builder
		vals := make([]any, len(index))
		for ki, c := range idxCols {
			vals[ki] = c.Vals[i]
			sb.WriteString(encodeKeyPart(c.Vals[i]))
			sb.WriteByte(0x1f)
		}
		ir, ok := byKey[sb.String()]
		if !ok {
			ir = &idxRow{vals: vals, pos: make(map[string]int)}
			byKey[sb.String()] = ir
			idxRows = append(idxRows, ir)
		}
		if s, ok := colCol.Vals[i].(string); ok {
			ir.pos[s] = i
		}
	}

	out := &Table{}
	for ki, n := range index {
		col := Column{Name: n, Kind: Text}
		if idxCols[ki] != nil {
			col.Kind = idxCols[ki].Kind
			col.Bits = idxCols[ki].Bits
		}
		for _, ir := range idxRows {
			col.Vals = append(col.Vals, ir.vals[ki])
		}
		out.Cols = append(out.Cols, col)
	}
	valKind := Float
	if valCol != nil {
		valKind = valCol.Kind
	}
	fillVal := fill
	if fill != nil {
		// Coerce the fill value to the value column's kind so cells stay
		// uniform.
		if valKind == Int {
			fillVal = int64(asFloat(fill))
		} else if valKind == Float {
			fillVal = asFloat(fill)
		}
	}
	for _, s := range spread {
		col := Column{Name: s, Kind: valKind}
		for _, ir := range idxRows {
			if gi, ok := ir.pos[s]; ok {
				col.Vals = append(col.Vals, valCol.Vals[gi])
			} else {
				col.Vals = append(col.Vals, fillVal)
			}
		}
		out.Cols = append(out.Cols, col)
	}
	return out
}

// Concat stacks the given tables row-wise. The result's columns are the
// union of all input columns in first-seen order; rows from tables missing
// a column carry nulls there.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	pos := make(map[string]int)
	total := 0
	for _, t := range tables {
		for _, c := range t.Cols {
			if _, ok := pos[c.Name]; !ok {
				pos[c.Name] = len(out.Cols)
				col := Column{Name: c.Name, Kind: c.Kind, Bits: c.Bits}
				col.Vals = make([]any, total)
				out.Cols = append(out.Cols, col)
			}
		}
		n := t.NumRows()
		for i := range out.Cols {
			if c, ok := t.Col(out.Cols[i].Name); ok {
				out.Cols[i].Vals = append(out.Cols[i].Vals, c.Vals...)
			} else {
				out.Cols[i].Vals = append(out.Cols[i].Vals, make([]any, n)...)
			}
		}
		total += n
	}
	return out
}

// FillZero replaces nulls in numeric columns with zero of the column kind.
// Text and time columns are left untouched.
func (t *Table) FillZero() *Table {
	out := t.clone()
	for i := range out.Cols {
		c := &out.Cols[i]
		if c.Kind != Int && c.Kind != Float {
			continue
		}
		for j, v := range c.Vals {
			if v != nil {
				continue
			}
			if c.Kind == Int {
				c.Vals[j] = int64(0)
			} else {
				c.Vals[j] = float64(0)
			}
		}
	}
	return out
}

// CastInt32Where converts every column whose name matches to 32-bit
// integers, truncating fractional values. Nulls are preserved.
func (t *Table) CastInt32Where(match func(name string) bool) *Table {
	out := t.clone()
	for i := range out.Cols {
		c := &out.Cols[i]
		if !match(c.Name) {
			continue
		}
		for j, v := range c.Vals {
			if v == nil {
				continue
			}
			c.Vals[j] = int64(int32(asFloat(v)))
		}
		c.Kind = Int
		c.Bits = 32
	}
	return out
}

// CastInt64 converts the named column to 64-bit integers, truncating
// fractional values. Nulls are preserved.
func (t *Table) CastInt64(name string) *Table {
	out := t.clone()
	idx := out.colIndex(name)
	if idx < 0 {
		return out
	}
	c := &out.Cols[idx]
	for j, v := range c.Vals {
		if v == nil {
			continue
		}
		c.Vals[j] = int64(asFloat(v))
	}
	c.Kind = Int
	c.Bits = 64
	return out
}
