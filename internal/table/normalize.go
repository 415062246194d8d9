package table

// normalize.go is the shared post-processing pass applied to every extracted
// table before it reaches a transform: column renaming, diacritic stripping,
// numeric null fill, numeric downcasting and all-null column pruning.
//
// The column name set of the result is a deterministic pure function of the
// input's column names, with order preserved, and the whole pass is
// idempotent: normalizing an already-normalized table yields the same table.

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// StripAccents removes combining diacritical marks from s: the string is
// NFD-decomposed, marks are dropped, and the remainder is NFC-recomposed.
// ASCII-only input round-trips unchanged.
func StripAccents(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

// NormalizeName maps a source column name to its canonical form:
// lower-cased, outer whitespace trimmed, diacritics stripped, and internal
// whitespace runs replaced with a single underscore.
func NormalizeName(name string) string {
	s := StripAccents(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(strings.Fields(s), "_")
}

// Normalize applies the shared post-processing pass and returns the result.
// Steps, in order:
//
//  1. every column is renamed via NormalizeName
//  2. nulls in numeric columns are replaced with zero
//  3. integer columns are downcast to the smallest lossless width
//  4. float columns are downcast to 32 bits when every value round-trips
//  5. text values are diacritic-stripped
//  6. columns that were entirely null are dropped
//
// The receiver is not modified.
func Normalize(t *Table) *Table {
	out := &Table{}
	for _, c := range t.Cols {
		allNull := true
		for _, v := range c.Vals {
			if v != nil {
				allNull = false
				break
			}
		}
		if allNull && len(c.Vals) > 0 {
			continue
		}

		nc := Column{Name: NormalizeName(c.Name), Kind: c.Kind, Bits: c.Bits}
		nc.Vals = make([]any, len(c.Vals))
		copy(nc.Vals, c.Vals)

		switch c.Kind {
		case Int:
			for i, v := range nc.Vals {
				if v == nil {
					nc.Vals[i] = int64(0)
				}
			}
			nc.Bits = intWidth(nc.Vals)
		case Float:
			for i, v := range nc.Vals {
				if v == nil {
					nc.Vals[i] = float64(0)
				}
			}
			nc.Bits = floatWidth(nc.Vals)
		case Text:
			for i, v := range nc.Vals {
				if s, ok := v.(string); ok {
					nc.Vals[i] = StripAccents(s)
				}
			}
		}
		out.Cols = append(out.Cols, nc)
	}
	return out
}

// intWidth returns the smallest width in bits (8, 16, 32 or 64) that
// losslessly represents every value.
func intWidth(vals []any) int {
	width := 8
	for _, v := range vals {
		n, ok := v.(int64)
		if !ok {
			continue
		}
		switch {
		case n >= math.MinInt8 && n <= math.MaxInt8:
		case n >= math.MinInt16 && n <= math.MaxInt16:
			if width < 16 {
				width = 16
			}
		case n >= math.MinInt32 && n <= math.MaxInt32:
			if width < 32 {
				width = 32
			}
		default:
			return 64
		}
	}
	return width
}

// floatWidth returns 32 when every value survives a float32 round-trip,
// 64 otherwise.
func floatWidth(vals []any) int {
	for _, v := range vals {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		if float64(float32(f)) != f {
			return 64
		}
	}
	return 32
}
