package table

// sql.go scans a database/sql result set into a Table. Both the legacy-file
// extractor and the remote category query produce their tables through this
// single path, so a remote result is consumed exactly like a local scan.

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// FromRows drains rows into a Table, one column per result column in
// descriptor order. Column kinds are inferred from the scanned values:
// a column holding both integers and floats becomes Float, byte slices
// become Text, and all-null columns default to Text. The caller retains
// ownership of rows and must close it.
func FromRows(rows *sql.Rows) (*Table, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read column descriptors: %w", err)
	}

	raw := make([][]any, len(names))
	dest := make([]any, len(names))
	for rows.Next() {
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i := range dest {
			raw[i] = append(raw[i], normalizeScanned(*dest[i].(*any)))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drain rows: %w", err)
	}

	t := &Table{}
	for i, name := range names {
		t.Cols = append(t.Cols, buildColumn(name, raw[i]))
	}
	return t, nil
}

// normalizeScanned maps driver values onto the table value domain:
// string, int64, float64, time.Time or nil.
func normalizeScanned(v any) any {
	switch n := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(n)
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float32:
		return float64(n)
	case string, int64, float64, time.Time:
		return n
	default:
		return fmt.Sprintf("%v", n)
	}
}

// buildColumn infers the column kind from its values and coerces mixed
// numeric columns to Float.
func buildColumn(name string, vals []any) Column {
	var hasStr, hasTime, hasInt, hasFloat bool
	for _, v := range vals {
		switch v.(type) {
		case string:
			hasStr = true
		case time.Time:
			hasTime = true
		case int64:
			hasInt = true
		case float64:
			hasFloat = true
		}
	}

	col := Column{Name: name, Vals: vals}
	switch {
	case hasStr:
		col.Kind = Text
		for i, v := range vals {
			switch n := v.(type) {
			case int64:
				vals[i] = strconv.FormatInt(n, 10)
			case float64:
				vals[i] = strconv.FormatFloat(n, 'g', -1, 64)
			case time.Time:
				vals[i] = n.Format("2006-01-02 15:04:05")
			}
		}
	case hasTime:
		col.Kind = Time
	case hasFloat:
		col.Kind = Float
		for i, v := range vals {
			if n, ok := v.(int64); ok {
				vals[i] = float64(n)
			}
		}
	case hasInt:
		col.Kind = Int
	default:
		col.Kind = Text
	}
	return col
}
