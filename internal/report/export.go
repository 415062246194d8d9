package report

// export.go writes a finished report table to disk. The writer's input
// contract is a consolidated table plus a target format; the three formats
// are spreadsheet (xlsx), delimited text (";"-separated UTF-8 csv) and
// columnar (parquet).

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"

	"ruptura/internal/table"
)

// Exporter writes consolidated report files into a directory.
type Exporter struct {
	Dir string
}

// NewExporter returns an Exporter writing into dir.
func NewExporter(dir string) *Exporter { return &Exporter{Dir: dir} }

// Write stores t under the given file name in the requested format and
// returns the full path written.
func (e *Exporter) Write(t *table.Table, name string, format Format) (string, error) {
	path := filepath.Join(e.Dir, name)
	var err error
	switch format {
	case FormatCSV:
		err = writeCSV(t, path)
	case FormatXLSX:
		err = writeXLSX(t, path)
	case FormatParquet:
		err = writeParquet(t, path)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	return path, nil
}

func writeCSV(t *table.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'

	if err := w.Write(t.Names()); err != nil {
		return err
	}
	record := make([]string, t.NumCols())
	for i := 0; i < t.NumRows(); i++ {
		for c := range t.Cols {
			record[c] = formatCell(t.Cols[c].Vals[i])
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// formatCell renders one value for delimited-text output. Nulls and
// non-finite ratios become empty cells.
func formatCell(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return ""
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case time.Time:
		return n.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", n)
	}
}

func writeXLSX(t *table.Table, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	header := make([]any, t.NumCols())
	for i, n := range t.Names() {
		header[i] = n
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	row := make([]any, t.NumCols())
	for i := 0; i < t.NumRows(); i++ {
		for c := range t.Cols {
			row[c] = cellValue(t.Cols[c].Vals[i])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// cellValue maps a table value onto a spreadsheet cell; nulls and
// non-finite floats become blank cells.
func cellValue(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}

func writeParquet(t *table.Table, path string) error {
	group := parquet.Group{}
	for _, c := range t.Cols {
		group[c.Name] = parquet.Optional(parquetNode(c))
	}
	schema := parquet.NewSchema("report", group)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := parquet.NewGenericWriter[map[string]any](f, schema)
	rows := make([]map[string]any, t.NumRows())
	for i := range rows {
		row := make(map[string]any, t.NumCols())
		for c := range t.Cols {
			if v := t.Cols[c].Vals[i]; v != nil {
				row[t.Cols[c].Name] = v
			}
		}
		rows[i] = row
	}
	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}

// parquetNode picks the parquet leaf type for a column, honoring the
// downcast width for integers.
func parquetNode(c table.Column) parquet.Node {
	switch c.Kind {
	case table.Int:
		if c.Bits > 0 && c.Bits <= 32 {
			return parquet.Int(32)
		}
		return parquet.Int(64)
	case table.Float:
		return parquet.Leaf(parquet.DoubleType)
	case table.Time:
		return parquet.Timestamp(parquet.Millisecond)
	default:
		return parquet.String()
	}
}
