package report

// transform.go holds the two per-file algorithms. Both start from the same
// cross join of the product master and the store's general-parameter row;
// the product transform additionally pivots the kardex movement history
// into one column per calendar month.

import (
	"context"
	"strings"
	"time"

	"ruptura/internal/extract"
	"ruptura/internal/table"
)

// Legacy table names, fixed by the store file schema.
const (
	tableKardex    = "KARDEX_FILIAL"
	tableMestre    = "PRODUTO_MESTRE"
	tableParametro = "PARAMETRO_GERAL"
)

// Source extracts one named table from one store file.
type Source interface {
	Table(ctx context.Context, path, tableName string, opts extract.Options) (*table.Table, error)
}

// Transformer builds the per-file report tables from a Source.
type Transformer struct {
	Src Source
}

// NewTransformer returns a Transformer reading through src.
func NewTransformer(src Source) *Transformer { return &Transformer{Src: src} }

// Stockout is the predicate marking a row as a confirmed stockout event:
// the final confirmed quantity equals the sub-stock quantity and the
// sub-stock quantity is positive.
func Stockout(r table.Row) bool {
	return r.Float("prme_vl_conffinal") == r.Float("qtde_subestoque") &&
		r.Float("qtde_subestoque") > 0
}

// IsMonthColumn reports whether a column name is a pivoted month key
// (first-of-month date, so the name contains a hyphen).
func IsMonthColumn(name string) bool { return strings.Contains(name, "-") }

// vendasLast is the column ordering used by the product report: the sales
// total column sorts after everything else.
func vendasLast(name string) int {
	if name == "vendas" {
		return 10
	}
	return 1
}

// masterCross extracts the product master and the general-parameter row and
// returns their cross join. Both transforms start here.
func (t *Transformer) masterCross(ctx context.Context, path string) (*table.Table, error) {
	mestre, err := t.Src.Table(ctx, path, tableMestre, extract.Options{
		FloatCols: []string{"PRFI_VL_CMPG", "PRFI_VL_PRECOVENDA"},
	})
	if err != nil {
		return nil, err
	}
	param, err := t.Src.Table(ctx, path, tableParametro, extract.Options{
		DateCols: []extract.DateSpec{{Name: "PAGE_DH_INCLUSAO", DayFirst: true}},
	})
	if err != nil {
		return nil, err
	}
	return mestre.CrossJoin(param), nil
}

// Produto produces the per-file product report: per-product monthly stock
// balances from the kardex plus stockout rows from the master cross join,
// left-merged on product code. A file with zero stockout rows yields an
// empty table, not an error.
func (t *Transformer) Produto(ctx context.Context, path string) (*table.Table, error) {
	kardex, err := t.Src.Table(ctx, path, tableKardex, extract.Options{
		DateCols: []extract.DateSpec{{Name: "KAFI_DT_MOV"}},
	})
	if err != nil {
		return nil, err
	}

	kardex = kardex.
		Filter(func(r table.Row) bool { return r.Str("kafi_tp_mov") == "SV" }).
		Assign("valor", table.Float, func(r table.Row) any {
			return r.Float("kafi_qt_saldo") * r.Float("kafi_vl_cmpg")
		}).
		Assign("kafi_dt_mov", table.Time, func(r table.Row) any {
			ts := r.Time("kafi_dt_mov")
			return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, ts.Location())
		}).
		GroupBy(
			[]string{"kafi_cd_produto", "kafi_dt_mov"},
			[]table.Agg{
				{Col: "kafi_qt_saldo", As: "kafi_qt_saldo", Fn: table.Sum},
				{Col: "valor", As: "valor", Fn: table.Sum},
			},
		).
		SortBy("kafi_cd_produto", "kafi_dt_mov")

	// Sales total per product across all months.
	totals := make(map[int64]float64)
	for i := 0; i < kardex.NumRows(); i++ {
		r := kardex.Row(i)
		totals[r.Int("kafi_cd_produto")] += r.Float("valor")
	}

	kardex = kardex.
		Assign("vendas", table.Float, func(r table.Row) any {
			return totals[r.Int("kafi_cd_produto")]
		}).
		Assign("kafi_dt_mov", table.Text, func(r table.Row) any {
			return r.Time("kafi_dt_mov").Format("2006-01-02")
		}).
		Pivot([]string{"kafi_cd_produto", "vendas"}, "kafi_dt_mov", "kafi_qt_saldo", 0).
		SortColumns(vendasLast).
		Rename("kafi_cd_produto", "prme_cd_produto")

	cross, err := t.masterCross(ctx, path)
	if err != nil {
		return nil, err
	}
	stock := cross.
		Filter(Stockout).
		Assign("valor_total", table.Float, func(r table.Row) any {
			return r.Float("prfi_vl_cmpg") * r.Float("prme_vl_conffinal")
		}).
		Select("page_dh_inclusao", "page_cd_filial", "prfi_vl_cmpg",
			"prme_cd_produto", "prme_vl_conffinal", "valor_total")

	return stock.
		LeftJoin(kardex, "prme_cd_produto").
		FillZero().
		CastInt32Where(IsMonthColumn), nil
}

// Ruptura produces the per-file stockout indicators: one row per
// (branch, inclusion date) with counts, unit totals and values for the
// initial stock, final stock and stockout positions, plus the two rupture
// ratios. The ratios are left as produced by float division — a zero
// denominator yields NaN or Inf, which is an accepted outcome.
func (t *Transformer) Ruptura(ctx context.Context, path string) (*table.Table, error) {
	cross, err := t.masterCross(ctx, path)
	if err != nil {
		return nil, err
	}

	derived := cross.
		Assign("qtd_sku_estq_init", table.Float, wherePositive("prfi_qt_estoqatual")).
		Assign("valor_estq_init", table.Float, product("prfi_qt_estoqatual", "prfi_vl_cmpg")).
		Assign("qtd_sku_estq", table.Float, wherePositive("prme_vl_conffinal")).
		Assign("valor_estq", table.Float, product("prme_vl_conffinal", "prfi_vl_cmpg")).
		Assign("qtd_sku_rup", table.Float, func(r table.Row) any {
			if !Stockout(r) {
				return nil
			}
			return r.Float("qtde_subestoque")
		})
	derived = derived.Assign("valor_rup", table.Float, func(r table.Row) any {
		if r.IsNull("qtd_sku_rup") {
			return nil
		}
		return r.Float("qtd_sku_rup") * r.Float("prfi_vl_cmpg")
	})

	grouped := derived.GroupBy(
		[]string{"page_cd_filial", "page_dh_inclusao"},
		[]table.Agg{
			{Col: "qtd_sku_estq_init", As: "qtd_sku_estq_init", Fn: table.CountNonNull},
			{Col: "prfi_qt_estoqatual", As: "unidades_estq_init", Fn: table.Sum},
			{Col: "valor_estq_init", As: "valor_estq_init", Fn: table.Sum},
			{Col: "qtd_sku_estq", As: "qtd_sku_estq", Fn: table.CountNonNull},
			{Col: "prme_vl_conffinal", As: "unidades_estq", Fn: table.Sum},
			{Col: "valor_estq", As: "valor_estq", Fn: table.Sum},
			{Col: "qtd_sku_rup", As: "qtd_sku_rup", Fn: table.CountNonNull},
			{Col: "qtd_sku_rup", As: "unidades_rup", Fn: table.Sum},
			{Col: "valor_rup", As: "valor_rup", Fn: table.Sum},
		},
	)

	return grouped.
		Assign("ind_rup_unid", table.Float, ratio("unidades_rup", "unidades_estq")).
		Assign("ind_rup_valor", table.Float, ratio("valor_rup", "valor_estq")), nil
}

// wherePositive returns the column value where it is positive, null
// otherwise.
func wherePositive(col string) func(table.Row) any {
	return func(r table.Row) any {
		if v := r.Float(col); v > 0 {
			return v
		}
		return nil
	}
}

// product multiplies two columns.
func product(a, b string) func(table.Row) any {
	return func(r table.Row) any { return r.Float(a) * r.Float(b) }
}

// ratio divides two columns without guarding the denominator; each ratio is
// computed independently from its own denominator.
func ratio(num, den string) func(table.Row) any {
	return func(r table.Row) any { return r.Float(num) / r.Float(den) }
}
