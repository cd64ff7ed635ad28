package kpi

import (
	"context"
	"fmt"
)

// TableMetrics are the measures reported per line of a ranking table.
type TableMetrics struct {
	CAHT           float64 `json:"ca_ht"`
	MargeHT        float64 `json:"marge_ht"`
	QuantiteVendue float64 `json:"quantite_vendue"`
	AchatsHT       float64 `json:"achats_ht"`
	TauxMarge      float64 `json:"taux_marge"`
}

// LaboratoryRow is one laboratory of the ranking.
type LaboratoryRow struct {
	Laboratory   string `json:"laboratory"`
	NbReferences int64  `json:"nb_references"`
	TableMetrics
	Comparison   *TableMetrics `json:"comparison,omitempty"`
	EvolutionPct *float64      `json:"evolution_pct,omitempty"`
}

// LaboratoriesResult is a page of laboratories ranked by sales.
type LaboratoriesResult struct {
	Rows     []LaboratoryRow `json:"rows"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// ProductRow is one product of the ranking.
type ProductRow struct {
	ProductCode string `json:"code_13_ref"`
	ProductName string `json:"product_name"`
	Laboratory  string `json:"laboratory"`
	TableMetrics
	Comparison   *TableMetrics `json:"comparison,omitempty"`
	EvolutionPct *float64      `json:"evolution_pct,omitempty"`
}

// ProductsResult is a page of products ranked by sales.
type ProductsResult struct {
	Rows     []ProductRow `json:"rows"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

const tableMeasures = `COALESCE(SUM(mv.amount_sold_ht), 0) AS ca_ht,
	COALESCE(SUM(mv.margin_ht), 0) AS marge_ht,
	COALESCE(SUM(mv.qty_sold), 0) AS quantite_vendue,
	COALESCE(SUM(mv.amount_purchased_ht), 0) AS achats_ht`

const laboratoriesSelect = `mv.laboratory_name AS laboratory,
	COUNT(DISTINCT mv.code_13_ref) AS nb_references,
	` + tableMeasures + `,
	COUNT(*) OVER () AS total_count`

const productsSelect = `mv.code_13_ref AS code_13_ref,
	MAX(mv.product_name) AS product_name,
	MAX(mv.laboratory_name) AS laboratory,
	` + tableMeasures + `,
	COUNT(*) OVER () AS total_count`

func tableMetricsFromRow(row Row) TableMetrics {
	m := TableMetrics{
		CAHT:           row.Float("ca_ht"),
		MargeHT:        row.Float("marge_ht"),
		QuantiteVendue: row.Float("quantite_vendue"),
		AchatsHT:       row.Float("achats_ht"),
	}
	m.TauxMarge = ratio(m.MargeHT, m.CAHT, 100)
	return m
}

// pageTail renders the GROUP BY/ORDER BY/LIMIT/OFFSET tail; limit and offset take the two
// placeholders following the filter fragment.
func pageTail(groupBy, orderBy string, frag Fragment) string {
	n := frag.Next()
	return fmt.Sprintf(" GROUP BY %s ORDER BY %s LIMIT $%d OFFSET $%d", groupBy, orderBy, n, n+1)
}

// Laboratories ranks laboratories by sales excluding tax. With a comparison range
// the previous period is computed for the laboratories of the current page only.
func (r *SQLRepository) Laboratories(ctx context.Context, req FilterRequest) (LaboratoriesResult, error) {
	kctx, err := MapRequest(req)
	if err != nil {
		return LaboratoriesResult{}, err
	}
	page := kctx.page()
	column := r.view.Columns.Laboratory
	search := func(b *ConditionBuilder) {
		b.AddSearch(kctx.Search, column)
	}
	stmt, err := r.compose(req, laboratoriesSelect, "", nil, search)
	if err != nil {
		return LaboratoriesResult{}, err
	}
	tail := pageTail(column, "ca_ht DESC, laboratory", stmt.frag)
	args := append(stmt.args(kctx.Periods.Current), page.PageSize, page.Offset)
	rows, err := r.query(ctx, "laboratories", stmt.sql+tail, args)
	if err != nil {
		return LaboratoriesResult{}, err
	}

	out := LaboratoriesResult{Rows: make([]LaboratoryRow, 0, len(rows)), Page: page.Page, PageSize: page.PageSize}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		lab := LaboratoryRow{
			Laboratory:   row.String("laboratory"),
			NbReferences: row.Int("nb_references"),
			TableMetrics: tableMetricsFromRow(row),
		}
		out.Total = row.Int("total_count")
		out.Rows = append(out.Rows, lab)
		keys = append(keys, lab.Laboratory)
	}
	if len(rows) == 0 && page.Offset > 0 {
		if out.Total, err = r.countGroups(ctx, req, kctx, "laboratories_count", column, search); err != nil {
			return LaboratoriesResult{}, err
		}
	}
	if !kctx.Comparison || len(keys) == 0 {
		return out, nil
	}

	previous, err := r.previousMetrics(ctx, req, kctx, "laboratories_comparison", laboratoriesSelect, column, keys, "laboratory")
	if err != nil {
		return LaboratoriesResult{}, err
	}
	for i := range out.Rows {
		if m, ok := previous[out.Rows[i].Laboratory]; ok {
			out.Rows[i].Comparison = &m
			out.Rows[i].EvolutionPct = Evolution(out.Rows[i].CAHT, m.CAHT)
		}
	}
	return out, nil
}

// Products ranks products by sales excluding tax. Search matches the product name
// or its code.
func (r *SQLRepository) Products(ctx context.Context, req FilterRequest) (ProductsResult, error) {
	kctx, err := MapRequest(req)
	if err != nil {
		return ProductsResult{}, err
	}
	page := kctx.page()
	cols := r.view.Columns
	search := func(b *ConditionBuilder) {
		b.AddSearch(kctx.Search, cols.ProductName, cols.ProductCode)
	}
	stmt, err := r.compose(req, productsSelect, "", nil, search)
	if err != nil {
		return ProductsResult{}, err
	}
	tail := pageTail(cols.ProductCode, "ca_ht DESC, code_13_ref", stmt.frag)
	args := append(stmt.args(kctx.Periods.Current), page.PageSize, page.Offset)
	rows, err := r.query(ctx, "products", stmt.sql+tail, args)
	if err != nil {
		return ProductsResult{}, err
	}

	out := ProductsResult{Rows: make([]ProductRow, 0, len(rows)), Page: page.Page, PageSize: page.PageSize}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		p := ProductRow{
			ProductCode:  row.String("code_13_ref"),
			ProductName:  row.String("product_name"),
			Laboratory:   row.String("laboratory"),
			TableMetrics: tableMetricsFromRow(row),
		}
		out.Total = row.Int("total_count")
		out.Rows = append(out.Rows, p)
		keys = append(keys, p.ProductCode)
	}
	if len(rows) == 0 && page.Offset > 0 {
		if out.Total, err = r.countGroups(ctx, req, kctx, "products_count", cols.ProductCode, search); err != nil {
			return ProductsResult{}, err
		}
	}
	if !kctx.Comparison || len(keys) == 0 {
		return out, nil
	}

	previous, err := r.previousMetrics(ctx, req, kctx, "products_comparison", productsSelect, cols.ProductCode, keys, "code_13_ref")
	if err != nil {
		return ProductsResult{}, err
	}
	for i := range out.Rows {
		if m, ok := previous[out.Rows[i].ProductCode]; ok {
			out.Rows[i].Comparison = &m
			out.Rows[i].EvolutionPct = Evolution(out.Rows[i].CAHT, m.CAHT)
		}
	}
	return out, nil
}

// countGroups counts the distinct keys matching the current period. The window
// count rides on the page rows, so a page past the end needs it run on its own.
func (r *SQLRepository) countGroups(ctx context.Context, req FilterRequest, kctx Context, kpi, column string, extend func(*ConditionBuilder)) (int64, error) {
	stmt, err := r.compose(req, "COUNT(DISTINCT "+column+") AS total_count", "", nil, extend)
	if err != nil {
		return 0, err
	}
	row, err := r.queryOne(ctx, kpi, stmt.sql, stmt.args(kctx.Periods.Current))
	if err != nil {
		return 0, err
	}
	return row.Int("total_count"), nil
}

// previousMetrics computes the previous period for the given keys, indexed by key.
// The search term is not reapplied: keys already pin the lines.
func (r *SQLRepository) previousMetrics(ctx context.Context, req FilterRequest, kctx Context, kpi, selectList, column string, keys []string, keyAlias string) (map[string]TableMetrics, error) {
	stmt, err := r.compose(req, selectList, "", nil, func(b *ConditionBuilder) {
		b.AddIn(column, keys)
	})
	if err != nil {
		return nil, err
	}
	tail := pageTail(column, "ca_ht DESC, "+keyAlias, stmt.frag)
	args := append(stmt.args(kctx.Periods.Previous), len(keys), 0)
	rows, err := r.query(ctx, kpi, stmt.sql+tail, args)
	if err != nil {
		return nil, err
	}
	out := make(map[string]TableMetrics, len(rows))
	for _, row := range rows {
		out[row.String(keyAlias)] = tableMetricsFromRow(row)
	}
	return out, nil
}
