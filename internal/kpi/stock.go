package kpi

import (
	"context"
	"strings"
)

// lastSnapshot keeps only each pharmacy's latest stock snapshot inside the
// period. Pharmacies upload on their own schedule, so the date is resolved per
// pharmacy rather than across the network.
func lastSnapshot(v View) string {
	date := unqualified(v.DateColumn)
	pharmacy := unqualified(v.Columns.PharmacyID)
	return v.DateColumn + " = (SELECT MAX(s." + date + ") FROM " + v.Name + " s" +
		" WHERE s." + pharmacy + " = " + v.Columns.PharmacyID +
		" AND s." + date + " BETWEEN $1 AND $2)"
}

// unqualified drops the table alias from a column reference.
func unqualified(column string) string {
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		return column[i+1:]
	}
	return column
}

// StockTotals is the stock position at the last snapshot of a period.
type StockTotals struct {
	QuantiteStock  float64 `json:"quantite_stock"`
	MontantStockHT float64 `json:"montant_stock_ht"`
	NbReferences   int64   `json:"nb_references"`
}

type StockResult struct {
	StockTotals
	Comparison   *StockTotals `json:"comparison,omitempty"`
	EvolutionPct *float64     `json:"evolution_pct,omitempty"`
}

const stockSelect = `COALESCE(SUM(mv.stock_qty), 0) AS quantite_stock,
	COALESCE(SUM(mv.stock_value_ht), 0) AS montant_stock_ht,
	COUNT(DISTINCT mv.code_13_ref) FILTER (WHERE mv.stock_qty > 0) AS nb_references`

// Stock reads the stock position at the last snapshot date of each period.
func (r *SQLRepository) Stock(ctx context.Context, req FilterRequest) (StockResult, error) {
	kctx, err := MapRequest(req)
	if err != nil {
		return StockResult{}, err
	}
	stmt, err := r.compose(req, stockSelect, lastSnapshot(r.view), nil, nil)
	if err != nil {
		return StockResult{}, err
	}
	current, previous, err := perPeriod(ctx, kctx.Periods, kctx.Comparison, func(ctx context.Context, p Period) (StockTotals, error) {
		row, err := r.queryOne(ctx, "stock", stmt.sql, stmt.args(p))
		if err != nil {
			return StockTotals{}, err
		}
		return StockTotals{
			QuantiteStock:  row.Float("quantite_stock"),
			MontantStockHT: row.Float("montant_stock_ht"),
			NbReferences:   row.Int("nb_references"),
		}, nil
	})
	if err != nil {
		return StockResult{}, err
	}
	result := StockResult{StockTotals: current, Comparison: previous}
	if previous != nil {
		result.EvolutionPct = Evolution(current.MontantStockHT, previous.MontantStockHT)
	}
	return result, nil
}

// InventoryDaysTotals expresses the closing stock in days of cost of sales.
type InventoryDaysTotals struct {
	MontantStockHT float64 `json:"montant_stock_ht"`
	CoutVentesHT   float64 `json:"cout_ventes_ht"`
	JoursStock     float64 `json:"jours_stock"`
}

type InventoryDaysResult struct {
	InventoryDaysTotals
	Comparison *InventoryDaysTotals `json:"comparison,omitempty"`
}

func inventoryDaysSelect(v View) string {
	return `COALESCE(SUM(mv.stock_value_ht) FILTER (WHERE ` + lastSnapshot(v) + `), 0) AS montant_stock_ht,
	COALESCE(SUM(mv.amount_sold_ht - mv.margin_ht), 0) AS cout_ventes_ht`
}

// InventoryDays divides the closing stock value by the average daily cost of sales.
func (r *SQLRepository) InventoryDays(ctx context.Context, req FilterRequest) (InventoryDaysResult, error) {
	kctx, err := MapRequest(req)
	if err != nil {
		return InventoryDaysResult{}, err
	}
	stmt, err := r.compose(req, inventoryDaysSelect(r.view), "", nil, nil)
	if err != nil {
		return InventoryDaysResult{}, err
	}
	current, previous, err := perPeriod(ctx, kctx.Periods, kctx.Comparison, func(ctx context.Context, p Period) (InventoryDaysTotals, error) {
		row, err := r.queryOne(ctx, "inventory_days", stmt.sql, stmt.args(p))
		if err != nil {
			return InventoryDaysTotals{}, err
		}
		totals := InventoryDaysTotals{
			MontantStockHT: row.Float("montant_stock_ht"),
			CoutVentesHT:   row.Float("cout_ventes_ht"),
		}
		dailyCost := ratio(totals.CoutVentesHT, float64(p.Days()), 1)
		totals.JoursStock = ratio(totals.MontantStockHT, dailyCost, 1)
		return totals, nil
	})
	if err != nil {
		return InventoryDaysResult{}, err
	}
	return InventoryDaysResult{InventoryDaysTotals: current, Comparison: previous}, nil
}
