package kpi

import "context"

// SalesTotals aggregates sales over one period.
type SalesTotals struct {
	MontantTTC     float64 `json:"montant_ttc"`
	MontantHT      float64 `json:"montant_ht"`
	QuantiteVendue float64 `json:"quantite_vendue"`
	NbReferences   int64   `json:"nb_references"`
}

type SalesResult struct {
	SalesTotals
	Comparison   *SalesTotals `json:"comparison,omitempty"`
	EvolutionPct *float64     `json:"evolution_pct,omitempty"`
}

const salesSelect = `COALESCE(SUM(mv.amount_sold_ttc), 0) AS montant_ttc,
	COALESCE(SUM(mv.amount_sold_ht), 0) AS montant_ht,
	COALESCE(SUM(mv.qty_sold), 0) AS quantite_vendue,
	COUNT(DISTINCT mv.code_13_ref) FILTER (WHERE mv.qty_sold > 0) AS nb_references`

// Sales sums sell-out amounts and quantities.
func (r *SQLRepository) Sales(ctx context.Context, req FilterRequest) (SalesResult, error) {
	kctx, err := MapRequest(req)
	if err != nil {
		return SalesResult{}, err
	}
	stmt, err := r.compose(req, salesSelect, "", nil, nil)
	if err != nil {
		return SalesResult{}, err
	}
	current, previous, err := perPeriod(ctx, kctx.Periods, kctx.Comparison, func(ctx context.Context, p Period) (SalesTotals, error) {
		row, err := r.queryOne(ctx, "sales", stmt.sql, stmt.args(p))
		if err != nil {
			return SalesTotals{}, err
		}
		return SalesTotals{
			MontantTTC:     row.Float("montant_ttc"),
			MontantHT:      row.Float("montant_ht"),
			QuantiteVendue: row.Float("quantite_vendue"),
			NbReferences:   row.Int("nb_references"),
		}, nil
	})
	if err != nil {
		return SalesResult{}, err
	}
	result := SalesResult{SalesTotals: current, Comparison: previous}
	if previous != nil {
		result.EvolutionPct = Evolution(current.MontantTTC, previous.MontantTTC)
	}
	return result, nil
}

// MarginTotals is the gross margin earned over one period.
type MarginTotals struct {
	MontantMarge float64 `json:"montant_marge"`
	MontantHT    float64 `json:"montant_ht"`
	TauxMarge    float64 `json:"taux_marge"`
}

type MarginResult struct {
	MarginTotals
	Comparison   *MarginTotals `json:"comparison,omitempty"`
	EvolutionPct *float64      `json:"evolution_pct,omitempty"`
}

const marginSelect = `COALESCE(SUM(mv.margin_ht), 0) AS montant_marge,
	COALESCE(SUM(mv.amount_sold_ht), 0) AS montant_ht`

// Margin sums the gross margin and derives the margin rate on sales excluding tax.
func (r *SQLRepository) Margin(ctx context.Context, req FilterRequest) (MarginResult, error) {
	kctx, err := MapRequest(req)
	if err != nil {
		return MarginResult{}, err
	}
	stmt, err := r.compose(req, marginSelect, "", nil, nil)
	if err != nil {
		return MarginResult{}, err
	}
	current, previous, err := perPeriod(ctx, kctx.Periods, kctx.Comparison, func(ctx context.Context, p Period) (MarginTotals, error) {
		row, err := r.queryOne(ctx, "margin", stmt.sql, stmt.args(p))
		if err != nil {
			return MarginTotals{}, err
		}
		totals := MarginTotals{
			MontantMarge: row.Float("montant_marge"),
			MontantHT:    row.Float("montant_ht"),
		}
		totals.TauxMarge = ratio(totals.MontantMarge, totals.MontantHT, 100)
		return totals, nil
	})
	if err != nil {
		return MarginResult{}, err
	}
	result := MarginResult{MarginTotals: current, Comparison: previous}
	if previous != nil {
		result.EvolutionPct = Evolution(current.MontantMarge, previous.MontantMarge)
	}
	return result, nil
}
