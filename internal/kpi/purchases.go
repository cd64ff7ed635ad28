package kpi

import "context"

// PurchasesTotals aggregates purchase lines over one period.
type PurchasesTotals struct {
	MontantAchatHT  float64 `json:"montant_achat_ht"`
	QuantiteAchetee float64 `json:"quantite_achetee"`
	NbReferences    int64   `json:"nb_references"`
}

// PurchasesResult carries the current totals and, on request, the comparison period.
type PurchasesResult struct {
	PurchasesTotals
	Comparison   *PurchasesTotals `json:"comparison,omitempty"`
	EvolutionPct *float64         `json:"evolution_pct,omitempty"`
}

const purchasesSelect = `COALESCE(SUM(mv.amount_purchased_ht), 0) AS montant_achat_ht,
	COALESCE(SUM(mv.qty_purchased), 0) AS quantite_achetee,
	COUNT(DISTINCT mv.code_13_ref) FILTER (WHERE mv.qty_purchased > 0) AS nb_references`

// Purchases sums purchase amounts and quantities.
func (r *SQLRepository) Purchases(ctx context.Context, req FilterRequest) (PurchasesResult, error) {
	kctx, err := MapRequest(req)
	if err != nil {
		return PurchasesResult{}, err
	}
	stmt, err := r.compose(req, purchasesSelect, "", nil, nil)
	if err != nil {
		return PurchasesResult{}, err
	}
	current, previous, err := perPeriod(ctx, kctx.Periods, kctx.Comparison, func(ctx context.Context, p Period) (PurchasesTotals, error) {
		row, err := r.queryOne(ctx, "purchases", stmt.sql, stmt.args(p))
		if err != nil {
			return PurchasesTotals{}, err
		}
		return PurchasesTotals{
			MontantAchatHT:  row.Float("montant_achat_ht"),
			QuantiteAchetee: row.Float("quantite_achetee"),
			NbReferences:    row.Int("nb_references"),
		}, nil
	})
	if err != nil {
		return PurchasesResult{}, err
	}
	result := PurchasesResult{PurchasesTotals: current, Comparison: previous}
	if previous != nil {
		result.EvolutionPct = Evolution(current.MontantAchatHT, previous.MontantAchatHT)
	}
	return result, nil
}
