package kpi

import "context"

// PriceTotals holds the average unit prices observed over a period.
type PriceTotals struct {
	PrixMoyenVenteTTC float64 `json:"prix_moyen_vente_ttc"`
	PrixMoyenAchatHT  float64 `json:"prix_moyen_achat_ht"`
}

// PriceEvolutionResult compares average prices with the previous period.
type PriceEvolutionResult struct {
	PriceTotals
	Previous          PriceTotals `json:"previous"`
	EvolutionVentePct *float64    `json:"evolution_vente_pct,omitempty"`
	EvolutionAchatPct *float64    `json:"evolution_achat_pct,omitempty"`
}

const priceSelect = `COALESCE(SUM(mv.amount_sold_ttc) / NULLIF(SUM(mv.qty_sold), 0), 0) AS prix_moyen_vente_ttc,
	COALESCE(SUM(mv.amount_purchased_ht) / NULLIF(SUM(mv.qty_purchased), 0), 0) AS prix_moyen_achat_ht`

// PriceEvolution always runs both periods: an evolution needs a baseline, so the
// previous window is the explicit comparison range or the resolved preceding one.
func (r *SQLRepository) PriceEvolution(ctx context.Context, req FilterRequest) (PriceEvolutionResult, error) {
	kctx, err := MapRequest(req)
	if err != nil {
		return PriceEvolutionResult{}, err
	}
	stmt, err := r.compose(req, priceSelect, "", nil, nil)
	if err != nil {
		return PriceEvolutionResult{}, err
	}
	current, previous, err := perPeriod(ctx, kctx.Periods, true, func(ctx context.Context, p Period) (PriceTotals, error) {
		row, err := r.queryOne(ctx, "price_evolution", stmt.sql, stmt.args(p))
		if err != nil {
			return PriceTotals{}, err
		}
		return PriceTotals{
			PrixMoyenVenteTTC: row.Float("prix_moyen_vente_ttc"),
			PrixMoyenAchatHT:  row.Float("prix_moyen_achat_ht"),
		}, nil
	})
	if err != nil {
		return PriceEvolutionResult{}, err
	}
	return PriceEvolutionResult{
		PriceTotals:       current,
		Previous:          *previous,
		EvolutionVentePct: Evolution(current.PrixMoyenVenteTTC, previous.PrixMoyenVenteTTC),
		EvolutionAchatPct: Evolution(current.PrixMoyenAchatHT, previous.PrixMoyenAchatHT),
	}, nil
}
