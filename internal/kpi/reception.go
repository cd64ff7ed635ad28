package kpi

import "context"

// ReceptionTotals compares ordered and received quantities.
type ReceptionTotals struct {
	QuantiteCommandee float64 `json:"quantite_commandee"`
	QuantiteRecue     float64 `json:"quantite_recue"`
	TauxReception     float64 `json:"taux_reception"`
}

type ReceptionRateResult struct {
	ReceptionTotals
	Comparison *ReceptionTotals `json:"comparison,omitempty"`
}

const receptionSelect = `COALESCE(SUM(mv.qty_ordered), 0) AS quantite_commandee,
	COALESCE(SUM(mv.qty_received), 0) AS quantite_recue`

// ReceptionRate is the share of ordered units actually received, in percent.
func (r *SQLRepository) ReceptionRate(ctx context.Context, req FilterRequest) (ReceptionRateResult, error) {
	kctx, err := MapRequest(req)
	if err != nil {
		return ReceptionRateResult{}, err
	}
	stmt, err := r.compose(req, receptionSelect, "", nil, nil)
	if err != nil {
		return ReceptionRateResult{}, err
	}
	current, previous, err := perPeriod(ctx, kctx.Periods, kctx.Comparison, func(ctx context.Context, p Period) (ReceptionTotals, error) {
		row, err := r.queryOne(ctx, "reception_rate", stmt.sql, stmt.args(p))
		if err != nil {
			return ReceptionTotals{}, err
		}
		totals := ReceptionTotals{
			QuantiteCommandee: row.Float("quantite_commandee"),
			QuantiteRecue:     row.Float("quantite_recue"),
		}
		totals.TauxReception = ratio(totals.QuantiteRecue, totals.QuantiteCommandee, 100)
		return totals, nil
	})
	if err != nil {
		return ReceptionRateResult{}, err
	}
	return ReceptionRateResult{ReceptionTotals: current, Comparison: previous}, nil
}
