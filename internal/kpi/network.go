package kpi

import "context"

// NetworkTotals describes the whole network over one period.
type NetworkTotals struct {
	CAReseauHT       float64 `json:"ca_reseau_ht"`
	MargeReseauHT    float64 `json:"marge_reseau_ht"`
	NbPharmacies     int64   `json:"nb_pharmacies"`
	CAMoyenPharmacie float64 `json:"ca_moyen_pharmacie_ht"`
	TauxMargeReseau  float64 `json:"taux_marge_reseau"`
}

// SelectionTotals positions the requested pharmacies against the network.
type SelectionTotals struct {
	CASelectionHT    float64  `json:"ca_selection_ht"`
	MargeSelectionHT float64  `json:"marge_selection_ht"`
	NbPharmacies     int64    `json:"nb_pharmacies"`
	CAMoyenPharmacie float64  `json:"ca_moyen_pharmacie_ht"`
	TauxMarge        float64  `json:"taux_marge"`
	PartReseauPct    float64  `json:"part_reseau_pct"`
	EcartMoyennePct  *float64 `json:"ecart_moyenne_pct,omitempty"`
}

// NetworkHealthPeriod is one period of the network health KPI.
type NetworkHealthPeriod struct {
	Network   NetworkTotals    `json:"network"`
	Selection *SelectionTotals `json:"selection,omitempty"`
}

// NetworkHealthResult reports network totals and, for the COMPARATIVE strategy,
// how the selected pharmacies perform against them.
type NetworkHealthResult struct {
	Strategy Strategy `json:"strategy"`
	NetworkHealthPeriod
	Comparison *NetworkHealthPeriod `json:"comparison,omitempty"`
}

// The pharmacy selection is bound to $3, ahead of the filter placeholders.
const networkSelect = `COALESCE(SUM(mv.amount_sold_ht), 0) AS ca_reseau_ht,
	COALESCE(SUM(mv.margin_ht), 0) AS marge_reseau_ht,
	COUNT(DISTINCT mv.pharmacy_id) AS nb_pharmacies,
	COALESCE(SUM(mv.amount_sold_ht) FILTER (WHERE mv.pharmacy_id = ANY($3)), 0) AS ca_selection_ht,
	COALESCE(SUM(mv.margin_ht) FILTER (WHERE mv.pharmacy_id = ANY($3)), 0) AS marge_selection_ht,
	COUNT(DISTINCT mv.pharmacy_id) FILTER (WHERE mv.pharmacy_id = ANY($3)) AS nb_pharmacies_selection`

// NetworkHealth aggregates the network with the remaining filters applied and
// isolates the selected pharmacies with a FILTER clause instead of a WHERE, so both
// sides come from one scan.
func (r *SQLRepository) NetworkHealth(ctx context.Context, req FilterRequest) (NetworkHealthResult, error) {
	kctx, err := MapRequest(req)
	if err != nil {
		return NetworkHealthResult{}, err
	}
	selection := append([]string{}, req.PharmacyIDs...)
	networkReq := req
	networkReq.PharmacyIDs = nil

	stmt, err := r.compose(networkReq, networkSelect, "", []any{selection}, nil)
	if err != nil {
		return NetworkHealthResult{}, err
	}
	comparative := kctx.Strategy == StrategyComparative
	current, previous, err := perPeriod(ctx, kctx.Periods, kctx.Comparison, func(ctx context.Context, p Period) (NetworkHealthPeriod, error) {
		row, err := r.queryOne(ctx, "network_health", stmt.sql, stmt.args(p))
		if err != nil {
			return NetworkHealthPeriod{}, err
		}
		return networkPeriodFromRow(row, comparative), nil
	})
	if err != nil {
		return NetworkHealthResult{}, err
	}
	return NetworkHealthResult{
		Strategy:            kctx.Strategy,
		NetworkHealthPeriod: current,
		Comparison:          previous,
	}, nil
}

func networkPeriodFromRow(row Row, comparative bool) NetworkHealthPeriod {
	network := NetworkTotals{
		CAReseauHT:    row.Float("ca_reseau_ht"),
		MargeReseauHT: row.Float("marge_reseau_ht"),
		NbPharmacies:  row.Int("nb_pharmacies"),
	}
	network.CAMoyenPharmacie = ratio(network.CAReseauHT, float64(network.NbPharmacies), 1)
	network.TauxMargeReseau = ratio(network.MargeReseauHT, network.CAReseauHT, 100)

	out := NetworkHealthPeriod{Network: network}
	if !comparative {
		return out
	}
	sel := SelectionTotals{
		CASelectionHT:    row.Float("ca_selection_ht"),
		MargeSelectionHT: row.Float("marge_selection_ht"),
		NbPharmacies:     row.Int("nb_pharmacies_selection"),
	}
	sel.CAMoyenPharmacie = ratio(sel.CASelectionHT, float64(sel.NbPharmacies), 1)
	sel.TauxMarge = ratio(sel.MargeSelectionHT, sel.CASelectionHT, 100)
	sel.PartReseauPct = ratio(sel.CASelectionHT, network.CAReseauHT, 100)
	sel.EcartMoyennePct = Evolution(sel.CAMoyenPharmacie, network.CAMoyenPharmacie)
	out.Selection = &sel
	return out
}
