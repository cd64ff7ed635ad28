package kpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsJoin(t *testing.T) {
	native := ProductStatsView.NativeCategory
	cases := []struct {
		name   string
		mutate func(*FilterRequest)
		prices bool
		global bool
	}{
		{name: "no filters"},
		{name: "pharmacies only", mutate: func(r *FilterRequest) { r.PharmacyIDs = []string{"ph-1"} }},
		{name: "native category", mutate: func(r *FilterRequest) {
			r.Categories = []Category{{Code: "A", Type: CategorySegmentL1}}
		}},
		{name: "deeper category", global: true, mutate: func(r *FilterRequest) {
			r.Categories = []Category{{Code: "A", Type: CategorySegmentL4}}
		}},
		{name: "excluded family", global: true, mutate: func(r *FilterRequest) {
			r.ExcludedCategories = []Category{{Code: "F", Type: CategoryFamily}}
		}},
		{name: "groups", global: true, mutate: func(r *FilterRequest) { r.Groups = []string{"G"} }},
		{name: "gross price", global: true, mutate: func(r *FilterRequest) {
			r.PurchasePriceGrossRange = &Range{Min: ptr(1.0)}
		}},
		{name: "sell price", prices: true, mutate: func(r *FilterRequest) {
			r.SellPriceRange = &Range{Max: ptr(9.0)}
		}},
		{name: "empty margin range", mutate: func(r *FilterRequest) { r.MarginRange = &Range{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := january()
			if tc.mutate != nil {
				tc.mutate(&req)
			}
			assert.Equal(t, tc.prices, NeedsJoin(req, JoinLatestPrices, native))
			assert.Equal(t, tc.global, NeedsJoin(req, JoinGlobalProduct, native))
		})
	}
}

func TestJoinClausesOrder(t *testing.T) {
	req := january()
	assert.Empty(t, JoinClauses(req, ProductStatsView))

	req.DiscountRange = &Range{Min: ptr(5.0)}
	req.Groups = []string{"G"}
	got := JoinClauses(req, ProductStatsView)
	assert.Equal(t, " JOIN data_globalproduct gp ON gp.code_13_ref = mv.code_13_ref"+
		" JOIN mv_latest_product_prices lp ON lp.pharmacy_id = mv.pharmacy_id AND lp.code_13_ref = mv.code_13_ref", got)
}
