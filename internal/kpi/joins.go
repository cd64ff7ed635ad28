package kpi

import "strings"

// NeedsJoin reports whether the request filters on a column only the named join provides.
// The base view already carries pharmacy, product, laboratory and its native category
// level, so most requests run without any join.
func NeedsJoin(req FilterRequest, join JoinName, native CategoryType) bool {
	switch join {
	case JoinLatestPrices:
		return req.PurchasePriceNetRange.IsSet() ||
			req.SellPriceRange.IsSet() ||
			req.DiscountRange.IsSet() ||
			req.MarginRange.IsSet()
	case JoinGlobalProduct:
		if req.PurchasePriceGrossRange.IsSet() || len(req.Groups) > 0 || len(req.ExcludedGroups) > 0 {
			return true
		}
		for _, c := range req.Categories {
			if c.Type != native {
				return true
			}
		}
		for _, c := range req.ExcludedCategories {
			if c.Type != native {
				return true
			}
		}
	}
	return false
}

// JoinClauses renders the join fragments the request needs on the view.
func JoinClauses(req FilterRequest, view View) string {
	var parts []string
	for _, name := range joinOrder {
		fragment, ok := view.Joins[name]
		if !ok || !NeedsJoin(req, name, view.NativeCategory) {
			continue
		}
		parts = append(parts, fragment)
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}
