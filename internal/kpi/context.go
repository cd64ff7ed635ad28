package kpi

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Strategy tells whether a KPI aggregates the whole network or specific pharmacies.
type Strategy string

const (
	StrategyGlobal      Strategy = "GLOBAL"
	StrategyComparative Strategy = "COMPARATIVE"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Pagination windows table-shaped KPIs.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Offset   int `json:"offset"`
}

// NewPagination normalises page and size, defaulting to the first page of 20 rows.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize, Offset: (page - 1) * pageSize}
}

// Context is derived once per request and never mutated afterwards.
type Context struct {
	Periods    Periods
	Strategy   Strategy
	Pagination *Pagination
	Duration   time.Duration
	// Comparison is true when the caller supplied a complete comparison range.
	Comparison bool
	Search     string
}

// MapRequest validates the request and derives its KPI context.
func MapRequest(req FilterRequest) (Context, error) {
	if err := req.Validate(); err != nil {
		return Context{}, err
	}
	periods, err := GetPeriods(req.DateRange.Start, req.DateRange.End)
	if err != nil {
		return Context{}, err
	}

	ctx := Context{
		Periods:  periods,
		Strategy: StrategyGlobal,
		Duration: periods.Current.End.Sub(periods.Current.Start),
		Search:   normalizeSearch(req.Search),
	}
	if len(req.PharmacyIDs) > 0 {
		ctx.Strategy = StrategyComparative
	}
	if req.ComparisonDateRange.complete() {
		cmp, err := GetPeriods(req.ComparisonDateRange.Start, req.ComparisonDateRange.End)
		if err != nil {
			return Context{}, err
		}
		ctx.Periods.Previous = cmp.Current
		ctx.Comparison = true
	}
	if req.Page > 0 || req.PageSize > 0 {
		p := NewPagination(req.Page, req.PageSize)
		ctx.Pagination = &p
	}
	return ctx, nil
}

// page returns the pagination to apply, falling back to defaults.
func (c Context) page() Pagination {
	if c.Pagination != nil {
		return *c.Pagination
	}
	return NewPagination(1, defaultPageSize)
}

func normalizeSearch(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
