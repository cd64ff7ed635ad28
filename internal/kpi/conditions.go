package kpi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnmappedColumn signals a filter the target view has no column for.
var ErrUnmappedColumn = errors.New("kpi: filter has no column on this view")

type clauseOp int

const (
	opAny clauseOp = iota
	opNotAll
	opEq
	opGte
	opLte
	opILike
)

// clause is one typed predicate. When either is non-empty the clause is the
// disjunction of its members and column/op/value are unused.
type clause struct {
	column string
	op     clauseOp
	value  any
	either []clause
}

// Fragment is a rendered WHERE continuation and its positional arguments.
type Fragment struct {
	SQL  string
	Args []any
	base int
}

// Next returns the placeholder index following the fragment's last argument.
func (f Fragment) Next() int {
	return f.base + len(f.Args) + 1
}

// ConditionBuilder accumulates filter clauses for one query. Placeholders are
// numbered after the caller's base parameters, in the order clauses were added.
type ConditionBuilder struct {
	columns ColumnMap
	base    int
	clauses []clause
	err     error
}

// NewConditionBuilder starts a builder whose first placeholder is $baseParams+1.
func NewConditionBuilder(columns ColumnMap, baseParams int) *ConditionBuilder {
	return &ConditionBuilder{columns: columns, base: baseParams}
}

// Apply adds every filter dimension of the request in a fixed order.
func (b *ConditionBuilder) Apply(req FilterRequest) *ConditionBuilder {
	return b.AddPharmacies(req).
		AddProducts(req).
		AddLaboratories(req).
		AddCategories(req).
		AddGroups(req).
		AddTvaRates(req).
		AddReimbursement(req).
		AddGeneric(req).
		AddRanges(req)
}

func (b *ConditionBuilder) AddPharmacies(req FilterRequest) *ConditionBuilder {
	return b.list("pharmacyIds", b.columns.PharmacyID, req.PharmacyIDs, req.ExcludedPharmacyIDs)
}

func (b *ConditionBuilder) AddProducts(req FilterRequest) *ConditionBuilder {
	return b.list("productCodes", b.columns.ProductCode, req.ProductCodes, req.ExcludedProductCodes)
}

func (b *ConditionBuilder) AddLaboratories(req FilterRequest) *ConditionBuilder {
	return b.list("laboratories", b.columns.Laboratory, req.Laboratories, req.ExcludedLaboratories)
}

func (b *ConditionBuilder) AddGroups(req FilterRequest) *ConditionBuilder {
	return b.list("groups", b.columns.Group, req.Groups, req.ExcludedGroups)
}

func (b *ConditionBuilder) AddReimbursement(req FilterRequest) *ConditionBuilder {
	return b.list("reimbursementStatus", b.columns.Reimbursement, req.ReimbursementStatus, nil)
}

func (b *ConditionBuilder) AddTvaRates(req FilterRequest) *ConditionBuilder {
	if len(req.TvaRates) == 0 {
		return b
	}
	if !b.mapped("tvaRates", b.columns.TvaRate) {
		return b
	}
	b.clauses = append(b.clauses, clause{column: b.columns.TvaRate, op: opAny, value: req.TvaRates})
	return b
}

func (b *ConditionBuilder) AddGeneric(req FilterRequest) *ConditionBuilder {
	if req.IsGeneric == nil {
		return b
	}
	if !b.mapped("isGeneric", b.columns.IsGeneric) {
		return b
	}
	b.clauses = append(b.clauses, clause{column: b.columns.IsGeneric, op: opEq, value: *req.IsGeneric})
	return b
}

// AddCategories handles multi-level selections. Codes are grouped by level; with
// the AND operator each level becomes its own predicate, with OR the levels are
// alternatives. Excluded categories are always subtracted per level.
func (b *ConditionBuilder) AddCategories(req FilterRequest) *ConditionBuilder {
	included, err := b.categoryGroups(req.Categories)
	if err != nil {
		b.fail(err)
		return b
	}
	switch {
	case len(included) == 1 || (len(included) > 1 && !req.FilterOperators.Categories.or()):
		b.clauses = append(b.clauses, included...)
	case len(included) > 1:
		b.clauses = append(b.clauses, clause{either: included})
	}

	excluded, err := b.categoryGroups(req.ExcludedCategories)
	if err != nil {
		b.fail(err)
		return b
	}
	for _, c := range excluded {
		c.op = opNotAll
		b.clauses = append(b.clauses, c)
	}
	return b
}

func (b *ConditionBuilder) categoryGroups(categories []Category) ([]clause, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	var order []CategoryType
	codes := make(map[CategoryType][]string)
	for _, c := range categories {
		if _, seen := codes[c.Type]; !seen {
			order = append(order, c.Type)
		}
		codes[c.Type] = append(codes[c.Type], c.Code)
	}
	out := make([]clause, 0, len(order))
	for _, t := range order {
		column := b.columns.Categories[t]
		if column == "" {
			return nil, fmt.Errorf("%w: categories type %q", ErrUnmappedColumn, t)
		}
		out = append(out, clause{column: column, op: opAny, value: codes[t]})
	}
	return out, nil
}

// AddRanges appends a bound for each side present on each numeric range.
func (b *ConditionBuilder) AddRanges(req FilterRequest) *ConditionBuilder {
	b.rng("purchasePriceNetRange", b.columns.PurchasePriceNet, req.PurchasePriceNetRange)
	b.rng("purchasePriceGrossRange", b.columns.PurchasePriceGross, req.PurchasePriceGrossRange)
	b.rng("sellPriceRange", b.columns.SellPrice, req.SellPriceRange)
	b.rng("discountRange", b.columns.Discount, req.DiscountRange)
	b.rng("marginRange", b.columns.Margin, req.MarginRange)
	return b
}

// AddSearch matches term as a case-insensitive substring of any of the columns.
func (b *ConditionBuilder) AddSearch(term string, columns ...string) *ConditionBuilder {
	if term == "" || len(columns) == 0 {
		return b
	}
	pattern := "%" + term + "%"
	alts := make([]clause, 0, len(columns))
	for _, column := range columns {
		if !b.mapped("search", column) {
			return b
		}
		alts = append(alts, clause{column: column, op: opILike, value: pattern})
	}
	if len(alts) == 1 {
		b.clauses = append(b.clauses, alts[0])
		return b
	}
	b.clauses = append(b.clauses, clause{either: alts})
	return b
}

// AddIn restricts column to values. An empty list adds nothing.
func (b *ConditionBuilder) AddIn(column string, values []string) *ConditionBuilder {
	return b.list("in", column, values, nil)
}

// Build renders the accumulated clauses as " AND ..." with their arguments.
func (b *ConditionBuilder) Build() (Fragment, error) {
	if b.err != nil {
		return Fragment{}, b.err
	}
	frag := Fragment{base: b.base}
	if len(b.clauses) == 0 {
		return frag, nil
	}
	parts := make([]string, 0, len(b.clauses))
	for _, c := range b.clauses {
		parts = append(parts, b.render(c, &frag.Args))
	}
	frag.SQL = " AND " + strings.Join(parts, " AND ")
	return frag, nil
}

func (b *ConditionBuilder) render(c clause, args *[]any) string {
	if len(c.either) > 0 {
		alts := make([]string, 0, len(c.either))
		for _, alt := range c.either {
			alts = append(alts, b.render(alt, args))
		}
		return "(" + strings.Join(alts, " OR ") + ")"
	}
	*args = append(*args, c.value)
	n := b.base + len(*args)
	switch c.op {
	case opNotAll:
		return fmt.Sprintf("%s <> ALL($%d)", c.column, n)
	case opEq:
		return fmt.Sprintf("%s = $%d", c.column, n)
	case opGte:
		return fmt.Sprintf("%s >= $%d", c.column, n)
	case opLte:
		return fmt.Sprintf("%s <= $%d", c.column, n)
	case opILike:
		return fmt.Sprintf("%s ILIKE $%d", c.column, n)
	default:
		return fmt.Sprintf("%s = ANY($%d)", c.column, n)
	}
}

func (b *ConditionBuilder) list(field, column string, include, exclude []string) *ConditionBuilder {
	if len(include) == 0 && len(exclude) == 0 {
		return b
	}
	if !b.mapped(field, column) {
		return b
	}
	if len(include) > 0 {
		b.clauses = append(b.clauses, clause{column: column, op: opAny, value: include})
	}
	if len(exclude) > 0 {
		b.clauses = append(b.clauses, clause{column: column, op: opNotAll, value: exclude})
	}
	return b
}

func (b *ConditionBuilder) rng(field, column string, r *Range) {
	if !r.IsSet() {
		return
	}
	if !b.mapped(field, column) {
		return
	}
	if r.Min != nil {
		b.clauses = append(b.clauses, clause{column: column, op: opGte, value: *r.Min})
	}
	if r.Max != nil {
		b.clauses = append(b.clauses, clause{column: column, op: opLte, value: *r.Max})
	}
}

func (b *ConditionBuilder) mapped(field, column string) bool {
	if column != "" {
		return true
	}
	b.fail(fmt.Errorf("%w: %s", ErrUnmappedColumn, field))
	return false
}

func (b *ConditionBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
