package kpi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest is returned before any query runs when the filter request is malformed.
var ErrInvalidRequest = errors.New("kpi: invalid request")

// Operator combines multiple values selected for one filter dimension.
type Operator string

const (
	OperatorOr  Operator = "OR"
	OperatorAnd Operator = "AND"
)

func (o Operator) or() bool {
	return o != OperatorAnd
}

// CategoryType selects the category column a category code is matched against.
type CategoryType string

const (
	CategorySegmentL0 CategoryType = "bcb_segment_l0"
	CategorySegmentL1 CategoryType = "bcb_segment_l1"
	CategorySegmentL2 CategoryType = "bcb_segment_l2"
	CategorySegmentL3 CategoryType = "bcb_segment_l3"
	CategorySegmentL4 CategoryType = "bcb_segment_l4"
	CategorySegmentL5 CategoryType = "bcb_segment_l5"
	CategoryFamily    CategoryType = "bcb_family"
)

// DateRange is an inclusive range of ISO 8601 dates.
type DateRange struct {
	Start string `json:"start" validate:"required,isodate"`
	End   string `json:"end" validate:"required,isodate"`
}

func (d *DateRange) complete() bool {
	return d != nil && strings.TrimSpace(d.Start) != "" && strings.TrimSpace(d.End) != ""
}

// Category is a category selection at a given level.
type Category struct {
	Code string       `json:"code" validate:"required"`
	Type CategoryType `json:"type" validate:"required,oneof=bcb_segment_l0 bcb_segment_l1 bcb_segment_l2 bcb_segment_l3 bcb_segment_l4 bcb_segment_l5 bcb_family"`
}

// Range bounds a numeric filter; either side may be omitted.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// IsSet reports whether the range constrains anything.
func (r *Range) IsSet() bool {
	return r != nil && (r.Min != nil || r.Max != nil)
}

// FilterOperators holds the per-dimension combination logic.
type FilterOperators struct {
	Products     Operator `json:"products,omitempty" validate:"omitempty,oneof=AND OR"`
	Laboratories Operator `json:"laboratories,omitempty" validate:"omitempty,oneof=AND OR"`
	Categories   Operator `json:"categories,omitempty" validate:"omitempty,oneof=AND OR"`
	Pharmacies   Operator `json:"pharmacies,omitempty" validate:"omitempty,oneof=AND OR"`
}

// FilterRequest is the filter contract shared by every KPI endpoint. Field order
// is significant: it drives the cache key serialisation.
type FilterRequest struct {
	DateRange           DateRange  `json:"dateRange"`
	ComparisonDateRange *DateRange `json:"comparisonDateRange,omitempty" validate:"-"`

	ProductCodes []string   `json:"productCodes,omitempty"`
	Laboratories []string   `json:"laboratories,omitempty"`
	Categories   []Category `json:"categories,omitempty" validate:"dive"`
	PharmacyIDs  []string   `json:"pharmacyIds,omitempty"`

	ExcludedProductCodes []string   `json:"excludedProductCodes,omitempty"`
	ExcludedLaboratories []string   `json:"excludedLaboratories,omitempty"`
	ExcludedCategories   []Category `json:"excludedCategories,omitempty" validate:"dive"`
	ExcludedPharmacyIDs  []string   `json:"excludedPharmacyIds,omitempty"`

	FilterOperators FilterOperators `json:"filterOperators"`

	PurchasePriceNetRange   *Range `json:"purchasePriceNetRange,omitempty"`
	PurchasePriceGrossRange *Range `json:"purchasePriceGrossRange,omitempty"`
	SellPriceRange          *Range `json:"sellPriceRange,omitempty"`
	DiscountRange           *Range `json:"discountRange,omitempty"`
	MarginRange             *Range `json:"marginRange,omitempty"`

	TvaRates            []float64 `json:"tvaRates,omitempty"`
	ReimbursementStatus []string  `json:"reimbursementStatus,omitempty"`
	IsGeneric           *bool     `json:"isGeneric,omitempty"`
	Groups              []string  `json:"groups,omitempty"`
	ExcludedGroups      []string  `json:"excludedGroups,omitempty"`

	Page     int    `json:"page,omitempty" validate:"gte=0"`
	PageSize int    `json:"pageSize,omitempty" validate:"gte=0,lte=200"`
	Search   string `json:"search,omitempty" validate:"max=200"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the request shape. Every failure wraps ErrInvalidRequest.
func (r FilterRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidRequest, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := checkOrder("dateRange", &r.DateRange); err != nil {
		return err
	}
	if r.ComparisonDateRange.complete() {
		if err := checkOrder("comparisonDateRange", r.ComparisonDateRange); err != nil {
			return err
		}
	}
	for _, nr := range r.namedRanges() {
		if nr.rng.IsSet() && nr.rng.Min != nil && nr.rng.Max != nil && *nr.rng.Min > *nr.rng.Max {
			return fmt.Errorf("%w: %s min greater than max", ErrInvalidRequest, nr.name)
		}
	}
	return nil
}

type namedRange struct {
	name string
	rng  *Range
}

func (r FilterRequest) namedRanges() []namedRange {
	return []namedRange{
		{"purchasePriceNetRange", r.PurchasePriceNetRange},
		{"purchasePriceGrossRange", r.PurchasePriceGrossRange},
		{"sellPriceRange", r.SellPriceRange},
		{"discountRange", r.DiscountRange},
		{"marginRange", r.MarginRange},
	}
}

func checkOrder(field string, d *DateRange) error {
	start, err := ParseDate(d.Start)
	if err != nil {
		return fmt.Errorf("%w: %s.start: %v", ErrInvalidRequest, field, err)
	}
	end, err := ParseDate(d.End)
	if err != nil {
		return fmt.Errorf("%w: %s.end: %v", ErrInvalidRequest, field, err)
	}
	if start.After(end) {
		return fmt.Errorf("%w: %s start after end", ErrInvalidRequest, field)
	}
	return nil
}

var dateLayouts = []string{"2006-01-02", time.RFC3339Nano, "2006-01-02T15:04:05"}

// ParseDate parses an ISO 8601 date or timestamp in UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
