package kpi

import (
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Row maps column names to driver values.
type Row map[string]any

// Float returns the column as float64; NULL and unknown types read as 0.
func (r Row) Float(column string) float64 {
	return toFloat64(r[column])
}

// Int returns the column as int64; NULL reads as 0.
func (r Row) Int(column string) int64 {
	return int64(math.Round(toFloat64(r[column])))
}

// String returns the column as text; NULL reads as "".
func (r Row) String(column string) string {
	switch val := r[column].(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case pgtype.Text:
		if !val.Valid {
			return ""
		}
		return val.String
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func toFloat64(v any) float64 {
	switch val := v.(type) {
	case nil:
		return 0
	case float32:
		return float64(val)
	case float64:
		return val
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case int16:
		return float64(val)
	case int:
		return float64(val)
	case uint64:
		return float64(val)
	case uint32:
		return float64(val)
	case pgtype.Numeric:
		return numericToFloat(val)
	case *pgtype.Numeric:
		if val == nil {
			return 0
		}
		return numericToFloat(*val)
	case pgtype.Float8:
		if !val.Valid {
			return 0
		}
		return val.Float64
	case pgtype.Int8:
		if !val.Valid {
			return 0
		}
		return float64(val.Int64)
	case decimal.Decimal:
		return val.InexactFloat64()
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	case []byte:
		d, err := decimal.NewFromString(string(val))
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	default:
		return 0
	}
}

func numericToFloat(n pgtype.Numeric) float64 {
	if !n.Valid || n.NaN || n.Int == nil {
		return 0
	}
	if n.InfinityModifier != pgtype.Finite {
		return 0
	}
	return decimal.NewFromBigInt(n.Int, n.Exp).InexactFloat64()
}

// ratio returns num/den*scale, or 0 when den is 0.
func ratio(num, den, scale float64) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromFloat(num).
		Div(decimal.NewFromFloat(den)).
		Mul(decimal.NewFromFloat(scale)).
		Round(4).
		InexactFloat64()
}

// Evolution returns the percentage change from previous to current, rounded to two
// decimals. It is nil when previous is 0.
func Evolution(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	cur := decimal.NewFromFloat(current)
	prev := decimal.NewFromFloat(previous)
	pct := cur.Sub(prev).Div(prev.Abs()).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	return &pct
}
