package masterdata

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultRounding is applied when a unit carries no explicit precision step.
const DefaultRounding = 0.01

// ErrUnitCategoryMismatch indicates a conversion across unrelated unit categories.
var ErrUnitCategoryMismatch = errors.New("masterdata: units belong to different categories")

// ConvertQty converts a quantity expressed in `from` into `to`. Both units
// must share a category; Factor expresses how many of the unit make up the
// category's reference unit.
func ConvertQty(qty float64, from, to Unit) (float64, error) {
	if from.ID == to.ID {
		return qty, nil
	}
	if from.Category != to.Category {
		return 0, fmt.Errorf("%w: %s vs %s", ErrUnitCategoryMismatch, from.Code, to.Code)
	}
	if from.Factor == 0 || to.Factor == 0 {
		return 0, fmt.Errorf("masterdata: unit %s or %s has zero factor", from.Code, to.Code)
	}
	d := decimal.NewFromFloat(qty).
		Div(decimal.NewFromFloat(from.Factor)).
		Mul(decimal.NewFromFloat(to.Factor))
	f, _ := d.Float64()
	return f, nil
}

// CompareQty compares two quantities at the given rounding precision,
// returning -1, 0 or 1. Values whose difference vanishes once snapped to the
// precision step are considered equal, so binary float noise never trips a
// balance check.
func CompareQty(a, b, rounding float64) int {
	if rounding <= 0 {
		rounding = DefaultRounding
	}
	step := decimal.NewFromFloat(rounding)
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b))
	// Snap the difference to the precision grid; |diff| < step/2 rounds to 0.
	snapped := diff.Div(step).Round(0)
	switch {
	case snapped.IsZero():
		return 0
	case snapped.IsNegative():
		return -1
	default:
		return 1
	}
}

// RoundQty snaps a quantity to the unit's precision step.
func RoundQty(qty, rounding float64) float64 {
	if rounding <= 0 {
		rounding = DefaultRounding
	}
	step := decimal.NewFromFloat(rounding)
	f, _ := decimal.NewFromFloat(qty).Div(step).Round(0).Mul(step).Float64()
	return f
}
