package precision

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"signalTraderBot/internal/domain"
	"signalTraderBot/internal/ports"
)

// Rounding uses integer-tick arithmetic on decimals rather than native float
// rounding: venues reject orders carrying dust beyond the legal grid, and a
// float division like 10.0049/0.01 is not guaranteed to floor cleanly.

// RoundPrice floors price to the nearest multiple of the rule's price
// increment. A price that would round to zero or below is replaced by one
// increment; the second return value reports that clamp so callers can warn.
// Prices must never reach zero.
func RoundPrice(price float64, rule *domain.TradingRule) (float64, bool) {
	inc := rule.PriceIncrement
	if inc <= 0 {
		inc = domain.DefaultPriceIncrement
	}

	step := decimal.NewFromFloat(inc)
	rounded := decimal.NewFromFloat(price).Div(step).Floor().Mul(step)
	if prec := rule.PricePrecision; prec > 0 {
		rounded = rounded.Truncate(int32(prec))
	}

	v, _ := rounded.Float64()
	if v <= 0 {
		return inc, true
	}
	return v, false
}

// RoundQuantity floors quantity to the nearest multiple of the rule's
// quantity increment. A result below the venue minimum yields
// ErrQuantityBelowMinimum instead of being silently promoted: only the final
// remainder leg of a TP ladder may legitimately clamp upward, and that is the
// caller's decision, never the rounder's.
func RoundQuantity(quantity float64, rule *domain.TradingRule) (float64, error) {
	rounded := FloorToStep(quantity, rule)
	if rounded < rule.MinQuantity || rounded <= 0 {
		return 0, fmt.Errorf("quantity %v rounds to %v, below minimum %v: %w",
			quantity, rounded, rule.MinQuantity, ports.ErrQuantityBelowMinimum)
	}
	return rounded, nil
}

// FloorToStep floors quantity to the quantity grid without enforcing the
// venue minimum. It is the allocation primitive for the TP ladder, where a
// sub-minimum rung is skipped rather than rejected.
func FloorToStep(quantity float64, rule *domain.TradingRule) float64 {
	inc := rule.QuantityIncrement
	if inc <= 0 {
		inc = domain.DefaultQuantityIncrement
	}
	if quantity <= 0 {
		return 0
	}

	step := decimal.NewFromFloat(inc)
	rounded := decimal.NewFromFloat(quantity).Div(step).Floor().Mul(step)
	if prec := rule.QuantityPrecision; prec >= 0 {
		rounded = rounded.Truncate(int32(prec))
	}

	v, _ := rounded.Float64()
	if v < 0 {
		return 0
	}
	return v
}

// CeilSteps returns the number of whole increments separating base from
// target in the given direction, rounded up. Used by the planner to push
// successive TP targets onto distinct grid points.
func CeilSteps(base, target, increment float64) int64 {
	if increment <= 0 {
		return 0
	}
	diff := decimal.NewFromFloat(target).Sub(decimal.NewFromFloat(base))
	return diff.Div(decimal.NewFromFloat(increment)).Ceil().IntPart()
}

// AddSteps returns base moved by n increments (n may be negative).
func AddSteps(base float64, n int64, increment float64) float64 {
	v, _ := decimal.NewFromFloat(base).
		Add(decimal.NewFromInt(n).Mul(decimal.NewFromFloat(increment))).
		Float64()
	return v
}

// PriceString formats a price at the rule's declared precision for the venue
// wire format.
func PriceString(price float64, rule *domain.TradingRule) string {
	return strconv.FormatFloat(price, 'f', rule.PricePrecision, 64)
}

// QuantityString formats a quantity at the rule's declared precision.
func QuantityString(quantity float64, rule *domain.TradingRule) string {
	return strconv.FormatFloat(quantity, 'f', rule.QuantityPrecision, 64)
}
