// Package trading provides the paper trading engine: margin, funds ledger,
// position and holdings books, and the per-account order router.
package trading

import (
	"github.com/shopspring/decimal"

	"paper-trader/internal/models"
)

// DefaultDerivativeMarginRate is the flat fraction of notional reserved for
// futures and options. It stands in for SPAN + exposure margin.
var DefaultDerivativeMarginRate = decimal.RequireFromString("0.12")

var hundred = decimal.NewFromInt(100)

// MarginCalculator maps (segment, quantity, price) to required margin.
type MarginCalculator struct {
	DerivativeRate decimal.Decimal
}

// NewMarginCalculator returns a calculator using rate for FUT/OPT. A
// non-positive rate falls back to DefaultDerivativeMarginRate.
func NewMarginCalculator(rate decimal.Decimal) MarginCalculator {
	if !rate.IsPositive() {
		rate = DefaultDerivativeMarginRate
	}
	return MarginCalculator{DerivativeRate: rate}
}

// DefaultMarginCalculator returns a calculator with the default rate.
func DefaultMarginCalculator() MarginCalculator {
	return NewMarginCalculator(DefaultDerivativeMarginRate)
}

// Compute returns the margin required to hold quantity units at price,
// rounded to paise. EQ and CNC need full notional.
func (m MarginCalculator) Compute(segment models.Segment, quantity int, price decimal.Decimal) decimal.Decimal {
	if quantity <= 0 || !price.IsPositive() {
		return decimal.Zero
	}
	notional := price.Mul(decimal.NewFromInt(int64(quantity)))

	rate := m.DerivativeRate
	if !rate.IsPositive() {
		rate = DefaultDerivativeMarginRate
	}

	switch segment {
	case models.SegmentFUT, models.SegmentOPT:
		return notional.Mul(rate).Round(2)
	case models.SegmentEQ, models.SegmentCNC:
		return notional.Round(2)
	default:
		return notional.Round(2)
	}
}

// ComputeMargin uses the default calculator.
func ComputeMargin(segment models.Segment, quantity int, price decimal.Decimal) decimal.Decimal {
	return DefaultMarginCalculator().Compute(segment, quantity, price)
}
