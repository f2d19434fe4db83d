package trading

import (
	"github.com/shopspring/decimal"

	"paper-trader/internal/models"
)

// UnrealizedPnL is (ltp - avg) × qty for longs and the negation for shorts.
func UnrealizedPnL(side models.OrderSide, avg, ltp decimal.Decimal, qty int) decimal.Decimal {
	return ltp.Sub(avg).Mul(decimal.NewFromInt(int64(qty))).Mul(side.Sign()).Round(2)
}

// pnlPercent returns pnl / base × 100, or zero when base is zero.
func pnlPercent(pnl, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(base).Mul(hundred).Round(2)
}

// markPosition returns a copy of p valued at ltp.
func markPosition(p *models.Position, ltp decimal.Decimal) models.Position {
	out := *p
	if ltp.IsPositive() {
		out.LTP = ltp
	}
	out.UnrealizedPnL = UnrealizedPnL(out.Side, out.AveragePrice, out.LTP, out.Quantity)
	cost := out.AveragePrice.Mul(decimal.NewFromInt(int64(out.Quantity)))
	out.UnrealizedPnLPercent = pnlPercent(out.UnrealizedPnL, cost)
	return out
}

// markHolding returns a copy of h valued at the quote. A zero quote keeps
// the stored LTP and reports no day change.
func markHolding(h *models.Holding, q models.Quote) models.Holding {
	out := *h
	if q.LTP.IsPositive() {
		out.LTP = q.LTP
	}
	qty := decimal.NewFromInt(int64(out.Quantity))
	out.CurrentValue = out.LTP.Mul(qty).Round(2)
	out.UnrealizedPnL = out.CurrentValue.Sub(out.InvestedValue)
	out.UnrealizedPnLPercent = pnlPercent(out.UnrealizedPnL, out.InvestedValue)
	out.DayChange = decimal.Zero
	out.DayChangePercent = decimal.Zero
	if q.LTP.IsPositive() && q.PreviousClose.IsPositive() {
		out.DayChange = q.Change().Mul(qty).Round(2)
		out.DayChangePercent = q.ChangePercent()
	}
	return out
}
