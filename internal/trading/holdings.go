package trading

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
)

// HoldingsBook accumulates delivery (CNC) buys by symbol. Invested value
// stays locked in used margin for as long as the shares are held.
type HoldingsBook struct {
	holdings map[string]*models.Holding
}

// NewHoldingsBook creates an empty book.
func NewHoldingsBook() *HoldingsBook {
	return &HoldingsBook{holdings: make(map[string]*models.Holding)}
}

// Get returns the stored holding for symbol.
func (b *HoldingsBook) Get(symbol string) (*models.Holding, bool) {
	h, ok := b.holdings[symbol]
	return h, ok
}

// Quantity returns the held quantity of symbol.
func (b *HoldingsBook) Quantity(symbol string) int {
	if h, ok := b.holdings[symbol]; ok {
		return h.Quantity
	}
	return 0
}

// Len returns the number of holdings.
func (b *HoldingsBook) Len() int { return len(b.holdings) }

// All returns the stored holdings ordered by symbol.
func (b *HoldingsBook) All() []*models.Holding {
	out := make([]*models.Holding, 0, len(b.holdings))
	for _, h := range b.holdings {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Plan computes the effect of a CNC fill. A SELL larger than the holding
// fails with ErrInsufficientHoldings.
func (b *HoldingsBook) Plan(f Fill, calc MarginCalculator) (FillPlan, error) {
	plan := FillPlan{Fill: f}
	if f.Side == models.OrderSideBuy {
		plan.OpenQty = f.Quantity
		plan.RequiredMargin = calc.Compute(models.SegmentCNC, f.Quantity, f.Price)
		return plan, nil
	}

	h, ok := b.holdings[f.Key.Symbol]
	if !ok || h.Quantity < f.Quantity {
		held := 0
		if ok {
			held = h.Quantity
		}
		return plan, terrors.NewValidationError("quantity", f.Quantity,
			"sell exceeds held quantity "+strconv.Itoa(held), terrors.ErrInsufficientHoldings)
	}

	plan.CloseQty = f.Quantity
	plan.RealizedPnL = closingPnL(models.OrderSideBuy, h.AveragePrice, f.Price, f.Quantity)

	remaining := h.Quantity - f.Quantity
	if remaining == 0 {
		plan.Closed = true
		plan.ReleasedMargin = h.InvestedValue
	} else {
		plan.ReleasedMargin = h.InvestedValue.Sub(investedFor(h.AveragePrice, remaining))
	}
	return plan, nil
}

// Commit applies a plan produced by Plan.
func (b *HoldingsBook) Commit(plan FillPlan, ledger *Ledger, now time.Time) (*models.Holding, error) {
	f := plan.Fill
	symbol := f.Key.Symbol

	if f.Side == models.OrderSideSell {
		h, ok := b.holdings[symbol]
		if !ok {
			return nil, terrors.ErrInsufficientHoldings
		}
		ledger.Release(plan.ReleasedMargin)
		ledger.Realize(plan.RealizedPnL)
		if plan.Closed {
			delete(b.holdings, symbol)
			return nil, nil
		}
		h.Quantity -= plan.CloseQty
		h.InvestedValue = h.InvestedValue.Sub(plan.ReleasedMargin)
		h.LTP = f.Price
		h.UpdatedAt = now
		return h, nil
	}

	if err := ledger.Reserve(plan.RequiredMargin); err != nil {
		return nil, err
	}

	h, ok := b.holdings[symbol]
	if !ok {
		h = &models.Holding{Symbol: symbol}
		b.holdings[symbol] = h
	}
	h.InvestedValue = h.InvestedValue.Add(plan.RequiredMargin)
	h.Quantity += f.Quantity
	h.AveragePrice = h.InvestedValue.Div(decimal.NewFromInt(int64(h.Quantity)))
	h.LTP = f.Price
	h.UpdatedAt = now
	return h, nil
}

// Mark updates the stored last traded price of symbol.
func (b *HoldingsBook) Mark(symbol string, ltp decimal.Decimal, now time.Time) {
	if h, ok := b.holdings[symbol]; ok {
		h.LTP = ltp
		h.UpdatedAt = now
	}
}

func investedFor(avg decimal.Decimal, qty int) decimal.Decimal {
	return avg.Mul(decimal.NewFromInt(int64(qty))).Round(2)
}
