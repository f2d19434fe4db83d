package trading

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"paper-trader/internal/models"
)

// Fill is one execution against an instrument.
type Fill struct {
	Key      models.InstrumentKey
	Side     models.OrderSide
	Quantity int
	Price    decimal.Decimal
	Product  models.ProductType
	LotSize  int
}

// FillPlan is the accounting effect of a fill, computed before anything is
// mutated so that a rejected fill leaves no trace.
type FillPlan struct {
	Fill Fill

	// CloseQty is the part of the fill that offsets existing exposure.
	CloseQty int
	// OpenQty is the part that adds exposure and needs margin.
	OpenQty int

	RealizedPnL    decimal.Decimal
	ReleasedMargin decimal.Decimal
	RequiredMargin decimal.Decimal

	// Closed is set when the existing position or holding goes flat.
	Closed bool
}

// AvailableAfterClose returns what available becomes once the closing leg
// settles, before any new margin is reserved.
func (p FillPlan) AvailableAfterClose(available decimal.Decimal) decimal.Decimal {
	return available.Add(p.ReleasedMargin).Add(p.RealizedPnL)
}

// PositionBook nets intraday and derivative fills into one position per
// instrument. Not safe for concurrent use.
type PositionBook struct {
	positions map[string]*models.Position
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[string]*models.Position)}
}

// Get returns the stored position by ID.
func (b *PositionBook) Get(id string) (*models.Position, bool) {
	p, ok := b.positions[id]
	return p, ok
}

// Len returns the number of open positions.
func (b *PositionBook) Len() int { return len(b.positions) }

// All returns the stored positions ordered by open time.
func (b *PositionBook) All() []*models.Position {
	out := make([]*models.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Plan computes the effect of f without changing the book.
func (b *PositionBook) Plan(f Fill, calc MarginCalculator) FillPlan {
	plan := FillPlan{Fill: f}
	existing, ok := b.positions[f.Key.PositionID()]

	if !ok || existing.Side == f.Side {
		plan.OpenQty = f.Quantity
		plan.RequiredMargin = calc.Compute(f.Key.Segment, f.Quantity, f.Price)
		return plan
	}

	plan.CloseQty = minInt(f.Quantity, existing.Quantity)
	plan.OpenQty = f.Quantity - plan.CloseQty
	plan.RealizedPnL = closingPnL(existing.Side, existing.AveragePrice, f.Price, plan.CloseQty)

	remaining := existing.Quantity - plan.CloseQty
	if remaining == 0 {
		plan.Closed = true
		plan.ReleasedMargin = existing.ReservedMargin
	} else {
		plan.ReleasedMargin = existing.ReservedMargin.Sub(proRata(existing.ReservedMargin, remaining, existing.Quantity))
	}
	if plan.OpenQty > 0 {
		plan.RequiredMargin = calc.Compute(f.Key.Segment, plan.OpenQty, f.Price)
	}
	return plan
}

// Commit applies a plan produced by Plan to the book and ledger. The
// caller must have checked that RequiredMargin is affordable.
func (b *PositionBook) Commit(plan FillPlan, ledger *Ledger, now time.Time) (*models.Position, error) {
	f := plan.Fill
	id := f.Key.PositionID()
	existing, ok := b.positions[id]

	if plan.CloseQty > 0 && ok {
		ledger.Release(plan.ReleasedMargin)
		ledger.Realize(plan.RealizedPnL)
		if plan.Closed {
			delete(b.positions, id)
		} else {
			existing.ReservedMargin = existing.ReservedMargin.Sub(plan.ReleasedMargin)
			existing.Quantity -= plan.CloseQty
			existing.LTP = f.Price
			existing.UpdatedAt = now
		}
	}

	if plan.OpenQty == 0 {
		if p, ok := b.positions[id]; ok {
			return p, nil
		}
		return nil, nil
	}

	if err := ledger.Reserve(plan.RequiredMargin); err != nil {
		return nil, err
	}

	if p, ok := b.positions[id]; ok && p.Side == f.Side {
		total := p.Quantity + plan.OpenQty
		p.AveragePrice = weightedAverage(p.AveragePrice, p.Quantity, f.Price, plan.OpenQty)
		p.Quantity = total
		p.ReservedMargin = p.ReservedMargin.Add(plan.RequiredMargin)
		p.LTP = f.Price
		p.UpdatedAt = now
		return p, nil
	}

	p := &models.Position{
		ID:             id,
		Key:            f.Key,
		Side:           f.Side,
		Quantity:       plan.OpenQty,
		AveragePrice:   f.Price,
		LTP:            f.Price,
		Product:        f.Product,
		LotSize:        f.LotSize,
		ReservedMargin: plan.RequiredMargin,
		OpenedAt:       now,
		UpdatedAt:      now,
	}
	b.positions[id] = p
	return p, nil
}

// Mark updates the stored last traded price of every position on key.
func (b *PositionBook) Mark(key models.InstrumentKey, ltp decimal.Decimal, now time.Time) {
	for _, p := range b.positions {
		if p.Key.PriceKey() == key.PriceKey() {
			p.LTP = ltp
			p.UpdatedAt = now
		}
	}
}

func closingPnL(side models.OrderSide, avg, exit decimal.Decimal, qty int) decimal.Decimal {
	return exit.Sub(avg).Mul(decimal.NewFromInt(int64(qty))).Mul(side.Sign()).Round(2)
}

func weightedAverage(avg decimal.Decimal, qty int, price decimal.Decimal, addQty int) decimal.Decimal {
	cost := avg.Mul(decimal.NewFromInt(int64(qty))).Add(price.Mul(decimal.NewFromInt(int64(addQty))))
	return cost.Div(decimal.NewFromInt(int64(qty + addQty)))
}

// proRata returns amount × part / whole rounded to paise.
func proRata(amount decimal.Decimal, part, whole int) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return amount.Mul(decimal.NewFromInt(int64(part))).Div(decimal.NewFromInt(int64(whole))).Round(2)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
