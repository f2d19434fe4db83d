package trading

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
)

// ApplyTick marks positions at the new price and fills any resting order
// on the instrument whose condition the price satisfies. Orders are tried
// in submission order. Returns the orders that filled.
func (a *Account) ApplyTick(ctx context.Context, tick models.Tick) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !tick.LTP.IsPositive() {
		return nil, terrors.NewValidationError("ltp", tick.LTP, "tick price must be positive", terrors.ErrInvalidOrderParameters)
	}

	a.mu.Lock()
	filled, events := a.match(tick)
	a.unlockAndPublish(events)
	return filled, nil
}

func (a *Account) match(tick models.Tick) ([]models.Order, []models.Event) {
	now := a.clock()
	key := tick.Key.Normalize()
	priceKey := key.PriceKey()

	a.positions.Mark(key, tick.LTP, now)
	if key.Segment == models.SegmentEQ || key.Segment == models.SegmentCNC {
		a.holdings.Mark(key.Symbol, tick.LTP, now)
	}

	var filled []models.Order
	var events []models.Event
	for _, id := range a.sequence {
		order := a.orders[id]
		if order.Status != models.OrderStatusOpen || order.Key().PriceKey() != priceKey {
			continue
		}
		price, ok := crosses(order, tick.LTP)
		if !ok {
			continue
		}

		plan, err := a.fillResting(order, price, now)
		if err != nil {
			a.logger.Warn().
				Str("order_id", order.ID).
				Str("price", price.StringFixed(2)).
				Err(err).
				Msg("Resting order crossed but could not fill")
			continue
		}
		filled = append(filled, order.Clone())
		events = append(events, a.fillEvents(order, plan, now)...)
	}
	return filled, events
}

// fillResting swaps the order's escrow for the real fill. If the fill is no
// longer affordable the escrow is restored and the order stays OPEN.
func (a *Account) fillResting(order *models.Order, price decimal.Decimal, now time.Time) (FillPlan, error) {
	escrow := order.ReservedMargin
	a.ledger.Release(escrow)

	plan, err := a.plan(Fill{
		Key:      order.Key(),
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    price,
		Product:  order.Product,
		LotSize:  order.LotSize,
	})
	if err == nil {
		err = a.affordable(plan, order.Symbol)
	}
	if err == nil {
		order.ReservedMargin = decimal.Zero
		err = a.execute(order, plan, now)
		if err != nil {
			order.ReservedMargin = escrow
		}
	}
	if err != nil {
		if rerr := a.ledger.Reserve(escrow); rerr != nil {
			a.logger.Error().Err(rerr).Str("order_id", order.ID).Msg("Failed to restore escrow")
		}
		order.UpdatedAt = now
		return plan, err
	}
	return plan, nil
}

// crosses reports whether ltp satisfies the order and the price it fills
// at. A crossed limit fills at the better of its limit and ltp. Stop orders
// latch Triggered once their trigger is touched.
func crosses(order *models.Order, ltp decimal.Decimal) (decimal.Decimal, bool) {
	switch order.Type {
	case models.OrderTypeLimit:
		return limitCross(order.Side, order.Price, ltp)
	case models.OrderTypeStopLoss:
		if !order.Triggered && stopTouched(order.Side, order.TriggerPrice, ltp) {
			order.Triggered = true
		}
		if !order.Triggered {
			return decimal.Zero, false
		}
		return limitCross(order.Side, order.Price, ltp)
	case models.OrderTypeStopLossM:
		if !order.Triggered && stopTouched(order.Side, order.TriggerPrice, ltp) {
			order.Triggered = true
		}
		if !order.Triggered {
			return decimal.Zero, false
		}
		return ltp, true
	}
	return decimal.Zero, false
}

func limitCross(side models.OrderSide, limit, ltp decimal.Decimal) (decimal.Decimal, bool) {
	if side == models.OrderSideBuy && ltp.LessThanOrEqual(limit) {
		return decimal.Min(limit, ltp), true
	}
	if side == models.OrderSideSell && ltp.GreaterThanOrEqual(limit) {
		return decimal.Max(limit, ltp), true
	}
	return decimal.Zero, false
}

func stopTouched(side models.OrderSide, trigger, ltp decimal.Decimal) bool {
	if side == models.OrderSideBuy {
		return ltp.GreaterThanOrEqual(trigger)
	}
	return ltp.LessThanOrEqual(trigger)
}
