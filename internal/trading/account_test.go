package trading

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
)

func TestDeliveryBuysAverageIntoOneHolding(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	_, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentCNC, models.OrderSideBuy, models.ProductCNC, 10))
	require.NoError(t, err)

	a.cat.set(eqKey("RELIANCE"), "2820")
	order, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentCNC, models.OrderSideBuy, models.ProductCNC, 5))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExecuted, order.Status)
	requireDecimal(t, "2820", *order.ExecutedPrice)

	holdings := a.Holdings()
	require.Len(t, holdings, 1)
	h := holdings[0]
	assert.Equal(t, "RELIANCE", h.Symbol)
	assert.Equal(t, 15, h.Quantity)
	requireDecimal(t, "2806.67", h.AveragePrice.Round(2))
	requireDecimal(t, "42100", h.InvestedValue)
	requireDecimal(t, "42300", h.CurrentValue)
	requireDecimal(t, "200", h.UnrealizedPnL)
	requireDecimal(t, "600", h.DayChange)

	assert.Empty(t, a.Positions())
	requireFunds(t, a.Funds(), "42100", "957900", "0")
}

func TestFuturesLotReservesMargin(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	order, err := a.SubmitOrder(testCtx, futMarket(models.OrderSideBuy, 250))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExecuted, order.Status)
	assert.Equal(t, 250, order.LotSize)

	positions := a.Positions()
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, futKey("RELIANCE").PositionID(), p.ID)
	assert.Equal(t, models.OrderSideBuy, p.Side)
	assert.Equal(t, 250, p.Quantity)
	requireDecimal(t, "2850", p.AveragePrice)
	requireDecimal(t, "85500", p.ReservedMargin)

	requireFunds(t, a.Funds(), "85500", "914500", "0")
}

func TestOffsettingFuturesOrderClosesPosition(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	_, err := a.SubmitOrder(testCtx, futMarket(models.OrderSideBuy, 250))
	require.NoError(t, err)

	a.cat.set(futKey("RELIANCE"), "2900")
	order, err := a.SubmitOrder(testCtx, futMarket(models.OrderSideSell, 250))
	require.NoError(t, err)
	requireDecimal(t, "12500", order.RealizedPnL)

	assert.Empty(t, a.Positions())
	requireFunds(t, a.Funds(), "0", "1012500", "12500")

	assert.Equal(t, []models.EventType{
		models.EventOrderExecuted,
		models.EventOrderExecuted,
		models.EventPositionClosed,
	}, a.sink.Types())
	closed := a.sink.Last()
	assert.Equal(t, 250, closed.Quantity)
	requireDecimal(t, "12500", closed.RealizedPnL)
}

func TestRejectedOrderLeavesNoTrace(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")
	before := a.Funds()

	order, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 1000))
	require.Error(t, err)
	assert.ErrorIs(t, err, terrors.ErrInsufficientMargin)

	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusRejected, order.Status)
	assert.NotEmpty(t, order.Reason)

	assert.Empty(t, a.Orders(models.OrderFilter{}))
	assert.Empty(t, a.Positions())
	assert.True(t, a.Funds().Equal(before))
	assert.Equal(t, models.EventOrderRejected, a.sink.Last().Type)
}

func TestSubmitOrderValidation(t *testing.T) {
	t.Parallel()

	opt := func(strike string, ot models.OptionType) models.OrderRequest {
		req := market("RELIANCE", models.SegmentOPT, models.OrderSideBuy, models.ProductNRML, 250)
		req.Expiry = testExpiry
		req.Strike = d(strike)
		req.OptionType = ot
		return req
	}

	tests := []struct {
		name string
		req  func() models.OrderRequest
		want error
	}{
		{"missing symbol", func() models.OrderRequest {
			return market("", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 1)
		}, terrors.ErrInvalidOrderParameters},
		{"unknown symbol", func() models.OrderRequest {
			return market("NOPE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 1)
		}, terrors.ErrUnknownSymbol},
		{"unknown segment", func() models.OrderRequest {
			return market("RELIANCE", models.Segment("MCX"), models.OrderSideBuy, models.ProductMIS, 1)
		}, terrors.ErrInvalidOrderParameters},
		{"bad side", func() models.OrderRequest {
			return market("RELIANCE", models.SegmentEQ, models.OrderSide("HOLD"), models.ProductMIS, 1)
		}, terrors.ErrInvalidOrderParameters},
		{"product not allowed", func() models.OrderRequest {
			return market("RELIANCE", models.SegmentCNC, models.OrderSideBuy, models.ProductMIS, 1)
		}, terrors.ErrInvalidOrderParameters},
		{"zero quantity", func() models.OrderRequest {
			return market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 0)
		}, terrors.ErrInvalidQuantity},
		{"negative quantity", func() models.OrderRequest {
			return market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, -5)
		}, terrors.ErrInvalidQuantity},
		{"not a lot multiple", func() models.OrderRequest {
			return futMarket(models.OrderSideBuy, 100)
		}, terrors.ErrInvalidQuantity},
		{"unlisted expiry", func() models.OrderRequest {
			req := futMarket(models.OrderSideBuy, 250)
			req.Expiry = "2030-01-31"
			return req
		}, terrors.ErrUnknownInstrument},
		{"no derivatives", func() models.OrderRequest {
			req := market("TCS", models.SegmentFUT, models.OrderSideBuy, models.ProductNRML, 150)
			req.Expiry = testExpiry
			return req
		}, terrors.ErrUnknownInstrument},
		{"unlisted strike", func() models.OrderRequest { return opt("3100", models.OptionCE) }, terrors.ErrUnknownInstrument},
		{"missing option type", func() models.OrderRequest { return opt("2900", "") }, terrors.ErrInvalidOrderParameters},
		{"unpriced contract", func() models.OrderRequest { return opt("2800", models.OptionPE) }, terrors.ErrUnknownInstrument},
		{"limit without price", func() models.OrderRequest {
			return limit("RELIANCE", models.OrderSideBuy, models.ProductMIS, 1, "0")
		}, terrors.ErrInvalidOrderParameters},
		{"stop without trigger", func() models.OrderRequest {
			req := limit("RELIANCE", models.OrderSideSell, models.ProductMIS, 1, "2700")
			req.Type = models.OrderTypeStopLoss
			return req
		}, terrors.ErrInvalidOrderParameters},
		{"sell without holding", func() models.OrderRequest {
			return market("RELIANCE", models.SegmentCNC, models.OrderSideSell, models.ProductCNC, 1)
		}, terrors.ErrInsufficientHoldings},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newTestAccount(t, "1000000")
			order, err := a.SubmitOrder(testCtx, tt.req())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, models.OrderStatusRejected, order.Status)
			assert.Empty(t, a.Orders(models.OrderFilter{}))
			requireFunds(t, a.Funds(), "0", "1000000", "0")
		})
	}
}

func TestOptionsBuyUsesPremium(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	req := market("RELIANCE", models.SegmentOPT, models.OrderSideBuy, models.ProductNRML, 500)
	req.Expiry = testExpiry
	req.Strike = d("2900")
	req.OptionType = models.OptionCE

	order, err := a.SubmitOrder(testCtx, req)
	require.NoError(t, err)
	requireDecimal(t, "45.50", *order.ExecutedPrice)

	p, err := a.Position(optKey("RELIANCE", "2900", models.OptionCE).PositionID())
	require.NoError(t, err)
	requireDecimal(t, "2730", p.ReservedMargin)
	requireFunds(t, a.Funds(), "2730", "997270", "0")
}

func TestPartialCloseThenFlip(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")
	id := eqKey("RELIANCE").PositionID()

	_, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 100))
	require.NoError(t, err)
	requireFunds(t, a.Funds(), "280000", "720000", "0")

	a.cat.set(eqKey("RELIANCE"), "2820")
	order, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideSell, models.ProductMIS, 40))
	require.NoError(t, err)
	requireDecimal(t, "800", order.RealizedPnL)

	p, err := a.Position(id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderSideBuy, p.Side)
	assert.Equal(t, 60, p.Quantity)
	requireDecimal(t, "2800", p.AveragePrice)
	requireDecimal(t, "168000", p.ReservedMargin)
	requireDecimal(t, "1200", p.UnrealizedPnL)
	requireFunds(t, a.Funds(), "168000", "832800", "800")

	a.cat.set(eqKey("RELIANCE"), "2790")
	order, err = a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideSell, models.ProductMIS, 100))
	require.NoError(t, err)
	requireDecimal(t, "-600", order.RealizedPnL)

	p, err = a.Position(id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderSideSell, p.Side)
	assert.Equal(t, 40, p.Quantity)
	requireDecimal(t, "2790", p.AveragePrice)
	requireDecimal(t, "111600", p.ReservedMargin)
	requireFunds(t, a.Funds(), "111600", "888600", "200")
}

func TestFlipRejectedWhenResidualUnaffordable(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "300000")

	_, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 100))
	require.NoError(t, err)
	before := a.Funds()

	// The short leg needs 280000 with 20000 available.
	order, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideSell, models.ProductMIS, 200))
	require.Error(t, err)
	assert.ErrorIs(t, err, terrors.ErrInsufficientMargin)
	assert.Equal(t, models.OrderStatusRejected, order.Status)

	assert.True(t, a.Funds().Equal(before))
	p, err := a.Position(eqKey("RELIANCE").PositionID())
	require.NoError(t, err)
	assert.Equal(t, 100, p.Quantity)
	assert.Len(t, a.Orders(models.OrderFilter{}), 1)
}

func TestDeliverySellRealizesAndReleases(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	_, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentCNC, models.OrderSideBuy, models.ProductCNC, 10))
	require.NoError(t, err)

	a.cat.set(eqKey("RELIANCE"), "2900")
	order, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentCNC, models.OrderSideSell, models.ProductCNC, 4))
	require.NoError(t, err)
	requireDecimal(t, "400", order.RealizedPnL)

	holdings := a.Holdings()
	require.Len(t, holdings, 1)
	assert.Equal(t, 6, holdings[0].Quantity)
	requireDecimal(t, "16800", holdings[0].InvestedValue)
	requireDecimal(t, "2800", holdings[0].AveragePrice)
	requireFunds(t, a.Funds(), "16800", "983600", "400")
	assert.Equal(t, models.EventHoldingSold, a.sink.Last().Type)

	_, err = a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentCNC, models.OrderSideSell, models.ProductCNC, 7))
	assert.ErrorIs(t, err, terrors.ErrInsufficientHoldings)

	_, err = a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentCNC, models.OrderSideSell, models.ProductCNC, 6))
	require.NoError(t, err)
	assert.Empty(t, a.Holdings())
	requireFunds(t, a.Funds(), "0", "1001000", "1000")
}

func TestEquityProductCNCRoutesToHoldings(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	_, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductCNC, 3))
	require.NoError(t, err)
	assert.Empty(t, a.Positions())
	require.Len(t, a.Holdings(), 1)
	requireDecimal(t, "8400", a.Holdings()[0].InvestedValue)
}

func TestPendingDeliverySellReservesShares(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	_, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentCNC, models.OrderSideBuy, models.ProductCNC, 10))
	require.NoError(t, err)

	sell := limit("RELIANCE", models.OrderSideSell, models.ProductCNC, 8, "3000")
	sell.Segment = models.SegmentCNC
	resting, err := a.SubmitOrder(testCtx, sell)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusOpen, resting.Status)
	assert.True(t, resting.ReservedMargin.IsZero())

	_, err = a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentCNC, models.OrderSideSell, models.ProductCNC, 5))
	assert.ErrorIs(t, err, terrors.ErrInsufficientHoldings)

	_, err = a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentCNC, models.OrderSideSell, models.ProductCNC, 2))
	require.NoError(t, err)
}

func TestCancelOrderReleasesEscrow(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	order, err := a.SubmitOrder(testCtx, limit("RELIANCE", models.OrderSideBuy, models.ProductMIS, 10, "2750"))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusOpen, order.Status)
	requireDecimal(t, "27500", order.ReservedMargin)
	requireFunds(t, a.Funds(), "27500", "972500", "0")
	assert.Len(t, a.OpenOrders(), 1)

	cancelled, err := a.CancelOrder(testCtx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.True(t, cancelled.ReservedMargin.IsZero())
	requireFunds(t, a.Funds(), "0", "1000000", "0")
	assert.Empty(t, a.OpenOrders())
	assert.Equal(t, models.EventOrderCancelled, a.sink.Last().Type)

	_, err = a.CancelOrder(testCtx, order.ID)
	assert.ErrorIs(t, err, terrors.ErrInvalidCancelState)

	_, err = a.CancelOrder(testCtx, "ORD-missing")
	assert.ErrorIs(t, err, terrors.ErrOrderNotFound)

	stored, err := a.Order(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)
}

func TestCancelExecutedOrderFails(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	order, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 1))
	require.NoError(t, err)

	_, err = a.CancelOrder(testCtx, order.ID)
	var oe *terrors.OrderError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, order.ID, oe.OrderID)
	assert.ErrorIs(t, err, terrors.ErrInvalidCancelState)
}

func TestSquareOffClosesAtMarket(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	_, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 100))
	require.NoError(t, err)

	a.cat.set(eqKey("RELIANCE"), "2810")
	pnl, err := a.SquareOff(testCtx, eqKey("RELIANCE").PositionID())
	require.NoError(t, err)
	requireDecimal(t, "1000", pnl)

	assert.Empty(t, a.Positions())
	requireFunds(t, a.Funds(), "0", "1001000", "1000")

	orders := a.Orders(models.OrderFilter{})
	require.Len(t, orders, 2)
	last := orders[1]
	assert.Equal(t, TagSquareOff, last.Tag)
	assert.Equal(t, models.OrderSideSell, last.Side)
	assert.Equal(t, models.OrderTypeMarket, last.Type)
	assert.Equal(t, models.OrderStatusExecuted, last.Status)
	assert.Equal(t, 100, last.Quantity)

	_, err = a.SquareOff(testCtx, "POS-NOPE")
	assert.ErrorIs(t, err, terrors.ErrPositionNotFound)
}

func TestSquareOffAll(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	_, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 10))
	require.NoError(t, err)
	_, err = a.SubmitOrder(testCtx, market("TCS", models.SegmentEQ, models.OrderSideSell, models.ProductMIS, 10))
	require.NoError(t, err)

	a.cat.set(eqKey("RELIANCE"), "2790")
	a.cat.set(eqKey("TCS"), "4100.80")

	total, err := a.SquareOffAll(testCtx)
	require.NoError(t, err)
	requireDecimal(t, "150", total)
	assert.Empty(t, a.Positions())
	requireFunds(t, a.Funds(), "0", "1000150", "150")
}

func TestResetRestoresInitialState(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")
	initial := a.Funds()

	_, err := a.SubmitOrder(testCtx, futMarket(models.OrderSideBuy, 250))
	require.NoError(t, err)
	_, err = a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentCNC, models.OrderSideBuy, models.ProductCNC, 10))
	require.NoError(t, err)
	_, err = a.SubmitOrder(testCtx, limit("TCS", models.OrderSideBuy, models.ProductMIS, 5, "4000"))
	require.NoError(t, err)

	funds, err := a.Reset(testCtx)
	require.NoError(t, err)
	assert.True(t, funds.Equal(initial))
	assert.Empty(t, a.Orders(models.OrderFilter{}))
	assert.Empty(t, a.Positions())
	assert.Empty(t, a.Holdings())
	assert.Equal(t, models.EventReset, a.sink.Last().Type)

	again, err := a.Reset(testCtx)
	require.NoError(t, err)
	assert.True(t, again.Equal(funds))
}

func TestOrdersFilterAndSequence(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	first, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 1))
	require.NoError(t, err)
	second, err := a.SubmitOrder(testCtx, limit("TCS", models.OrderSideBuy, models.ProductMIS, 1, "4000"))
	require.NoError(t, err)

	all := a.Orders(models.OrderFilter{})
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)

	open := a.Orders(models.OrderFilter{Status: models.OrderStatusOpen})
	require.Len(t, open, 1)
	assert.Equal(t, "TCS", open[0].Symbol)

	bySymbol := a.Orders(models.OrderFilter{Symbol: "RELIANCE"})
	require.Len(t, bySymbol, 1)
	assert.Equal(t, models.OrderStatusExecuted, bySymbol[0].Status)
}

func TestReturnedOrdersAreCopies(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	order, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 1))
	require.NoError(t, err)
	*order.ExecutedPrice = d("1")
	order.Status = models.OrderStatusCancelled

	stored, err := a.Order(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExecuted, stored.Status)
	requireDecimal(t, "2800", *stored.ExecutedPrice)
}

func TestEventsCarrySequenceAndFunds(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	_, err := a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 10))
	require.NoError(t, err)
	_, err = a.SubmitOrder(testCtx, limit("RELIANCE", models.OrderSideBuy, models.ProductMIS, 10, "2700"))
	require.NoError(t, err)

	events := a.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(2), events[1].Seq)
	assert.Equal(t, "test", events[0].AccountID)
	assert.Equal(t, models.EventOrderPlaced, events[1].Type)
	requireDecimal(t, "28000", events[0].Funds.UsedMargin)
	requireDecimal(t, "55000", events[1].Funds.UsedMargin)
}

func TestCancelledContextIsRejected(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.SubmitOrder(ctx, market("RELIANCE", models.SegmentEQ, models.OrderSideBuy, models.ProductMIS, 1))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = a.Reset(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, a.sink.Events())
}

func TestConcurrentCommandsKeepFundsConsistent(t *testing.T) {
	t.Parallel()
	a := newTestAccount(t, "1000000")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			side := models.OrderSideBuy
			if i%2 == 1 {
				side = models.OrderSideSell
			}
			for j := 0; j < 20; j++ {
				_, _ = a.SubmitOrder(testCtx, market("RELIANCE", models.SegmentEQ, side, models.ProductMIS, 1+j%3))
				_ = a.Funds()
				_ = a.Positions()
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, CheckFunds(a.Funds()))
	events := a.sink.Events()
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq)
	}

	// Equal buys and sells at one price net to flat with nothing realized.
	assert.Empty(t, a.Positions())
	assert.True(t, a.Funds().RealizedPnL.Equal(decimal.Zero))
}
