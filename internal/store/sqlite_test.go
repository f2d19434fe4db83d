package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trader/internal/models"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func executed(account, orderID string, seq uint64, side models.OrderSide, price, pnl string, at time.Time) models.Event {
	o := &models.Order{
		ID:          orderID,
		AccountID:   account,
		Symbol:      "RELIANCE",
		Segment:     models.SegmentEQ,
		Side:        side,
		Type:        models.OrderTypeMarket,
		Product:     models.ProductMIS,
		Quantity:    10,
		Status:      models.OrderStatusExecuted,
		RealizedPnL: decimal.RequireFromString(pnl),
	}
	return models.Event{
		Seq:       seq,
		Type:      models.EventOrderExecuted,
		AccountID: account,
		Order:     o,
		Key:       o.Key(),
		Quantity:  o.Quantity,
		Price:     decimal.RequireFromString(price),
		Timestamp: at,
	}
}

func TestJournalRecordsTradesAndEvents(t *testing.T) {
	t.Parallel()
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 14, 9, 15, 0, 0, time.UTC)

	require.NoError(t, j.RecordEvent(ctx, executed("alpha", "ORD-1", 1, models.OrderSideBuy, "2800", "0", base)))
	require.NoError(t, j.RecordEvent(ctx, executed("alpha", "ORD-2", 3, models.OrderSideSell, "2850", "500", base.Add(time.Minute))))
	require.NoError(t, j.RecordEvent(ctx, models.Event{Seq: 4, Type: models.EventPositionClosed, AccountID: "alpha", Timestamp: base.Add(time.Minute)}))
	require.NoError(t, j.RecordEvent(ctx, executed("beta", "ORD-3", 1, models.OrderSideBuy, "2801.5", "0", base.Add(2*time.Minute))))

	trades, err := j.Trades(ctx, TradeFilter{AccountID: "alpha"})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "ORD-2", trades[0].OrderID, "newest first")
	assert.Equal(t, models.OrderSideSell, trades[0].Side)
	assert.True(t, trades[0].Price.Equal(decimal.RequireFromString("2850")))
	assert.True(t, trades[0].RealizedPnL.Equal(decimal.RequireFromString("500")))
	assert.Equal(t, models.InstrumentKey{Symbol: "RELIANCE", Segment: models.SegmentEQ}.PositionID(), trades[0].Instrument)

	buys, err := j.Trades(ctx, TradeFilter{Side: models.OrderSideBuy})
	require.NoError(t, err)
	assert.Len(t, buys, 2)

	windowed, err := j.Trades(ctx, TradeFilter{StartDate: base.Add(30 * time.Second), EndDate: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "ORD-2", windowed[0].OrderID)

	limited, err := j.Trades(ctx, TradeFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "beta", limited[0].AccountID)

	events, err := j.Events(ctx, EventFilter{AccountID: "alpha"})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []uint64{1, 3, 4}, []uint64{events[0].Seq, events[1].Seq, events[2].Seq})
	assert.Equal(t, models.EventPositionClosed, events[2].Type)

	var decoded models.Event
	require.NoError(t, json.Unmarshal([]byte(events[1].Payload), &decoded))
	assert.Equal(t, "ORD-2", decoded.Order.ID)

	closed, err := j.Events(ctx, EventFilter{Type: models.EventPositionClosed})
	require.NoError(t, err)
	assert.Len(t, closed, 1)
}

func TestJournalReopensExistingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := NewSQLiteJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordEvent(ctx, models.Event{Seq: 1, Type: models.EventReset, AccountID: "alpha", Timestamp: time.Now()}))
	require.NoError(t, j.Close())

	j, err = NewSQLiteJournal(path)
	require.NoError(t, err)
	defer j.Close()

	events, err := j.Events(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventReset, events[0].Type)
}

func TestJournalRespectsCancelledContext(t *testing.T) {
	t.Parallel()
	j := newTestJournal(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, j.RecordEvent(ctx, models.Event{Seq: 1, Type: models.EventReset, AccountID: "alpha", Timestamp: time.Now()}))
}

type flakyJournal struct {
	Journal
	mu       sync.Mutex
	failures int
	recorded []models.Event
}

func (f *flakyJournal) RecordEvent(_ context.Context, ev models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("database is locked")
	}
	f.recorded = append(f.recorded, ev)
	return nil
}

func TestRecorderRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	fj := &flakyJournal{failures: 2}
	r := NewRecorder(fj, zerolog.Nop())
	r.retry.InitialDelay = time.Millisecond

	r.OnEvent(models.Event{Seq: 7, Type: models.EventOrderPlaced, AccountID: "alpha"})
	require.Len(t, fj.recorded, 1)
	assert.Equal(t, uint64(7), fj.recorded[0].Seq)
	assert.Nil(t, r.Accounts())

	fj.failures = 10
	r.OnEvent(models.Event{Seq: 8, Type: models.EventOrderPlaced, AccountID: "alpha"})
	assert.Len(t, fj.recorded, 1)
}

func TestProperty_TradePricesRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 14, 9, 15, 0, 0, time.UTC)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	var n uint64

	properties.Property("price and pnl survive the journal exactly", prop.ForAll(
		func(pricePaise, pnlPaise int64) bool {
			n++
			price := decimal.New(pricePaise, -2)
			pnl := decimal.New(pnlPaise, -2)
			orderID := "ORD-P-" + decimal.NewFromInt(int64(n)).String()
			account := "prop-" + orderID

			if err := j.RecordEvent(ctx, executed(account, orderID, n, models.OrderSideSell, price.String(), pnl.String(), base)); err != nil {
				return false
			}
			trades, err := j.Trades(ctx, TradeFilter{AccountID: account})
			if err != nil || len(trades) != 1 {
				return false
			}
			return trades[0].Price.Equal(price) && trades[0].RealizedPnL.Equal(pnl)
		},
		gen.Int64Range(5, 100000000),
		gen.Int64Range(-100000000, 100000000),
	))

	properties.TestingRun(t)
}
