package trading

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
)

const testExpiry = "2026-10-29"

var testCtx = context.Background()

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// stubCatalog prices a small fixed universe by price key.
type stubCatalog struct {
	mu        sync.Mutex
	lots      map[string]int
	contracts map[string]models.Contracts
	prices    map[string]decimal.Decimal
	prev      map[string]decimal.Decimal
}

func newStubCatalog() *stubCatalog {
	c := &stubCatalog{
		lots: map[string]int{"RELIANCE": 250, "TCS": 150},
		contracts: map[string]models.Contracts{
			"RELIANCE": {
				Symbol:   "RELIANCE",
				LotSize:  250,
				Expiries: []string{testExpiry},
				Strikes:  []decimal.Decimal{d("2800"), d("2850"), d("2900")},
			},
		},
		prices: make(map[string]decimal.Decimal),
		prev:   make(map[string]decimal.Decimal),
	}
	c.set(eqKey("RELIANCE"), "2800")
	c.prev["RELIANCE"] = d("2780")
	c.set(eqKey("TCS"), "4125.80")
	c.set(futKey("RELIANCE"), "2850")
	c.set(optKey("RELIANCE", "2900", models.OptionCE), "45.50")
	return c
}

func (c *stubCatalog) set(key models.InstrumentKey, price string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[key.Normalize().PriceKey()] = d(price)
}

func (c *stubCatalog) Quote(key models.InstrumentKey) (models.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key = key.Normalize()
	if _, ok := c.lots[key.Symbol]; !ok {
		return models.Quote{}, terrors.Wrapf(terrors.ErrUnknownSymbol, "%s", key.Symbol)
	}
	p, ok := c.prices[key.PriceKey()]
	if !ok {
		return models.Quote{}, terrors.Wrapf(terrors.ErrUnknownInstrument, "%s", key)
	}
	return models.Quote{Key: key, LTP: p, PreviousClose: c.prev[key.PriceKey()]}, nil
}

func (c *stubCatalog) LotSize(symbol string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lot, ok := c.lots[symbol]
	if !ok {
		return 0, terrors.Wrapf(terrors.ErrUnknownSymbol, "%s", symbol)
	}
	return lot, nil
}

func (c *stubCatalog) DerivativeContracts(symbol string) (models.Contracts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lots[symbol]; !ok {
		return models.Contracts{}, terrors.Wrapf(terrors.ErrUnknownSymbol, "%s", symbol)
	}
	ct, ok := c.contracts[symbol]
	if !ok {
		return models.Contracts{}, terrors.Wrapf(terrors.ErrUnknownInstrument, "%s", symbol)
	}
	return ct, nil
}

func (c *stubCatalog) SetPrice(tick models.Tick) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[tick.Key.Normalize().PriceKey()] = tick.LTP
	return nil
}

// recordingSink keeps every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingSink) Publish(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

func (s *recordingSink) Types() []models.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *recordingSink) Last() models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func eqKey(symbol string) models.InstrumentKey {
	return models.InstrumentKey{Symbol: symbol, Segment: models.SegmentEQ}
}

func futKey(symbol string) models.InstrumentKey {
	return models.InstrumentKey{Symbol: symbol, Segment: models.SegmentFUT, Expiry: testExpiry}
}

func optKey(symbol, strike string, ot models.OptionType) models.InstrumentKey {
	return models.InstrumentKey{Symbol: symbol, Segment: models.SegmentOPT, Expiry: testExpiry, Strike: d(strike), OptionType: ot}
}

type testAccount struct {
	*Account
	cat  *stubCatalog
	sink *recordingSink
}

func newTestAccount(t *testing.T, balance string) *testAccount {
	t.Helper()

	cat := newStubCatalog()
	sink := &recordingSink{}

	var n int
	var mu sync.Mutex
	clock := time.Date(2026, 10, 14, 9, 15, 0, 0, time.UTC)

	acct := NewAccount(AccountConfig{
		ID:             "test",
		InitialBalance: d(balance),
		Margin:         DefaultMarginCalculator(),
		Catalog:        cat,
		Sink:           sink,
		Logger:         zerolog.Nop(),
		Clock: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
		NewOrderID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("ORD-%04d", n)
		},
	})
	return &testAccount{Account: acct, cat: cat, sink: sink}
}

func market(symbol string, seg models.Segment, side models.OrderSide, product models.ProductType, qty int) models.OrderRequest {
	return models.OrderRequest{
		Symbol:   symbol,
		Segment:  seg,
		Side:     side,
		Type:     models.OrderTypeMarket,
		Product:  product,
		Quantity: qty,
	}
}

func futMarket(side models.OrderSide, qty int) models.OrderRequest {
	req := market("RELIANCE", models.SegmentFUT, side, models.ProductNRML, qty)
	req.Expiry = testExpiry
	return req
}

func limit(symbol string, side models.OrderSide, product models.ProductType, qty int, price string) models.OrderRequest {
	return models.OrderRequest{
		Symbol:   symbol,
		Segment:  models.SegmentEQ,
		Side:     side,
		Type:     models.OrderTypeLimit,
		Product:  product,
		Quantity: qty,
		Price:    d(price),
	}
}

// tick moves the catalog price and runs matching.
func (a *testAccount) tick(t *testing.T, key models.InstrumentKey, price string) []models.Order {
	t.Helper()
	a.cat.set(key, price)
	filled, err := a.ApplyTick(testCtx, models.Tick{Key: key, LTP: d(price)})
	require.NoError(t, err)
	return filled
}

func requireFunds(t *testing.T, f models.Funds, used, available, realized string) {
	t.Helper()
	require.True(t, f.UsedMargin.Equal(d(used)), "used margin: got %s want %s", f.UsedMargin, used)
	require.True(t, f.AvailableBalance.Equal(d(available)), "available: got %s want %s", f.AvailableBalance, available)
	require.True(t, f.RealizedPnL.Equal(d(realized)), "realized: got %s want %s", f.RealizedPnL, realized)
	require.NoError(t, CheckFunds(f))
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.True(t, got.Equal(d(want)), append([]interface{}{"got %s want %s", got, want}, msgAndArgs...)...)
}
