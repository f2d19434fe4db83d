package trading

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/logging"
	"paper-trader/internal/models"
	"paper-trader/pkg/utils"
)

// TagSquareOff marks orders synthesized by SquareOff.
const TagSquareOff = "SQUARE_OFF"

// Catalog supplies prices and contract metadata to an account.
type Catalog interface {
	Quote(key models.InstrumentKey) (models.Quote, error)
	LotSize(symbol string) (int, error)
	DerivativeContracts(symbol string) (models.Contracts, error)
}

// EventSink receives account events after each command settles.
type EventSink interface {
	Publish(event models.Event)
}

// AccountConfig holds account configuration.
type AccountConfig struct {
	ID             string
	InitialBalance decimal.Decimal
	Margin         MarginCalculator
	Catalog        Catalog
	Sink           EventSink
	Logger         zerolog.Logger
	Clock          func() time.Time
	NewOrderID     func() string
}

// DefaultAccountConfig returns the default account configuration. Catalog
// must still be set.
func DefaultAccountConfig() AccountConfig {
	return AccountConfig{
		ID:             DefaultAccountID,
		InitialBalance: DefaultInitialBalance,
		Margin:         DefaultMarginCalculator(),
		Logger:         zerolog.Nop(),
		Clock:          time.Now,
		NewOrderID:     utils.NewOrderID,
	}
}

// Account is one simulated trading account. All commands are serialized
// by a single mutex; reads take the same mutex and return copies.
type Account struct {
	id      string
	initial decimal.Decimal
	calc    MarginCalculator
	catalog Catalog
	sink    EventSink
	logger  zerolog.Logger
	clock   func() time.Time
	newID   func() string

	mu        sync.Mutex
	ledger    *Ledger
	positions *PositionBook
	holdings  *HoldingsBook
	orders    map[string]*models.Order
	sequence  []string
	seq       uint64

	// emitMu is taken before mu is released so events leave in the order
	// their commands settled.
	emitMu sync.Mutex
}

// NewAccount creates an account funded with cfg.InitialBalance.
func NewAccount(cfg AccountConfig) *Account {
	def := DefaultAccountConfig()
	if cfg.ID == "" {
		cfg.ID = def.ID
	}
	if !cfg.InitialBalance.IsPositive() {
		cfg.InitialBalance = def.InitialBalance
	}
	if !cfg.Margin.DerivativeRate.IsPositive() {
		cfg.Margin = def.Margin
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.NewOrderID == nil {
		cfg.NewOrderID = def.NewOrderID
	}

	return &Account{
		id:        cfg.ID,
		initial:   cfg.InitialBalance,
		calc:      cfg.Margin,
		catalog:   cfg.Catalog,
		sink:      cfg.Sink,
		logger:    logging.WithAccount(cfg.Logger, cfg.ID),
		clock:     cfg.Clock,
		newID:     cfg.NewOrderID,
		ledger:    NewLedger(cfg.InitialBalance),
		positions: NewPositionBook(),
		holdings:  NewHoldingsBook(),
		orders:    make(map[string]*models.Order),
	}
}

// ID returns the account identifier.
func (a *Account) ID() string { return a.id }

// SubmitOrder validates and routes an order. MARKET orders execute at the
// current LTP; other types rest as OPEN with their margin escrowed. A
// rejected order is returned with status REJECTED alongside the error and
// leaves no trace in the account.
func (a *Account) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	order, events, err := a.submit(req)
	a.unlockAndPublish(events)
	return order, err
}

func (a *Account) submit(req models.OrderRequest) (*models.Order, []models.Event, error) {
	now := a.clock()

	inst, err := a.validate(req)
	if err != nil {
		return a.reject(req, now, err)
	}

	plan, err := a.plan(Fill{
		Key:      inst.key,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    inst.marginPrice,
		Product:  req.Product,
		LotSize:  inst.lotSize,
	})
	if err != nil {
		return a.reject(req, now, err)
	}
	if err := a.affordable(plan, req.Symbol); err != nil {
		return a.reject(req, now, err)
	}

	order := models.NewOrder(a.newID(), a.id, req, now)
	order.LotSize = inst.lotSize

	if req.Type == models.OrderTypeMarket {
		order.Price = inst.marginPrice
		if err := a.execute(order, plan, now); err != nil {
			return a.reject(req, now, err)
		}
		a.store(order)
		return cloneOrder(order), a.fillEvents(order, plan, now), nil
	}

	if err := a.ledger.Reserve(plan.RequiredMargin); err != nil {
		return a.reject(req, now, terrors.NewMarginError(req.Symbol, plan.RequiredMargin, a.ledger.Available()))
	}
	order.ReservedMargin = plan.RequiredMargin
	order.Status = models.OrderStatusOpen
	a.store(order)
	logging.LogOrder(a.logger, order)

	return cloneOrder(order), []models.Event{a.event(models.EventOrderPlaced, order, now)}, nil
}

func (a *Account) reject(req models.OrderRequest, now time.Time, err error) (*models.Order, []models.Event, error) {
	order := models.NewOrder(a.newID(), a.id, req, now)
	order.Status = models.OrderStatusRejected
	order.Reason = err.Error()
	logging.LogRejection(a.logger, req, err)
	return order, []models.Event{a.event(models.EventOrderRejected, order, now)}, err
}

func (a *Account) plan(f Fill) (FillPlan, error) {
	if f.Product == models.ProductCNC {
		return a.holdings.Plan(f, a.calc)
	}
	return a.positions.Plan(f, a.calc), nil
}

// affordable checks the exposure-increasing margin of a plan against the
// available balance, both now and after the closing leg settles.
func (a *Account) affordable(plan FillPlan, symbol string) error {
	if plan.RequiredMargin.IsZero() {
		return nil
	}
	available := a.ledger.Available()
	if plan.RequiredMargin.GreaterThan(available) {
		return terrors.NewMarginError(symbol, plan.RequiredMargin, available)
	}
	if after := plan.AvailableAfterClose(available); plan.RequiredMargin.GreaterThan(after) {
		return terrors.NewMarginError(symbol, plan.RequiredMargin, after)
	}
	return nil
}

// execute commits plan and marks order EXECUTED at the plan's price.
func (a *Account) execute(order *models.Order, plan FillPlan, now time.Time) error {
	var err error
	if plan.Fill.Product == models.ProductCNC {
		_, err = a.holdings.Commit(plan, a.ledger, now)
	} else {
		_, err = a.positions.Commit(plan, a.ledger, now)
	}
	if err != nil {
		return err
	}

	price := plan.Fill.Price
	order.ExecutedPrice = &price
	order.Status = models.OrderStatusExecuted
	order.RealizedPnL = plan.RealizedPnL
	order.UpdatedAt = now
	logging.LogFill(a.logger, order, price, plan.RealizedPnL)
	return nil
}

func (a *Account) store(order *models.Order) {
	a.orders[order.ID] = order
	a.sequence = append(a.sequence, order.ID)
}

// CancelOrder cancels an OPEN order and releases its escrowed margin.
func (a *Account) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	order, events, err := a.cancel(orderID)
	a.unlockAndPublish(events)
	return order, err
}

func (a *Account) cancel(orderID string) (*models.Order, []models.Event, error) {
	order, ok := a.orders[orderID]
	if !ok {
		return nil, nil, terrors.Wrapf(terrors.ErrOrderNotFound, "order %s", orderID)
	}
	if order.Status != models.OrderStatusOpen {
		return nil, nil, terrors.NewOrderError(orderID, order.Symbol, "cancel",
			"order is "+string(order.Status), terrors.ErrInvalidCancelState)
	}

	now := a.clock()
	a.ledger.Release(order.ReservedMargin)
	order.ReservedMargin = decimal.Zero
	order.Status = models.OrderStatusCancelled
	order.Reason = "cancelled by user"
	order.UpdatedAt = now
	logging.LogOrder(a.logger, order)

	return cloneOrder(order), []models.Event{a.event(models.EventOrderCancelled, order, now)}, nil
}

// SquareOff closes a position at the current LTP and returns the realized
// P&L. The close is recorded as an executed MARKET order.
func (a *Account) SquareOff(ctx context.Context, positionID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	a.mu.Lock()
	pnl, events, err := a.squareOff(positionID, a.clock())
	a.unlockAndPublish(events)
	return pnl, err
}

// SquareOffAll closes every open position and returns the total realized.
func (a *Account) SquareOffAll(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	a.mu.Lock()
	now := a.clock()
	total := decimal.Zero
	var events []models.Event
	var firstErr error
	for _, p := range a.positions.All() {
		pnl, evs, err := a.squareOff(p.ID, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total = total.Add(pnl)
		events = append(events, evs...)
	}
	a.unlockAndPublish(events)
	return total, firstErr
}

func (a *Account) squareOff(positionID string, now time.Time) (decimal.Decimal, []models.Event, error) {
	pos, ok := a.positions.Get(positionID)
	if !ok {
		return decimal.Zero, nil, terrors.Wrapf(terrors.ErrPositionNotFound, "position %s", positionID)
	}

	ltp := a.ltp(pos.Key, pos.LTP)
	req := models.OrderRequest{
		Symbol:     pos.Key.Symbol,
		Segment:    pos.Key.Segment,
		Side:       pos.Side.Opposite(),
		Type:       models.OrderTypeMarket,
		Product:    pos.Product,
		Quantity:   pos.Quantity,
		Price:      ltp,
		Expiry:     pos.Key.Expiry,
		Strike:     pos.Key.Strike,
		OptionType: pos.Key.OptionType,
		Tag:        TagSquareOff,
	}
	plan := a.positions.Plan(Fill{
		Key:      pos.Key,
		Side:     req.Side,
		Quantity: pos.Quantity,
		Price:    ltp,
		Product:  pos.Product,
		LotSize:  pos.LotSize,
	}, a.calc)

	order := models.NewOrder(a.newID(), a.id, req, now)
	order.LotSize = pos.LotSize
	if err := a.execute(order, plan, now); err != nil {
		return decimal.Zero, nil, err
	}
	a.store(order)
	return plan.RealizedPnL, a.fillEvents(order, plan, now), nil
}

// Reset discards every order, position and holding and restores the
// initial balance. Returns the fresh funds snapshot.
func (a *Account) Reset(ctx context.Context) (models.Funds, error) {
	if err := ctx.Err(); err != nil {
		return models.Funds{}, err
	}

	a.mu.Lock()
	now := a.clock()
	a.ledger.Reset()
	a.positions = NewPositionBook()
	a.holdings = NewHoldingsBook()
	a.orders = make(map[string]*models.Order)
	a.sequence = nil
	funds := a.funds()
	a.logger.Info().Str("balance", funds.TotalBalance.StringFixed(2)).Msg("Account reset")
	a.unlockAndPublish([]models.Event{a.event(models.EventReset, nil, now)})
	return funds, nil
}

// Orders returns the order book in submission order.
func (a *Account) Orders(filter models.OrderFilter) []models.Order {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.Order, 0, len(a.sequence))
	for _, id := range a.sequence {
		o := a.orders[id]
		if filter.Match(o) {
			out = append(out, o.Clone())
		}
	}
	return out
}

// OpenOrders returns orders waiting for a fill.
func (a *Account) OpenOrders() []models.Order {
	return a.Orders(models.OrderFilter{Status: models.OrderStatusOpen})
}

// Order returns one order by ID.
func (a *Account) Order(orderID string) (models.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	o, ok := a.orders[orderID]
	if !ok {
		return models.Order{}, terrors.Wrapf(terrors.ErrOrderNotFound, "order %s", orderID)
	}
	return o.Clone(), nil
}

// Positions returns open positions valued at the latest price.
func (a *Account) Positions() []models.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.markedPositions()
}

// Position returns one position valued at the latest price.
func (a *Account) Position(positionID string) (models.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.positions.Get(positionID)
	if !ok {
		return models.Position{}, terrors.Wrapf(terrors.ErrPositionNotFound, "position %s", positionID)
	}
	return markPosition(p, a.ltp(p.Key, p.LTP)), nil
}

// Holdings returns delivery holdings valued at the latest price.
func (a *Account) Holdings() []models.Holding {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := a.holdings.All()
	out := make([]models.Holding, 0, len(all))
	for _, h := range all {
		out = append(out, markHolding(h, a.quote(models.InstrumentKey{Symbol: h.Symbol, Segment: models.SegmentEQ})))
	}
	return out
}

// Funds returns the ledger with unrealized P&L of open positions.
func (a *Account) Funds() models.Funds {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.funds()
}

func (a *Account) funds() models.Funds {
	f := a.ledger.Snapshot()
	unrealized := decimal.Zero
	for _, p := range a.markedPositions() {
		unrealized = unrealized.Add(p.UnrealizedPnL)
	}
	f.UnrealizedPnL = unrealized
	f.TotalPnL = f.RealizedPnL.Add(unrealized)
	return f
}

func (a *Account) markedPositions() []models.Position {
	all := a.positions.All()
	out := make([]models.Position, 0, len(all))
	for _, p := range all {
		out = append(out, markPosition(p, a.ltp(p.Key, p.LTP)))
	}
	return out
}

func (a *Account) quote(key models.InstrumentKey) models.Quote {
	if a.catalog == nil {
		return models.Quote{Key: key}
	}
	q, err := a.catalog.Quote(key)
	if err != nil {
		return models.Quote{Key: key}
	}
	return q
}

// ltp returns the catalog price for key, or fallback when none is known.
func (a *Account) ltp(key models.InstrumentKey, fallback decimal.Decimal) decimal.Decimal {
	if q := a.quote(key); q.LTP.IsPositive() {
		return q.LTP
	}
	return fallback
}

func (a *Account) fillEvents(order *models.Order, plan FillPlan, now time.Time) []models.Event {
	events := []models.Event{a.event(models.EventOrderExecuted, order, now)}
	switch {
	case plan.Fill.Product == models.ProductCNC && plan.CloseQty > 0:
		events = append(events, a.closeEvent(models.EventHoldingSold, order, plan, now))
	case plan.Closed:
		events = append(events, a.closeEvent(models.EventPositionClosed, order, plan, now))
	}
	return events
}

func (a *Account) closeEvent(t models.EventType, order *models.Order, plan FillPlan, now time.Time) models.Event {
	ev := a.event(t, order, now)
	ev.Quantity = plan.CloseQty
	ev.RealizedPnL = plan.RealizedPnL
	return ev
}

func (a *Account) event(t models.EventType, order *models.Order, now time.Time) models.Event {
	a.seq++
	ev := models.Event{
		Seq:       a.seq,
		Type:      t,
		AccountID: a.id,
		Funds:     a.funds(),
		Timestamp: now,
	}
	if order != nil {
		c := order.Clone()
		ev.Order = &c
		ev.Key = order.Key()
		ev.Quantity = order.Quantity
		ev.Price = order.Price
		if order.ExecutedPrice != nil {
			ev.Price = *order.ExecutedPrice
		}
		ev.RealizedPnL = order.RealizedPnL
	}
	return ev
}

// unlockAndPublish releases mu and hands events to the sink outside the
// state lock.
func (a *Account) unlockAndPublish(events []models.Event) {
	a.emitMu.Lock()
	a.mu.Unlock()
	defer a.emitMu.Unlock()

	if a.sink == nil {
		return
	}
	for _, ev := range events {
		a.sink.Publish(ev)
	}
}

func cloneOrder(o *models.Order) *models.Order {
	c := o.Clone()
	return &c
}
