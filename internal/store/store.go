// Package store provides the audit journal of engine events.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"paper-trader/internal/models"
)

// Journal records settled engine events. It is write-mostly audit storage;
// account state lives in memory and is never rebuilt from the journal.
type Journal interface {
	RecordEvent(ctx context.Context, event models.Event) error
	Trades(ctx context.Context, filter TradeFilter) ([]TradeRecord, error)
	Events(ctx context.Context, filter EventFilter) ([]EventRecord, error)
	Close() error
}

// TradeRecord is one executed fill.
type TradeRecord struct {
	ID          int64
	AccountID   string
	OrderID     string
	Timestamp   time.Time
	Symbol      string
	Segment     models.Segment
	Instrument  string
	Side        models.OrderSide
	Product     models.ProductType
	OrderType   models.OrderType
	Quantity    int
	Price       decimal.Decimal
	RealizedPnL decimal.Decimal
	Tag         string
}

// EventRecord is one journaled event.
type EventRecord struct {
	ID        int64
	Seq       uint64
	AccountID string
	Type      models.EventType
	Timestamp time.Time
	Payload   string
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	AccountID string
	Symbol    string
	Side      models.OrderSide
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// EventFilter represents filters for querying events.
type EventFilter struct {
	AccountID string
	Type      models.EventType
	Limit     int
}
