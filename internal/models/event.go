package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an engine event.
type EventType string

const (
	EventOrderPlaced    EventType = "ORDER_PLACED"
	EventOrderExecuted  EventType = "ORDER_EXECUTED"
	EventOrderRejected  EventType = "ORDER_REJECTED"
	EventOrderCancelled EventType = "ORDER_CANCELLED"
	EventPositionClosed EventType = "POSITION_CLOSED"
	EventHoldingSold    EventType = "HOLDING_SOLD"
	EventReset          EventType = "RESET"
)

// Event is emitted by an account after a command settles.
type Event struct {
	Seq         uint64          `json:"seq"`
	Type        EventType       `json:"type"`
	AccountID   string          `json:"account_id"`
	Order       *Order          `json:"order,omitempty"`
	Key         InstrumentKey   `json:"instrument"`
	Quantity    int             `json:"quantity,omitempty"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Funds       Funds           `json:"funds"`
	Timestamp   time.Time       `json:"timestamp"`
}
