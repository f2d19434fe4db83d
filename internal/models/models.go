// Package models provides domain models for the paper trading engine.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Segment represents a trading category.
type Segment string

const (
	SegmentEQ  Segment = "EQ"  // Intraday equity
	SegmentFUT Segment = "FUT" // Futures
	SegmentOPT Segment = "OPT" // Options
	SegmentCNC Segment = "CNC" // Delivery equity
)

// Valid reports whether s is a known segment.
func (s Segment) Valid() bool {
	switch s {
	case SegmentEQ, SegmentFUT, SegmentOPT, SegmentCNC:
		return true
	}
	return false
}

// IsDerivative returns true for futures and options.
func (s Segment) IsDerivative() bool {
	return s == SegmentFUT || s == SegmentOPT
}

// Products returns the product types that may be traded in the segment.
func (s Segment) Products() []ProductType {
	switch s {
	case SegmentEQ:
		return []ProductType{ProductMIS, ProductCNC}
	case SegmentFUT, SegmentOPT:
		return []ProductType{ProductMIS, ProductNRML}
	case SegmentCNC:
		return []ProductType{ProductCNC}
	}
	return nil
}

// Allows reports whether product p can be traded in the segment.
func (s Segment) Allows(p ProductType) bool {
	for _, allowed := range s.Products() {
		if allowed == p {
			return true
		}
	}
	return false
}

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Sign is +1 for BUY and -1 for SELL.
func (s OrderSide) Sign() decimal.Decimal {
	if s == OrderSideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLoss  OrderType = "SL"
	OrderTypeStopLossM OrderType = "SL-M"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStopLoss, OrderTypeStopLossM:
		return true
	}
	return false
}

// IsStop returns true for SL and SL-M.
func (t OrderType) IsStop() bool {
	return t == OrderTypeStopLoss || t == OrderTypeStopLossM
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusExecuted  OrderStatus = "EXECUTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusExecuted, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// IsTerminal is true for every status except OPEN.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusOpen
}

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductCNC  ProductType = "CNC"  // Delivery
	ProductNRML ProductType = "NRML" // F&O Normal
)

// Valid reports whether p is a known product type.
func (p ProductType) Valid() bool {
	switch p {
	case ProductMIS, ProductCNC, ProductNRML:
		return true
	}
	return false
}

// OptionType is CE (call) or PE (put).
type OptionType string

const (
	OptionCE OptionType = "CE"
	OptionPE OptionType = "PE"
)

// Valid reports whether o is CE or PE.
func (o OptionType) Valid() bool {
	return o == OptionCE || o == OptionPE
}

// Tick represents a price update for one instrument.
type Tick struct {
	Key       InstrumentKey   `json:"instrument"`
	LTP       decimal.Decimal `json:"ltp"`
	Timestamp time.Time       `json:"timestamp"`
}

// Quote represents the catalog's current view of an instrument.
type Quote struct {
	Key           InstrumentKey   `json:"instrument"`
	LTP           decimal.Decimal `json:"ltp"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Change returns LTP minus previous close.
func (q Quote) Change() decimal.Decimal {
	if q.PreviousClose.IsZero() {
		return decimal.Zero
	}
	return q.LTP.Sub(q.PreviousClose)
}

// ChangePercent returns the day change as a percentage of previous close.
func (q Quote) ChangePercent() decimal.Decimal {
	if q.PreviousClose.IsZero() {
		return decimal.Zero
	}
	return q.Change().Div(q.PreviousClose).Mul(decimal.NewFromInt(100))
}
