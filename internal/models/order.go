package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest is an order intent submitted by the caller. Quantity is in
// units and already lot-adjusted for derivatives.
type OrderRequest struct {
	Symbol       string          `json:"symbol" yaml:"symbol"`
	Segment      Segment         `json:"segment" yaml:"segment"`
	Side         OrderSide       `json:"side" yaml:"side"`
	Type         OrderType       `json:"order_type" yaml:"order_type"`
	Product      ProductType     `json:"product" yaml:"product"`
	Quantity     int             `json:"quantity" yaml:"quantity"`
	Price        decimal.Decimal `json:"price" yaml:"price"`
	TriggerPrice decimal.Decimal `json:"trigger_price" yaml:"trigger_price"`
	Expiry       string          `json:"expiry,omitempty" yaml:"expiry,omitempty"`
	Strike       decimal.Decimal `json:"strike,omitempty" yaml:"strike,omitempty"`
	OptionType   OptionType      `json:"option_type,omitempty" yaml:"option_type,omitempty"`
	Tag          string          `json:"tag,omitempty" yaml:"tag,omitempty"`
}

// Key returns the instrument the request trades.
func (r OrderRequest) Key() InstrumentKey {
	return InstrumentKey{
		Symbol:     r.Symbol,
		Segment:    r.Segment,
		Expiry:     r.Expiry,
		Strike:     r.Strike,
		OptionType: r.OptionType,
	}.Normalize()
}

// Order represents a trading order.
type Order struct {
	ID             string           `json:"id"`
	AccountID      string           `json:"account_id"`
	Symbol         string           `json:"symbol"`
	Segment        Segment          `json:"segment"`
	Side           OrderSide        `json:"side"`
	Type           OrderType        `json:"order_type"`
	Product        ProductType      `json:"product"`
	Quantity       int              `json:"quantity"`
	Price          decimal.Decimal  `json:"price"`
	TriggerPrice   decimal.Decimal  `json:"trigger_price"`
	ExecutedPrice  *decimal.Decimal `json:"executed_price,omitempty"`
	Status         OrderStatus      `json:"status"`
	Expiry         string           `json:"expiry,omitempty"`
	Strike         decimal.Decimal  `json:"strike,omitempty"`
	OptionType     OptionType       `json:"option_type,omitempty"`
	LotSize        int              `json:"lot_size,omitempty"`
	ReservedMargin decimal.Decimal  `json:"reserved_margin"`
	Triggered      bool             `json:"triggered,omitempty"`
	RealizedPnL    decimal.Decimal  `json:"realized_pnl"`
	Reason         string           `json:"reason,omitempty"`
	Tag            string           `json:"tag,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Key returns the instrument the order trades.
func (o *Order) Key() InstrumentKey {
	return InstrumentKey{
		Symbol:     o.Symbol,
		Segment:    o.Segment,
		Expiry:     o.Expiry,
		Strike:     o.Strike,
		OptionType: o.OptionType,
	}.Normalize()
}

// Request rebuilds the request the order was created from.
func (o *Order) Request() OrderRequest {
	return OrderRequest{
		Symbol:       o.Symbol,
		Segment:      o.Segment,
		Side:         o.Side,
		Type:         o.Type,
		Product:      o.Product,
		Quantity:     o.Quantity,
		Price:        o.Price,
		TriggerPrice: o.TriggerPrice,
		Expiry:       o.Expiry,
		Strike:       o.Strike,
		OptionType:   o.OptionType,
		Tag:          o.Tag,
	}
}

// Clone returns a deep copy safe to hand to callers.
func (o *Order) Clone() Order {
	c := *o
	if o.ExecutedPrice != nil {
		p := *o.ExecutedPrice
		c.ExecutedPrice = &p
	}
	return c
}

// NewOrder builds an order record from a request.
func NewOrder(id, accountID string, req OrderRequest, now time.Time) *Order {
	key := req.Key()
	return &Order{
		ID:           id,
		AccountID:    accountID,
		Symbol:       key.Symbol,
		Segment:      key.Segment,
		Side:         req.Side,
		Type:         req.Type,
		Product:      req.Product,
		Quantity:     req.Quantity,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		Expiry:       key.Expiry,
		Strike:       key.Strike,
		OptionType:   key.OptionType,
		Tag:          req.Tag,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// OrderFilter narrows order book listings.
type OrderFilter struct {
	Status OrderStatus
	Symbol string
}

// Match reports whether o passes the filter.
func (f OrderFilter) Match(o *Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	return true
}
