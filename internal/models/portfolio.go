package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents an open intraday or derivative position.
type Position struct {
	ID                   string          `json:"id"`
	Key                  InstrumentKey   `json:"instrument"`
	Side                 OrderSide       `json:"side"`
	Quantity             int             `json:"quantity"`
	AveragePrice         decimal.Decimal `json:"average_price"`
	LTP                  decimal.Decimal `json:"ltp"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent"`
	Product              ProductType     `json:"product"`
	LotSize              int             `json:"lot_size,omitempty"`
	ReservedMargin       decimal.Decimal `json:"reserved_margin"`
	OpenedAt             time.Time       `json:"opened_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Holding represents a delivery (CNC) holding.
type Holding struct {
	Symbol               string          `json:"symbol"`
	Quantity             int             `json:"quantity"`
	AveragePrice         decimal.Decimal `json:"average_price"`
	LTP                  decimal.Decimal `json:"ltp"`
	InvestedValue        decimal.Decimal `json:"invested_value"`
	CurrentValue         decimal.Decimal `json:"current_value"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent"`
	DayChange            decimal.Decimal `json:"day_change"`
	DayChangePercent     decimal.Decimal `json:"day_change_percent"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Funds is a snapshot of the funds ledger.
type Funds struct {
	TotalBalance     decimal.Decimal `json:"total_balance"`
	UsedMargin       decimal.Decimal `json:"used_margin"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
}

// Equal compares every field exactly.
func (f Funds) Equal(o Funds) bool {
	return f.TotalBalance.Equal(o.TotalBalance) &&
		f.UsedMargin.Equal(o.UsedMargin) &&
		f.AvailableBalance.Equal(o.AvailableBalance) &&
		f.RealizedPnL.Equal(o.RealizedPnL) &&
		f.UnrealizedPnL.Equal(o.UnrealizedPnL) &&
		f.TotalPnL.Equal(o.TotalPnL)
}
