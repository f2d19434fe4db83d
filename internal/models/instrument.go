package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InstrumentKey identifies a tradeable instrument. Strike, OptionType and
// Expiry are empty for cash-segment instruments.
type InstrumentKey struct {
	Symbol     string          `json:"symbol" yaml:"symbol"`
	Segment    Segment         `json:"segment" yaml:"segment"`
	Expiry     string          `json:"expiry,omitempty" yaml:"expiry,omitempty"`
	Strike     decimal.Decimal `json:"strike,omitempty" yaml:"strike,omitempty"`
	OptionType OptionType      `json:"option_type,omitempty" yaml:"option_type,omitempty"`
}

// PositionID returns the position identifier for the key:
// POS-{symbol}-{segment}-{strike}-{optionType}-{expiry}.
func (k InstrumentKey) PositionID() string {
	strike := ""
	if !k.Strike.IsZero() {
		strike = k.Strike.String()
	}
	return fmt.Sprintf("POS-%s-%s-%s-%s-%s", k.Symbol, k.Segment, strike, k.OptionType, k.Expiry)
}

// Normalize drops the derivative fields that do not apply to the segment.
func (k InstrumentKey) Normalize() InstrumentKey {
	switch k.Segment {
	case SegmentEQ, SegmentCNC:
		return InstrumentKey{Symbol: k.Symbol, Segment: k.Segment}
	case SegmentFUT:
		return InstrumentKey{Symbol: k.Symbol, Segment: k.Segment, Expiry: k.Expiry}
	}
	return k
}

// PriceKey returns the key the catalog prices the instrument under. Both
// cash segments share the spot price.
func (k InstrumentKey) PriceKey() string {
	switch k.Segment {
	case SegmentFUT:
		return fmt.Sprintf("%s:FUT:%s", k.Symbol, k.Expiry)
	case SegmentOPT:
		return fmt.Sprintf("%s:OPT:%s:%s:%s", k.Symbol, k.Expiry, k.Strike.String(), k.OptionType)
	}
	return k.Symbol
}

func (k InstrumentKey) String() string {
	switch k.Segment {
	case SegmentFUT:
		return fmt.Sprintf("%s %s FUT", k.Symbol, k.Expiry)
	case SegmentOPT:
		return fmt.Sprintf("%s %s %s %s", k.Symbol, k.Expiry, k.Strike.String(), k.OptionType)
	}
	return fmt.Sprintf("%s %s", k.Symbol, k.Segment)
}

// Contracts lists the derivative contracts available for an underlying.
type Contracts struct {
	Symbol   string            `json:"symbol"`
	LotSize  int               `json:"lot_size"`
	Expiries []string          `json:"expiries"`
	Strikes  []decimal.Decimal `json:"strikes"`
}

// HasExpiry reports whether expiry is listed.
func (c Contracts) HasExpiry(expiry string) bool {
	for _, e := range c.Expiries {
		if e == expiry {
			return true
		}
	}
	return false
}

// HasStrike reports whether strike is listed.
func (c Contracts) HasStrike(strike decimal.Decimal) bool {
	for _, s := range c.Strikes {
		if s.Equal(strike) {
			return true
		}
	}
	return false
}
