package trading

import (
	"fmt"

	"github.com/shopspring/decimal"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
)

// DefaultInitialBalance is ₹10,00,000.
var DefaultInitialBalance = decimal.NewFromInt(1000000)

// Ledger holds the funds of one account. It is owned by an Account and is
// not safe for concurrent use on its own.
//
// After every settled transaction:
//
//	available + used == total + realized
type Ledger struct {
	initial   decimal.Decimal
	total     decimal.Decimal
	used      decimal.Decimal
	available decimal.Decimal
	realized  decimal.Decimal
}

// NewLedger creates a ledger funded with initial.
func NewLedger(initial decimal.Decimal) *Ledger {
	if !initial.IsPositive() {
		initial = DefaultInitialBalance
	}
	l := &Ledger{initial: initial}
	l.Reset()
	return l
}

// Reset restores the initial state.
func (l *Ledger) Reset() {
	l.total = l.initial
	l.used = decimal.Zero
	l.available = l.initial
	l.realized = decimal.Zero
}

// Available returns the available balance.
func (l *Ledger) Available() decimal.Decimal { return l.available }

// Used returns the used margin.
func (l *Ledger) Used() decimal.Decimal { return l.used }

// Realized returns cumulative realized P&L.
func (l *Ledger) Realized() decimal.Decimal { return l.realized }

// CanReserve reports whether amount fits in the available balance.
func (l *Ledger) CanReserve(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(l.available)
}

// Reserve moves amount from available to used margin.
func (l *Ledger) Reserve(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("reserve: negative amount %s", amount)
	}
	if !l.CanReserve(amount) {
		return terrors.NewMarginError("", amount, l.available)
	}
	l.used = l.used.Add(amount)
	l.available = l.available.Sub(amount)
	return nil
}

// Release moves amount from used margin back to available.
func (l *Ledger) Release(amount decimal.Decimal) {
	l.used = l.used.Sub(amount)
	l.available = l.available.Add(amount)
}

// Realize books a realized profit or loss.
func (l *Ledger) Realize(pnl decimal.Decimal) {
	l.realized = l.realized.Add(pnl)
	l.available = l.available.Add(pnl)
}

// Snapshot returns the ledger as Funds. UnrealizedPnL is left for the
// caller to fill from the position book.
func (l *Ledger) Snapshot() models.Funds {
	return models.Funds{
		TotalBalance:     l.total,
		UsedMargin:       l.used,
		AvailableBalance: l.available,
		RealizedPnL:      l.realized,
		UnrealizedPnL:    decimal.Zero,
		TotalPnL:         l.realized,
	}
}

// CheckInvariant verifies the balance identity.
func (l *Ledger) CheckInvariant() error {
	return CheckFunds(l.Snapshot())
}

// CheckFunds verifies available + used == total + realized on a snapshot.
func CheckFunds(f models.Funds) error {
	lhs := f.AvailableBalance.Add(f.UsedMargin)
	rhs := f.TotalBalance.Add(f.RealizedPnL)
	if !lhs.Equal(rhs) {
		return fmt.Errorf("funds invariant violated: available %s + used %s != total %s + realized %s",
			f.AvailableBalance, f.UsedMargin, f.TotalBalance, f.RealizedPnL)
	}
	return nil
}
