package trading

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
)

// DefaultAccountID names the account used when none is given.
const DefaultAccountID = "default"

// PriceUpdater accepts ticks into a price source.
type PriceUpdater interface {
	SetPrice(tick models.Tick) error
}

// DeskConfig holds the settings shared by every account on a desk.
type DeskConfig struct {
	InitialBalance decimal.Decimal
	Margin         MarginCalculator
	Catalog        Catalog
	Sink           EventSink
	Logger         zerolog.Logger
}

// Desk owns the accounts of one process. Accounts are created on first use
// and share the catalog and event sink.
type Desk struct {
	cfg DeskConfig

	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewDesk creates a desk with no accounts.
func NewDesk(cfg DeskConfig) *Desk {
	return &Desk{
		cfg:      cfg,
		accounts: make(map[string]*Account),
	}
}

// Account returns the account with id, creating it if needed. An empty id
// selects DefaultAccountID.
func (d *Desk) Account(id string) *Account {
	if id == "" {
		id = DefaultAccountID
	}

	d.mu.RLock()
	acct, ok := d.accounts[id]
	d.mu.RUnlock()
	if ok {
		return acct
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if acct, ok := d.accounts[id]; ok {
		return acct
	}
	acct = NewAccount(AccountConfig{
		ID:             id,
		InitialBalance: d.cfg.InitialBalance,
		Margin:         d.cfg.Margin,
		Catalog:        d.cfg.Catalog,
		Sink:           d.cfg.Sink,
		Logger:         d.cfg.Logger,
	})
	d.accounts[id] = acct
	d.cfg.Logger.Info().Str("account", id).Msg("Account opened")
	return acct
}

// Lookup returns an existing account.
func (d *Desk) Lookup(id string) (*Account, error) {
	if id == "" {
		id = DefaultAccountID
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	acct, ok := d.accounts[id]
	if !ok {
		return nil, terrors.Wrapf(terrors.ErrAccountNotFound, "account %s", id)
	}
	return acct, nil
}

// IDs returns the open account IDs in sorted order.
func (d *Desk) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.accounts))
	for id := range d.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ApplyTick pushes the tick into the catalog, when it accepts prices, and
// then into every account. Returns the fills across all accounts.
func (d *Desk) ApplyTick(ctx context.Context, tick models.Tick) ([]models.Order, error) {
	if updater, ok := d.cfg.Catalog.(PriceUpdater); ok {
		if err := updater.SetPrice(tick); err != nil {
			return nil, err
		}
	}

	var filled []models.Order
	for _, id := range d.IDs() {
		acct, err := d.Lookup(id)
		if err != nil {
			continue
		}
		orders, err := acct.ApplyTick(ctx, tick)
		if err != nil {
			return filled, err
		}
		filled = append(filled, orders...)
	}
	return filled, nil
}
