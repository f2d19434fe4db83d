// Package catalog provides the in-memory instrument catalog used by the
// paper trading engine: spot quotes, lot sizes and F&O contracts.
package catalog

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
)

// Instrument is one underlying listed in the catalog.
type Instrument struct {
	Symbol        string          `json:"symbol" yaml:"symbol"`
	Name          string          `json:"name,omitempty" yaml:"name,omitempty"`
	LTP           decimal.Decimal `json:"ltp" yaml:"ltp"`
	PreviousClose decimal.Decimal `json:"previous_close" yaml:"previous_close"`
	LotSize       int             `json:"lot_size" yaml:"lot_size"`
	Derivatives   bool            `json:"derivatives" yaml:"derivatives"`
	StrikeStep    decimal.Decimal `json:"strike_step,omitempty" yaml:"strike_step,omitempty"`
}

// Options controls contract generation.
type Options struct {
	// Seed drives the option premium generator.
	Seed int64
	// Now anchors the expiry calendar.
	Now func() time.Time
	// Expiries is the number of monthly expiries listed.
	Expiries int
	// StrikesEachSide is the number of strikes above and below ATM.
	StrikesEachSide int
}

// DefaultOptions returns the default generation options.
func DefaultOptions() Options {
	return Options{
		Seed:            42,
		Now:             time.Now,
		Expiries:        3,
		StrikesEachSide: 8,
	}
}

// Static is a catalog held in memory. Prices change only through SetPrice.
type Static struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
	contracts   map[string]models.Contracts
	quotes      map[string]models.Quote
}

// NewStatic builds a catalog from instruments and generates their F&O
// contracts.
func NewStatic(instruments []Instrument, opts Options) (*Static, error) {
	def := DefaultOptions()
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if opts.Expiries <= 0 {
		opts.Expiries = def.Expiries
	}
	if opts.StrikesEachSide <= 0 {
		opts.StrikesEachSide = def.StrikesEachSide
	}

	s := &Static{
		instruments: make(map[string]*Instrument, len(instruments)),
		contracts:   make(map[string]models.Contracts),
		quotes:      make(map[string]models.Quote),
	}
	for i := range instruments {
		inst := instruments[i]
		if err := validateInstrument(inst); err != nil {
			return nil, err
		}
		if _, dup := s.instruments[inst.Symbol]; dup {
			return nil, terrors.NewValidationError("symbol", inst.Symbol, "duplicate instrument", terrors.ErrConfigInvalid)
		}
		if inst.LotSize <= 0 {
			inst.LotSize = 1
		}
		if !inst.PreviousClose.IsPositive() {
			inst.PreviousClose = inst.LTP
		}
		s.instruments[inst.Symbol] = &inst
	}

	newGenerator(opts).populate(s)
	return s, nil
}

// NewDefault builds a catalog from DefaultInstruments.
func NewDefault(opts Options) *Static {
	s, err := NewStatic(DefaultInstruments(), opts)
	if err != nil {
		panic(err)
	}
	return s
}

func validateInstrument(inst Instrument) error {
	if inst.Symbol == "" {
		return terrors.NewValidationError("symbol", inst.Symbol, "symbol is required", terrors.ErrConfigInvalid)
	}
	if !inst.LTP.IsPositive() {
		return terrors.NewValidationError("ltp", inst.LTP, "ltp must be positive for "+inst.Symbol, terrors.ErrConfigInvalid)
	}
	if inst.LotSize < 0 {
		return terrors.NewValidationError("lot_size", inst.LotSize, "lot size cannot be negative", terrors.ErrConfigInvalid)
	}
	return nil
}

// Quote returns the current quote for key.
func (s *Static) Quote(key models.InstrumentKey) (models.Quote, error) {
	key = key.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instruments[key.Symbol]
	if !ok {
		return models.Quote{}, terrors.Wrapf(terrors.ErrUnknownSymbol, "%s", key.Symbol)
	}

	switch key.Segment {
	case models.SegmentEQ, models.SegmentCNC:
		return models.Quote{
			Key:           key,
			LTP:           inst.LTP,
			PreviousClose: inst.PreviousClose,
		}, nil
	case models.SegmentFUT, models.SegmentOPT:
		q, ok := s.quotes[key.PriceKey()]
		if !ok {
			return models.Quote{}, terrors.Wrapf(terrors.ErrUnknownInstrument, "%s", key)
		}
		return q, nil
	}
	return models.Quote{}, terrors.Wrapf(terrors.ErrUnknownInstrument, "%s", key)
}

// LotSize returns the contract size of symbol.
func (s *Static) LotSize(symbol string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instruments[symbol]
	if !ok {
		return 0, terrors.Wrapf(terrors.ErrUnknownSymbol, "%s", symbol)
	}
	return inst.LotSize, nil
}

// DerivativeContracts lists the expiries and strikes of symbol.
func (s *Static) DerivativeContracts(symbol string) (models.Contracts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.instruments[symbol]; !ok {
		return models.Contracts{}, terrors.Wrapf(terrors.ErrUnknownSymbol, "%s", symbol)
	}
	c, ok := s.contracts[symbol]
	if !ok {
		return models.Contracts{}, terrors.Wrapf(terrors.ErrUnknownInstrument, "%s has no derivatives", symbol)
	}
	return c, nil
}

// SetPrice records a new last traded price.
func (s *Static) SetPrice(tick models.Tick) error {
	if !tick.LTP.IsPositive() {
		return terrors.NewValidationError("ltp", tick.LTP, "price must be positive", terrors.ErrInvalidOrderParameters)
	}
	key := tick.Key.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instruments[key.Symbol]
	if !ok {
		return terrors.Wrapf(terrors.ErrUnknownSymbol, "%s", key.Symbol)
	}

	switch key.Segment {
	case models.SegmentEQ, models.SegmentCNC:
		inst.LTP = tick.LTP
		return nil
	case models.SegmentFUT, models.SegmentOPT:
		q, ok := s.quotes[key.PriceKey()]
		if !ok {
			return terrors.Wrapf(terrors.ErrUnknownInstrument, "%s", key)
		}
		q.LTP = tick.LTP
		q.Timestamp = tick.Timestamp
		s.quotes[key.PriceKey()] = q
		return nil
	}
	return terrors.Wrapf(terrors.ErrUnknownInstrument, "%s", key)
}

// Instrument returns a copy of the underlying listed as symbol.
func (s *Static) Instrument(symbol string) (Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instruments[symbol]
	if !ok {
		return Instrument{}, terrors.Wrapf(terrors.ErrUnknownSymbol, "%s", symbol)
	}
	return *inst, nil
}

// Instruments returns every underlying sorted by symbol.
func (s *Static) Instruments() []Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ChainRow is one strike of an option chain.
type ChainRow struct {
	Strike decimal.Decimal `json:"strike"`
	Call   models.Quote    `json:"ce"`
	Put    models.Quote    `json:"pe"`
}

// OptionChain returns the CE/PE quotes of symbol for one expiry.
func (s *Static) OptionChain(symbol, expiry string) ([]ChainRow, error) {
	contracts, err := s.DerivativeContracts(symbol)
	if err != nil {
		return nil, err
	}
	if !contracts.HasExpiry(expiry) {
		return nil, terrors.Wrapf(terrors.ErrUnknownInstrument, "%s expiry %s", symbol, expiry)
	}

	rows := make([]ChainRow, 0, len(contracts.Strikes))
	for _, strike := range contracts.Strikes {
		row := ChainRow{Strike: strike}
		for _, ot := range []models.OptionType{models.OptionCE, models.OptionPE} {
			q, err := s.Quote(models.InstrumentKey{
				Symbol: symbol, Segment: models.SegmentOPT, Expiry: expiry, Strike: strike, OptionType: ot,
			})
			if err != nil {
				return nil, err
			}
			if ot == models.OptionCE {
				row.Call = q
			} else {
				row.Put = q
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
