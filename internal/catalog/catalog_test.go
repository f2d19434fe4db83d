package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
)

func fixedOptions() Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC) }
	return opts
}

func TestDefaultCatalogContracts(t *testing.T) {
	t.Parallel()
	c := NewDefault(fixedOptions())

	lot, err := c.LotSize("RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 250, lot)

	contracts, err := c.DerivativeContracts("RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-29", "2026-11-26", "2026-12-31"}, contracts.Expiries)
	require.Len(t, contracts.Strikes, 17)
	assert.Equal(t, "2450", contracts.Strikes[0].String())
	assert.Equal(t, "2850", contracts.Strikes[8].String())
	assert.Equal(t, "3250", contracts.Strikes[16].String())

	bank, err := c.DerivativeContracts("BANKNIFTY")
	require.NoError(t, err)
	assert.Equal(t, "48200", bank.Strikes[8].String())
}

func TestQuoteBySegment(t *testing.T) {
	t.Parallel()
	c := NewDefault(fixedOptions())

	eq, err := c.Quote(models.InstrumentKey{Symbol: "RELIANCE", Segment: models.SegmentEQ})
	require.NoError(t, err)
	assert.Equal(t, "2847.35", eq.LTP.String())
	assert.Equal(t, "2812.5", eq.PreviousClose.String())

	cnc, err := c.Quote(models.InstrumentKey{Symbol: "RELIANCE", Segment: models.SegmentCNC, Expiry: "ignored"})
	require.NoError(t, err)
	assert.True(t, cnc.LTP.Equal(eq.LTP))

	near, err := c.Quote(models.InstrumentKey{Symbol: "RELIANCE", Segment: models.SegmentFUT, Expiry: "2026-10-29"})
	require.NoError(t, err)
	assert.Equal(t, "2847.35", near.LTP.String())

	next, err := c.Quote(models.InstrumentKey{Symbol: "RELIANCE", Segment: models.SegmentFUT, Expiry: "2026-11-26"})
	require.NoError(t, err)
	assert.Equal(t, "2853.04", next.LTP.String())

	_, err = c.Quote(models.InstrumentKey{Symbol: "RELIANCE", Segment: models.SegmentFUT, Expiry: "2027-01-28"})
	assert.ErrorIs(t, err, terrors.ErrUnknownInstrument)

	_, err = c.Quote(models.InstrumentKey{Symbol: "NOPE", Segment: models.SegmentEQ})
	assert.ErrorIs(t, err, terrors.ErrUnknownSymbol)

	_, err = c.LotSize("NOPE")
	assert.ErrorIs(t, err, terrors.ErrUnknownSymbol)
}

func TestOptionPremiums(t *testing.T) {
	t.Parallel()
	c := NewDefault(fixedOptions())
	spot := d("2847.35")

	for _, strike := range []string{"2450", "2850", "3250"} {
		for _, ot := range []models.OptionType{models.OptionCE, models.OptionPE} {
			q, err := c.Quote(models.InstrumentKey{
				Symbol: "RELIANCE", Segment: models.SegmentOPT, Expiry: "2026-10-29", Strike: d(strike), OptionType: ot,
			})
			require.NoError(t, err)
			assert.True(t, q.LTP.GreaterThanOrEqual(minPremium), "%s %s premium %s", strike, ot, q.LTP)

			intrinsic := spot.Sub(d(strike))
			if ot == models.OptionPE {
				intrinsic = intrinsic.Neg()
			}
			if intrinsic.IsPositive() {
				assert.True(t, q.LTP.GreaterThanOrEqual(intrinsic.Add(d("5"))), "%s %s premium %s", strike, ot, q.LTP)
			}
		}
	}
}

func TestGenerationIsDeterministic(t *testing.T) {
	t.Parallel()

	a := NewDefault(fixedOptions())
	b := NewDefault(fixedOptions())
	other := fixedOptions()
	other.Seed = 7
	c := NewDefault(other)

	key := models.InstrumentKey{Symbol: "TCS", Segment: models.SegmentOPT, Expiry: "2026-11-26", Strike: d("4150"), OptionType: models.OptionCE}
	qa, err := a.Quote(key)
	require.NoError(t, err)
	qb, err := b.Quote(key)
	require.NoError(t, err)
	assert.True(t, qa.LTP.Equal(qb.LTP))

	rowsA, err := a.OptionChain("TCS", "2026-11-26")
	require.NoError(t, err)
	rowsC, err := c.OptionChain("TCS", "2026-11-26")
	require.NoError(t, err)
	differs := false
	for i := range rowsA {
		if !rowsA[i].Call.LTP.Equal(rowsC[i].Call.LTP) || !rowsA[i].Put.LTP.Equal(rowsC[i].Put.LTP) {
			differs = true
		}
	}
	assert.True(t, differs, "a different seed should move at least one premium")
}

func TestSetPrice(t *testing.T) {
	t.Parallel()
	c := NewDefault(fixedOptions())

	require.NoError(t, c.SetPrice(models.Tick{Key: models.InstrumentKey{Symbol: "INFY", Segment: models.SegmentCNC}, LTP: d("1900")}))
	q, err := c.Quote(models.InstrumentKey{Symbol: "INFY", Segment: models.SegmentEQ})
	require.NoError(t, err)
	assert.Equal(t, "1900", q.LTP.String())

	fut := models.InstrumentKey{Symbol: "INFY", Segment: models.SegmentFUT, Expiry: "2026-10-29"}
	require.NoError(t, c.SetPrice(models.Tick{Key: fut, LTP: d("1910.5")}))
	q, err = c.Quote(fut)
	require.NoError(t, err)
	assert.Equal(t, "1910.5", q.LTP.String())

	assert.ErrorIs(t, c.SetPrice(models.Tick{Key: models.InstrumentKey{Symbol: "NOPE", Segment: models.SegmentEQ}, LTP: d("1")}), terrors.ErrUnknownSymbol)
	assert.ErrorIs(t, c.SetPrice(models.Tick{Key: fut, LTP: d("0")}), terrors.ErrInvalidOrderParameters)
	assert.ErrorIs(t, c.SetPrice(models.Tick{Key: models.InstrumentKey{Symbol: "INFY", Segment: models.SegmentFUT, Expiry: "2030-01-31"}, LTP: d("1")}), terrors.ErrUnknownInstrument)
}

func TestOptionChain(t *testing.T) {
	t.Parallel()
	c := NewDefault(fixedOptions())

	rows, err := c.OptionChain("NIFTY", "2026-10-29")
	require.NoError(t, err)
	require.Len(t, rows, 17)
	for _, r := range rows {
		assert.Equal(t, models.OptionCE, r.Call.Key.OptionType)
		assert.Equal(t, models.OptionPE, r.Put.Key.OptionType)
		assert.True(t, r.Call.Key.Strike.Equal(r.Strike))
	}

	_, err = c.OptionChain("NIFTY", "2026-10-30")
	assert.ErrorIs(t, err, terrors.ErrUnknownInstrument)
	_, err = c.OptionChain("NOPE", "2026-10-29")
	assert.ErrorIs(t, err, terrors.ErrUnknownSymbol)
}

func TestNewStaticValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		instruments []Instrument
	}{
		{"missing symbol", []Instrument{{LTP: d("10")}}},
		{"zero ltp", []Instrument{{Symbol: "X"}}},
		{"negative lot", []Instrument{{Symbol: "X", LTP: d("10"), LotSize: -1}}},
		{"duplicate", []Instrument{{Symbol: "X", LTP: d("10")}, {Symbol: "X", LTP: d("11")}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewStatic(tt.instruments, fixedOptions())
			assert.ErrorIs(t, err, terrors.ErrConfigInvalid)
		})
	}

	s, err := NewStatic([]Instrument{{Symbol: "X", LTP: d("10")}}, fixedOptions())
	require.NoError(t, err)
	inst, err := s.Instrument("X")
	require.NoError(t, err)
	assert.Equal(t, 1, inst.LotSize)
	assert.True(t, inst.PreviousClose.Equal(d("10")))
	_, err = s.DerivativeContracts("X")
	assert.ErrorIs(t, err, terrors.ErrUnknownInstrument)
}

func TestLoadSeedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	seed := `instruments:
  - symbol: ACME
    name: Acme Ltd
    ltp: "512.40"
    previous_close: "500"
    lot_size: 100
    derivatives: true
    strike_step: "10"
  - symbol: SMALL
    ltp: "42"
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	c, err := Load(path, fixedOptions())
	require.NoError(t, err)
	assert.Len(t, c.Instruments(), 2)

	contracts, err := c.DerivativeContracts("ACME")
	require.NoError(t, err)
	assert.Equal(t, "510", contracts.Strikes[8].String())

	_, err = c.DerivativeContracts("SMALL")
	assert.ErrorIs(t, err, terrors.ErrUnknownInstrument)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("instruments: []\n"), 0o644))
	_, err = Load(empty, fixedOptions())
	assert.ErrorIs(t, err, terrors.ErrConfigInvalid)

	_, err = Load(filepath.Join(dir, "missing.yaml"), fixedOptions())
	assert.Error(t, err)

	def, err := Load("", fixedOptions())
	require.NoError(t, err)
	assert.Len(t, def.Instruments(), len(DefaultInstruments()))
}
