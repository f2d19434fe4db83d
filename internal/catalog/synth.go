package catalog

import (
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"paper-trader/internal/models"
	"paper-trader/pkg/utils"
)

var (
	defaultStrikeStep = decimal.NewFromInt(50)
	futureBasisStep   = decimal.RequireFromString("0.002")
	minPremium        = decimal.RequireFromString("0.05")
)

// generator derives F&O contracts from spot prices. Output depends only on
// the instruments, the seed and the anchor date.
type generator struct {
	opts Options
	rng  *rand.Rand
}

func newGenerator(opts Options) *generator {
	return &generator{opts: opts, rng: rand.New(rand.NewSource(opts.Seed))}
}

// populate must run before s is shared.
func (g *generator) populate(s *Static) {
	symbols := make([]string, 0, len(s.instruments))
	for sym, inst := range s.instruments {
		if inst.Derivatives {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	expiries := utils.UpcomingExpiries(g.opts.Now(), g.opts.Expiries)
	for _, sym := range symbols {
		inst := s.instruments[sym]
		c := models.Contracts{Symbol: sym, LotSize: inst.LotSize}
		for _, e := range expiries {
			c.Expiries = append(c.Expiries, utils.FormatExpiry(e))
		}
		c.Strikes = g.strikes(inst)
		s.contracts[sym] = c

		for i, expiry := range c.Expiries {
			g.future(s, inst, expiry, i)
			for _, strike := range c.Strikes {
				g.option(s, inst, expiry, strike, models.OptionCE)
				g.option(s, inst, expiry, strike, models.OptionPE)
			}
		}
	}
}

func (g *generator) strikes(inst *Instrument) []decimal.Decimal {
	step := inst.StrikeStep
	if !step.IsPositive() {
		step = defaultStrikeStep
	}
	atm := inst.LTP.Div(step).Round(0).Mul(step)

	n := g.opts.StrikesEachSide
	out := make([]decimal.Decimal, 0, 2*n+1)
	for i := -n; i <= n; i++ {
		strike := atm.Add(step.Mul(decimal.NewFromInt(int64(i))))
		if strike.IsPositive() {
			out = append(out, strike)
		}
	}
	return out
}

// future prices the i-th expiry at spot × (1 + i × 0.002).
func (g *generator) future(s *Static, inst *Instrument, expiry string, i int) {
	basis := decimal.NewFromInt(1).Add(futureBasisStep.Mul(decimal.NewFromInt(int64(i))))
	key := models.InstrumentKey{Symbol: inst.Symbol, Segment: models.SegmentFUT, Expiry: expiry}
	s.quotes[key.PriceKey()] = models.Quote{
		Key:           key,
		LTP:           inst.LTP.Mul(basis).Round(2),
		PreviousClose: inst.PreviousClose.Mul(basis).Round(2),
	}
}

// option prices a premium as intrinsic value plus time value. In the money
// the time value is at least 5, out of the money the premium decays with
// distance from spot.
func (g *generator) option(s *Static, inst *Instrument, expiry string, strike decimal.Decimal, ot models.OptionType) {
	spot := inst.LTP
	intrinsic := spot.Sub(strike)
	if ot == models.OptionPE {
		intrinsic = strike.Sub(spot)
	}

	var premium decimal.Decimal
	if intrinsic.IsPositive() {
		tv := decimal.Max(decimal.NewFromInt(5), decimal.NewFromFloat(g.rng.Float64()*50))
		premium = intrinsic.Add(tv)
	} else {
		distance := intrinsic.Abs()
		otm := decimal.NewFromInt(50).Sub(distance.Div(decimal.NewFromInt(10))).
			Add(decimal.NewFromFloat(g.rng.Float64() * 20))
		premium = decimal.Max(decimal.NewFromInt(1), otm)
	}
	premium = decimal.Max(minPremium, premium.Round(2))

	key := models.InstrumentKey{
		Symbol:     inst.Symbol,
		Segment:    models.SegmentOPT,
		Expiry:     expiry,
		Strike:     strike,
		OptionType: ot,
	}
	s.quotes[key.PriceKey()] = models.Quote{Key: key, LTP: premium, PreviousClose: premium}
}
