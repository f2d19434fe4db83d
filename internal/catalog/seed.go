package catalog

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	terrors "paper-trader/internal/errors"
)

// SeedFile is the YAML layout of a catalog file.
type SeedFile struct {
	Instruments []Instrument `yaml:"instruments"`
}

// LoadFile reads instruments from a YAML seed file.
func LoadFile(path string) ([]Instrument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, terrors.Wrapf(terrors.ErrConfigInvalid, "parse catalog file %s: %v", path, err)
	}
	if len(seed.Instruments) == 0 {
		return nil, terrors.Wrapf(terrors.ErrConfigInvalid, "catalog file %s lists no instruments", path)
	}
	return seed.Instruments, nil
}

// Load builds a catalog from path, or from DefaultInstruments when path is
// empty.
func Load(path string, opts Options) (*Static, error) {
	if path == "" {
		return NewStatic(DefaultInstruments(), opts)
	}
	instruments, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewStatic(instruments, opts)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultInstruments returns the built-in NSE universe.
func DefaultInstruments() []Instrument {
	return []Instrument{
		{Symbol: "RELIANCE", Name: "Reliance Industries Ltd", LTP: d("2847.35"), PreviousClose: d("2812.50"), LotSize: 250, Derivatives: true},
		{Symbol: "TCS", Name: "Tata Consultancy Services Ltd", LTP: d("4125.80"), PreviousClose: d("4150.20"), LotSize: 150, Derivatives: true},
		{Symbol: "HDFCBANK", Name: "HDFC Bank Ltd", LTP: d("1685.40"), PreviousClose: d("1662.80"), LotSize: 550, Derivatives: true},
		{Symbol: "INFY", Name: "Infosys Ltd", LTP: d("1862.50"), PreviousClose: d("1878.30"), LotSize: 300, Derivatives: true},
		{Symbol: "TATAMOTORS", Name: "Tata Motors Ltd", LTP: d("785.60"), PreviousClose: d("768.90"), LotSize: 1350, Derivatives: true},
		{Symbol: "ICICIBANK", Name: "ICICI Bank Ltd", LTP: d("1268.90"), PreviousClose: d("1255.40"), LotSize: 700, Derivatives: true},
		{Symbol: "BHARTIARTL", Name: "Bharti Airtel Ltd", LTP: d("1580.25"), PreviousClose: d("1598.80"), LotSize: 475, Derivatives: true},
		{Symbol: "WIPRO", Name: "Wipro Ltd", LTP: d("298.45"), PreviousClose: d("302.10"), LotSize: 1500, Derivatives: true},
		{Symbol: "SUNPHARMA", Name: "Sun Pharmaceutical Industries Ltd", LTP: d("1792.30"), PreviousClose: d("1780.50"), LotSize: 350, Derivatives: true},
		{Symbol: "ADANIENT", Name: "Adani Enterprises Ltd", LTP: d("2425.60"), PreviousClose: d("2458.30"), LotSize: 250, Derivatives: true},
		{Symbol: "NIFTY", Name: "Nifty 50", LTP: d("22450.50"), PreviousClose: d("22380.25"), LotSize: 50, Derivatives: true},
		{Symbol: "BANKNIFTY", Name: "Nifty Bank", LTP: d("48210.75"), PreviousClose: d("48050.10"), LotSize: 15, Derivatives: true, StrikeStep: d("100")},
	}
}
