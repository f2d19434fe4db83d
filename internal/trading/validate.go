package trading

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
)

// LotQuantity converts a lot count into a contract quantity.
func LotQuantity(lots, lotSize int) (int, error) {
	if lots <= 0 || lotSize <= 0 {
		return 0, terrors.NewValidationError("lots", lots, "lots and lot size must be positive", terrors.ErrInvalidQuantity)
	}
	if lots > math.MaxInt/lotSize {
		return 0, terrors.NewValidationError("lots", lots, fmt.Sprintf("too many lots for lot size %d", lotSize), terrors.ErrInvalidQuantity)
	}
	return lots * lotSize, nil
}

// resolved is a validated request with its catalog data attached.
type resolved struct {
	key         models.InstrumentKey
	lotSize     int
	marginPrice decimal.Decimal
}

// validate checks req against the enums, the catalog and current holdings.
// Must be called with mu held.
func (a *Account) validate(req models.OrderRequest) (resolved, error) {
	var r resolved

	if strings.TrimSpace(req.Symbol) == "" {
		return r, terrors.NewValidationError("symbol", req.Symbol, "symbol is required", terrors.ErrInvalidOrderParameters)
	}
	if !req.Segment.Valid() {
		return r, terrors.NewValidationError("segment", req.Segment, "unknown segment", terrors.ErrInvalidOrderParameters)
	}
	if !req.Side.Valid() {
		return r, terrors.NewValidationError("side", req.Side, "side must be BUY or SELL", terrors.ErrInvalidOrderParameters)
	}
	if !req.Type.Valid() {
		return r, terrors.NewValidationError("order_type", req.Type, "unknown order type", terrors.ErrInvalidOrderParameters)
	}
	if !req.Product.Valid() || !req.Segment.Allows(req.Product) {
		return r, terrors.NewValidationError("product", req.Product,
			fmt.Sprintf("product not allowed for segment %s", req.Segment), terrors.ErrInvalidOrderParameters)
	}
	if req.Quantity <= 0 {
		return r, terrors.NewValidationError("quantity", req.Quantity, "quantity must be positive", terrors.ErrInvalidQuantity)
	}
	if err := validatePrices(req); err != nil {
		return r, err
	}
	if a.catalog == nil {
		return r, terrors.Wrapf(terrors.ErrUnknownSymbol, "%s: no catalog", req.Symbol)
	}

	lot, err := a.catalog.LotSize(req.Symbol)
	if err != nil {
		return r, err
	}
	r.key = req.Key()

	if req.Segment.IsDerivative() {
		if lot <= 0 || req.Quantity%lot != 0 {
			return r, terrors.NewValidationError("quantity", req.Quantity,
				fmt.Sprintf("quantity must be a multiple of lot size %d", lot), terrors.ErrInvalidQuantity)
		}
		if err := a.validateContract(req); err != nil {
			return r, err
		}
		r.lotSize = lot
	}

	switch req.Type {
	case models.OrderTypeMarket:
		q, err := a.catalog.Quote(r.key)
		if err != nil {
			return r, err
		}
		if !q.LTP.IsPositive() {
			return r, terrors.NewDataError("quote", r.key.String(), "no positive last traded price", terrors.ErrPriceUnavailable)
		}
		r.marginPrice = q.LTP
	case models.OrderTypeLimit, models.OrderTypeStopLoss:
		r.marginPrice = req.Price
	case models.OrderTypeStopLossM:
		r.marginPrice = req.TriggerPrice
	}

	if req.Product == models.ProductCNC && req.Side == models.OrderSideSell {
		free := a.holdings.Quantity(req.Symbol) - a.pendingDeliverySells(req.Symbol)
		if req.Quantity > free {
			return r, terrors.NewValidationError("quantity", req.Quantity,
				fmt.Sprintf("only %d shares free to sell", maxInt(free, 0)), terrors.ErrInsufficientHoldings)
		}
	}

	return r, nil
}

func validatePrices(req models.OrderRequest) error {
	if req.Price.IsNegative() {
		return terrors.NewValidationError("price", req.Price, "price cannot be negative", terrors.ErrInvalidOrderParameters)
	}
	if req.TriggerPrice.IsNegative() {
		return terrors.NewValidationError("trigger_price", req.TriggerPrice, "trigger price cannot be negative", terrors.ErrInvalidOrderParameters)
	}

	switch req.Type {
	case models.OrderTypeLimit:
		if !req.Price.IsPositive() {
			return terrors.NewValidationError("price", req.Price, "limit order needs a price", terrors.ErrInvalidOrderParameters)
		}
	case models.OrderTypeStopLoss:
		if !req.Price.IsPositive() {
			return terrors.NewValidationError("price", req.Price, "stop-loss order needs a limit price", terrors.ErrInvalidOrderParameters)
		}
		if !req.TriggerPrice.IsPositive() {
			return terrors.NewValidationError("trigger_price", req.TriggerPrice, "stop-loss order needs a trigger price", terrors.ErrInvalidOrderParameters)
		}
	case models.OrderTypeStopLossM:
		if !req.TriggerPrice.IsPositive() {
			return terrors.NewValidationError("trigger_price", req.TriggerPrice, "stop-loss market order needs a trigger price", terrors.ErrInvalidOrderParameters)
		}
	}
	return nil
}

func (a *Account) validateContract(req models.OrderRequest) error {
	contracts, err := a.catalog.DerivativeContracts(req.Symbol)
	if err != nil {
		return err
	}
	if !contracts.HasExpiry(req.Expiry) {
		return terrors.NewValidationError("expiry", req.Expiry, "no contract for expiry", terrors.ErrUnknownInstrument)
	}
	if req.Segment != models.SegmentOPT {
		return nil
	}
	if !req.OptionType.Valid() {
		return terrors.NewValidationError("option_type", req.OptionType, "option type must be CE or PE", terrors.ErrInvalidOrderParameters)
	}
	if !contracts.HasStrike(req.Strike) {
		return terrors.NewValidationError("strike", req.Strike, "no contract for strike", terrors.ErrUnknownInstrument)
	}
	return nil
}

// pendingDeliverySells sums OPEN CNC sell quantity for symbol.
func (a *Account) pendingDeliverySells(symbol string) int {
	total := 0
	for _, o := range a.orders {
		if o.Status == models.OrderStatusOpen && o.Product == models.ProductCNC &&
			o.Side == models.OrderSideSell && o.Symbol == symbol {
			total += o.Quantity
		}
	}
	return total
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
