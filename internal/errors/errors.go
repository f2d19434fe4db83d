// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Standard sentinel errors
var (
	ErrInsufficientMargin     = errors.New("insufficient margin")
	ErrInsufficientHoldings   = errors.New("insufficient holdings")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidOrderParameters = errors.New("invalid order parameters")
	ErrInvalidCancelState     = errors.New("order cannot be cancelled in its current state")
	ErrUnknownSymbol          = errors.New("unknown symbol")
	ErrUnknownInstrument      = errors.New("unknown instrument")
	ErrOrderNotFound          = errors.New("order not found")
	ErrPositionNotFound       = errors.New("position not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrPriceUnavailable       = errors.New("price unavailable")
	ErrConfigInvalid          = errors.New("invalid configuration")
	ErrDatabaseError          = errors.New("database error")
)

// MarginError is returned when an order needs more margin than is available.
type MarginError struct {
	Symbol    string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *MarginError) Error() string {
	return fmt.Sprintf("insufficient margin for %s: required %s, available %s",
		e.Symbol, e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *MarginError) Unwrap() error {
	return ErrInsufficientMargin
}

// NewMarginError creates a new MarginError.
func NewMarginError(symbol string, required, available decimal.Decimal) *MarginError {
	return &MarginError{
		Symbol:    symbol,
		Required:  required,
		Available: available,
	}
}

// OrderError represents an error related to order operations.
type OrderError struct {
	OrderID string
	Symbol  string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.OrderID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.OrderID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, symbol, action, reason string, err error) *OrderError {
	return &OrderError{
		OrderID: orderID,
		Symbol:  symbol,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// ValidationError represents a validation error. Err is the sentinel the
// failure belongs to.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Code maps an error to a stable machine-readable code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientMargin):
		return "INSUFFICIENT_MARGIN"
	case errors.Is(err, ErrInsufficientHoldings):
		return "INSUFFICIENT_HOLDINGS"
	case errors.Is(err, ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, ErrInvalidOrderParameters):
		return "INVALID_ORDER_PARAMETERS"
	case errors.Is(err, ErrInvalidCancelState):
		return "INVALID_CANCEL_STATE"
	case errors.Is(err, ErrUnknownSymbol):
		return "UNKNOWN_SYMBOL"
	case errors.Is(err, ErrUnknownInstrument):
		return "UNKNOWN_INSTRUMENT"
	case errors.Is(err, ErrOrderNotFound):
		return "ORDER_NOT_FOUND"
	case errors.Is(err, ErrPositionNotFound):
		return "POSITION_NOT_FOUND"
	case errors.Is(err, ErrAccountNotFound):
		return "ACCOUNT_NOT_FOUND"
	case errors.Is(err, ErrPriceUnavailable):
		return "PRICE_UNAVAILABLE"
	}
	return "INTERNAL"
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// New is errors.New re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
