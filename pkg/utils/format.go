// Package utils provides shared utility functions.
package utils

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	lakh  = decimal.NewFromInt(100000)
	crore = decimal.NewFromInt(10000000)
)

// FormatINR formats an amount in Indian currency format (lakhs, crores),
// e.g. ₹10,00,000.00.
func FormatINR(amount decimal.Decimal) string {
	negative := amount.IsNegative()
	str := amount.Abs().StringFixed(2)

	intPart, decPart := str, "00"
	if i := strings.IndexByte(str, '.'); i >= 0 {
		intPart, decPart = str[:i], str[i+1:]
	}

	result := "₹" + formatIndianNumber(intPart) + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber groups an integer string as 12,34,567.
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	// First group of 3 from right
	result := s[n-3:]
	s = s[:n-3]

	// Then groups of 2
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}
	return result
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value decimal.Decimal) string {
	sign := ""
	if value.IsPositive() {
		sign = "+"
	}
	return sign + value.StringFixed(2) + "%"
}

// FormatPnL formats P&L with an explicit sign for gains.
func FormatPnL(pnl decimal.Decimal) string {
	formatted := FormatINR(pnl)
	if pnl.IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a quantity with Indian grouping.
func FormatQuantity(qty int) string {
	if qty < 0 {
		return "-" + formatIndianNumber(strconv.Itoa(-qty))
	}
	return formatIndianNumber(strconv.Itoa(qty))
}

// FormatCompact formats a number in compact form (L/Cr).
func FormatCompact(amount decimal.Decimal) string {
	abs := amount.Abs()
	switch {
	case abs.GreaterThanOrEqual(crore):
		return amount.Div(crore).StringFixed(2) + " Cr"
	case abs.GreaterThanOrEqual(lakh):
		return amount.Div(lakh).StringFixed(2) + " L"
	}
	return FormatINR(amount)
}
