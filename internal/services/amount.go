package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// maxAmount is the first value that no longer fits the decimal(15,2) column
var maxAmount = decimal.New(1, 13)

const (
	// maxAmountScale bounds fractional digits accepted before rounding
	maxAmountScale = 20
	// maxAmountDigits bounds the coefficient of a parsed amount
	maxAmountDigits = 40
)

// zeroDecimalCurrencies have no minor unit
var zeroDecimalCurrencies = map[string]bool{
	"PYG": true,
	"CLP": true,
}

// RoundAmount rounds half away from zero to the currency's minor units:
// 0 places for PYG and CLP, 2 for everything else.
func RoundAmount(amount decimal.Decimal, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return amount.Round(0)
	}
	return amount.Round(2)
}

// ParseAmount parses a caller supplied amount. NaN, infinities and values
// that round to zero or below are rejected.
func ParseAmount(raw, currency string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return ValidateAmount(d, currency)
}

// AmountFromFloat converts a float amount, rejecting NaN and infinities
func AmountFromFloat(f float64, currency string) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, f)
	}
	return ValidateAmount(decimal.NewFromFloat(f), currency)
}

// ValidateAmount rounds the amount for currency and checks it is positive
// and below maxAmount. The magnitude is checked before rounding: rounding a
// value with a huge exponent materialises the whole power of ten.
func ValidateAmount(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	exp := int64(amount.Exponent())
	digits := int64(amount.NumDigits())
	if exp < -maxAmountScale || digits > maxAmountDigits {
		return decimal.Zero, fmt.Errorf("%w: too many digits", ErrInvalidAmount)
	}
	if !amount.IsZero() && digits+exp > 13 {
		return decimal.Zero, fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, maxAmount.String())
	}

	rounded := RoundAmount(amount, currency)
	if !rounded.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	if rounded.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, maxAmount.String())
	}
	return rounded, nil
}
