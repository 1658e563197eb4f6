// Package money centralizes fixed-point amount handling. All ledger amounts
// are scale-2 decimals; floats never touch a balance.
package money

import (
	"github.com/corebank/ledger-core/pkg"
	"github.com/shopspring/decimal"
)

// MinAmount is the smallest amount a money-movement operation accepts.
var MinAmount = decimal.New(1, -2) // 0.01

var Zero = decimal.Zero

// Parse converts caller-supplied text into a decimal amount.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, pkg.NewAppError(pkg.ErrInvalidInputCode, "amount is not a valid decimal", err)
	}
	return d, nil
}

// ValidateAmount enforces the movement-amount rules: at least 0.01, at most
// max, and no more than two decimal places.
func ValidateAmount(d decimal.Decimal, max decimal.Decimal) error {
	if d.Cmp(MinAmount) < 0 {
		return pkg.NewAppError(pkg.ErrInvalidInputCode, "amount must be at least 0.01", nil)
	}
	if d.Exponent() < -2 {
		return pkg.NewAppError(pkg.ErrInvalidInputCode, "amount must have at most two decimal places", nil)
	}
	if max.IsPositive() && d.Cmp(max) > 0 {
		return pkg.NewAppError(pkg.ErrInvalidInputCode, "amount exceeds the configured maximum", nil)
	}
	return nil
}

// Format renders an amount at ledger scale.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
