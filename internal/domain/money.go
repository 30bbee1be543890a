package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored as BIGINT cents to avoid
// floating point errors. All rounding is half-up to the cent, applied
// here and nowhere else.
type Money struct {
	Cents int64
}

// NewMoney creates a Money instance from cents.
func NewMoney(cents int64) Money {
	return Money{Cents: cents}
}

// FromDecimal converts a decimal amount to cents, rounding half-up.
func FromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Round(2).Mul(decimal.NewFromInt(100)).IntPart()}
}

// ParseAmount parses a decimal string like "100.00" into Money.
func ParseAmount(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// ToDecimal converts cents to a decimal value.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(m.Cents).Div(decimal.NewFromInt(100))
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Cents > 0
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.ToDecimal().StringFixed(2)
}
