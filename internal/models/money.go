package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a signed fixed-point amount with its currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount" yaml:"amount"`
	Currency string          `json:"currency" yaml:"currency"`
}

// NewMoney creates a Money value.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// NewMoneyFromString parses a dot-separated decimal string.
func NewMoneyFromString(amount, currency string) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string '%s': %w", amount, err)
	}
	return Money{Amount: dec, Currency: currency}, nil
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Abs returns the absolute value in the same currency.
func (m Money) Abs() Money {
	return Money{Amount: m.Amount.Abs(), Currency: m.Currency}
}

// Neg flips the sign.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// Add sums two values of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("cannot add %s to %s", other.Currency, m.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Equal compares amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// String renders the amount with two decimals followed by the currency.
func (m Money) String() string {
	if m.Currency == "" {
		return m.Amount.StringFixed(2)
	}
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}
