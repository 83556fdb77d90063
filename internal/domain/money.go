package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the settlement currency when none is configured.
const DefaultCurrency = "KRW"

// minorUnitExponents lists ISO 4217 exponents for currencies we settle in.
var minorUnitExponents = map[string]int32{
	"KRW": 0,
	"JPY": 0,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
}

// Money represents a monetary value in a specific currency.
// Amount is stored in the currency's minor unit to avoid floating point errors.
type Money struct {
	Amount   int64
	Currency string // ISO 4217
}

// NewMoney creates a new Money instance from minor units.
func NewMoney(amount int64, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: strings.ToUpper(strings.TrimSpace(currency)),
	}
}

// Exponent returns the minor unit exponent for the currency (2 when unknown).
func Exponent(currency string) int32 {
	if exp, ok := minorUnitExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// ToDecimal converts minor units to a major-unit decimal.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.New(m.Amount, -Exponent(m.Currency))
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.ToDecimal().StringFixed(Exponent(m.Currency)), m.Currency)
}
