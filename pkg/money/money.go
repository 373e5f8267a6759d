// Package money renders ingested amounts as currency values. Amounts are
// stored as decimals with four fractional digits; Money rounds them to the
// currency's minor unit for display and totals only.
package money

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currencies of the exchanges brokers report to (ISO-4217)
const (
	CLP = "CLP" // Chilean Peso (no decimal places)
	PEN = "PEN" // Peruvian Sol
	COP = "COP" // Colombian Peso
	USD = "USD" // US Dollar
)

var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// New creates a new Money value from minor units and currency code.
func New(amountMinor int64, currencyCode string) *Money {
	return &Money{m: money.New(amountMinor, normalizeCode(currencyCode))}
}

// NewFromDecimal rounds amount half away from zero to the currency's minor
// unit. Unknown currency codes fall back to CLP.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	code := normalizeCode(currencyCode)
	currency := money.GetCurrency(code)
	multiplier := decimal.New(1, int32(currency.Fraction))
	minor := amount.Mul(multiplier).Round(0).IntPart()
	return &Money{m: money.New(minor, code)}
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

func normalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || money.GetCurrency(code) == nil {
		return CLP
	}
	return code
}

// Amount returns the amount in minor units
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

// Add returns m + other; both must share a currency.
func (m *Money) Add(other *Money) (*Money, error) {
	if m.Currency() != other.Currency() {
		return nil, ErrCurrencyMismatch
	}
	sum, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: sum}, nil
}

// Sum totals amounts in one currency.
func Sum(currencyCode string, amounts ...decimal.Decimal) *Money {
	total := Zero(currencyCode)
	for _, a := range amounts {
		next, err := total.Add(NewFromDecimal(a, currencyCode))
		if err == nil {
			total = next
		}
	}
	return total
}

// Display returns the value formatted with the currency's symbol and
// separators, e.g. "$1.501" for CLP.
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}

func (m *Money) String() string {
	return m.Display()
}

// ToDecimal converts back to major units.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	return decimal.New(m.m.Amount(), -int32(m.m.Currency().Fraction))
}

// MarshalJSON encodes {"amount": "<major units>", "currency": "...", "display": "..."}.
func (m *Money) MarshalJSON() ([]byte, error) {
	if m == nil || m.m == nil {
		return []byte("null"), nil
	}
	fraction := int32(m.m.Currency().Fraction)
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.ToDecimal().StringFixed(fraction),
		Currency: m.Currency(),
		Display:  m.Display(),
	})
}
