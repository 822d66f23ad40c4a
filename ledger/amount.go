package ledger

import (
	"errors"
	"fmt"
)

var ErrCurrencyMismatch = errors.New("currency mismatch")

// Amount is an exact quantity of a currency, in minor units (cents).
type Amount struct {
	Quantity int64  `json:"quantity"`
	Currency string `json:"currency"`
}

func NewAmount(quantity int64, currency string) Amount {
	return Amount{Quantity: quantity, Currency: currency}
}

// Dollars is whole dollars expressed in cents.
func Dollars(n int64) Amount { return NewAmount(n*100, "USD") }

func (a Amount) Plus(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	return Amount{Quantity: a.Quantity + b.Quantity, Currency: a.Currency}, nil
}

func (a Amount) Minus(b Amount) (Amount, error) {
	return a.Plus(Amount{Quantity: -b.Quantity, Currency: b.Currency})
}

func (a Amount) String() string {
	q := a.Quantity
	sign := ""
	if q < 0 {
		sign, q = "-", -q
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, q/100, q%100, a.Currency)
}
