// README: Common money value object used across modules.
package types

import "strconv"

// DefaultCurrency is used when a stored amount carries no currency of its own.
const DefaultCurrency = "PHP"

// Money holds whole currency units; the price table never carries fractions.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func NewMoney(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}

func (m Money) String() string {
	cur := m.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	return cur + " " + strconv.FormatInt(m.Amount, 10)
}
