// README: Price table entries and lookup results.
package pricing

import "bagdrop/internal/types"

// Entry is one row of the city price table. Table order is significant: the
// first entry whose city matches an address wins.
type Entry struct {
	ID       int64
	City     string
	Price    types.Money
	Position int
}

type Status string

const (
	StatusOK        Status = "ok"
	StatusNoPricing Status = "no_pricing"
	StatusNoMatch   Status = "no_match"
)

// Quote separates a legitimate zero fee (StatusOK with Amount 0) from a
// missing one (StatusNoPricing / StatusNoMatch).
type Quote struct {
	Fee    types.Money `json:"fee"`
	Status Status      `json:"status"`
	City   string      `json:"city,omitempty"`
}
