// README: Change feed events and row filters.
package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bagdrop/internal/types"
)

const (
	TypeContractCreated = "contract_created"
	TypeStatusChanged   = "contract_status_changed"
	TypeLocationUpdated = "location_updated"
)

// Event is one change to a contract row as seen by subscribers.
type Event struct {
	Type       string       `json:"type"`
	ContractID types.ID     `json:"contract_id"`
	Status     int          `json:"contract_status_id"`
	DeliveryID types.ID     `json:"delivery_id,omitempty"`
	AirlineID  types.ID     `json:"airline_id,omitempty"`
	Location   *types.Point `json:"current_location_geo,omitempty"`
	Address    string       `json:"current_location,omitempty"`
	At         time.Time    `json:"at"`
}

var ErrBadFilter = errors.New("bad filter")

// Filter selects events by column equality. Empty fields match anything.
type Filter struct {
	DeliveryID types.ID
	AirlineID  types.ID
	Status     int
}

func (f Filter) Match(e Event) bool {
	if f.DeliveryID != "" && e.DeliveryID != f.DeliveryID {
		return false
	}
	if f.AirlineID != "" && e.AirlineID != f.AirlineID {
		return false
	}
	if f.Status != 0 && e.Status != f.Status {
		return false
	}
	return true
}

// ParseFilter reads clauses like "delivery_id=eq.abc&contract_status_id=eq.4".
// Clauses may be separated by '&' or ','.
func ParseFilter(s string) (Filter, error) {
	var f Filter
	s = strings.TrimSpace(s)
	if s == "" {
		return f, nil
	}
	clauses := strings.FieldsFunc(s, func(r rune) bool { return r == '&' || r == ',' })
	for _, clause := range clauses {
		col, rest, ok := strings.Cut(strings.TrimSpace(clause), "=")
		if !ok {
			return Filter{}, fmt.Errorf("%w: %q has no operator", ErrBadFilter, clause)
		}
		val, ok := strings.CutPrefix(rest, "eq.")
		if !ok || val == "" {
			return Filter{}, fmt.Errorf("%w: %q must be column=eq.value", ErrBadFilter, clause)
		}
		switch col {
		case "delivery_id":
			f.DeliveryID = types.ID(val)
		case "airline_id":
			f.AirlineID = types.ID(val)
		case "contract_status_id":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Filter{}, fmt.Errorf("%w: bad status %q", ErrBadFilter, val)
			}
			f.Status = n
		default:
			return Filter{}, fmt.Errorf("%w: unknown column %q", ErrBadFilter, col)
		}
	}
	return f, nil
}
