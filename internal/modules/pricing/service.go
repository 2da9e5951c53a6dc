// README: Pricing service normalizes delivery addresses and looks up the city fee.
package pricing

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"bagdrop/internal/logger"
	"bagdrop/internal/types"
)

// EntrySource is the read side of the price table.
type EntrySource interface {
	List(ctx context.Context) ([]Entry, error)
}

type Service struct {
	store EntrySource
	log   logger.Logger
}

func NewService(store EntrySource, log logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// Quote looks up the delivery fee for a free-form address. A table that is
// empty or cannot be read yields StatusNoPricing; it is never an error.
func (s *Service) Quote(ctx context.Context, address string) Quote {
	if s.store == nil {
		return Quote{Fee: types.NewMoney(0), Status: StatusNoPricing}
	}
	entries, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("pricing table unavailable", "error", err)
		return Quote{Fee: types.NewMoney(0), Status: StatusNoPricing}
	}
	return Match(entries, address)
}

func (s *Service) List(ctx context.Context) ([]Entry, error) {
	return s.store.List(ctx)
}

// Match scans entries in order and returns the first whose normalized city is
// a substring of the normalized address.
func Match(entries []Entry, address string) Quote {
	if len(entries) == 0 {
		return Quote{Fee: types.NewMoney(0), Status: StatusNoPricing}
	}
	addr := Normalize(address)
	for _, e := range entries {
		city := Normalize(e.City)
		if city == "" {
			continue
		}
		if strings.Contains(addr, city) {
			fee := e.Price
			if fee.Currency == "" {
				fee.Currency = types.DefaultCurrency
			}
			return Quote{Fee: fee, Status: StatusOK, City: e.City}
		}
	}
	return Quote{Fee: types.NewMoney(0), Status: StatusNoMatch}
}

var (
	cityWord   = regexp.MustCompile(`\bcity\b`)
	commaSpace = regexp.MustCompile(`\s*,\s*`)
	spaceRun   = regexp.MustCompile(`\s+`)
)

// Normalize lowercases s, strips diacritics, drops the standalone word "city",
// normalizes comma spacing and collapses whitespace. Normalize(Normalize(s))
// always equals Normalize(s).
func Normalize(s string) string {
	s = stripMarks(strings.ToLower(s))
	s = cityWord.ReplaceAllString(s, " ")
	s = commaSpace.ReplaceAllString(s, ", ")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
