// README: Pricing store backed by PostgreSQL.
package pricing

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"bagdrop/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// List returns the table in lookup order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, city, price, currency, position
		FROM pricing
		ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.City, &e.Price.Amount, &e.Price.Currency, &e.Position); err != nil {
			return nil, err
		}
		if e.Price.Currency == "" {
			e.Price.Currency = types.DefaultCurrency
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
