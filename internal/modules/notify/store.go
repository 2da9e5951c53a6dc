// README: Push token store backed by PostgreSQL.
package notify

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

// Upsert keeps one token per (user, device); a re-login replaces it.
func (s *Store) Upsert(ctx context.Context, t PushToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO push_tokens (user_id, device_id, token, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, device_id)
		DO UPDATE SET token = EXCLUDED.token, updated_at = NOW()`,
		string(t.UserID), t.DeviceID, t.Token,
	)
	return err
}

func (s *Store) Delete(ctx context.Context, userID types.ID, deviceID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM push_tokens WHERE user_id = $1 AND device_id = $2`,
		string(userID), deviceID)
	return err
}

func (s *Store) ListByUser(ctx context.Context, userID types.ID) ([]PushToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, device_id, token, updated_at
		FROM push_tokens
		WHERE user_id = $1
		ORDER BY updated_at DESC`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PushToken
	for rows.Next() {
		var t PushToken
		var uid string
		if err := rows.Scan(&uid, &t.DeviceID, &t.Token, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.UserID = types.ID(uid)
		out = append(out, t)
	}
	return out, rows.Err()
}
