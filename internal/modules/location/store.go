// README: Location store backed by Redis GEO and Postgres snapshots.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"bagdrop/internal/geo"
	"bagdrop/internal/types"
)

const (
	geoKey     = "geo:delivery"
	fixTimeKey = "loc:fix_at"
	deniedKey  = "loc:denied"
)

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) SetFix(ctx context.Context, f Fix) error {
	id := string(f.UserID)
	pipe := s.redis.TxPipeline()
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      id,
		Longitude: f.Position.Lng,
		Latitude:  f.Position.Lat,
	})
	pipe.HSet(ctx, fixTimeKey, id, f.RecordedAt.UnixMilli())
	_, err := pipe.Exec(ctx)
	return err
}

// LatestFix returns nil when the user never reported a position, or when the
// position has no timestamp and its age cannot be judged.
func (s *Store) LatestFix(ctx context.Context, userID types.ID) (*Fix, error) {
	id := string(userID)
	pos, err := s.redis.GeoPos(ctx, geoKey, id).Result()
	if err != nil {
		return nil, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return nil, nil
	}
	ms, err := s.redis.HGet(ctx, fixTimeKey, id).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Fix{
		UserID:     userID,
		Position:   types.Point{Lat: pos[0].Latitude, Lng: pos[0].Longitude},
		RecordedAt: time.UnixMilli(ms),
	}, nil
}

func (s *Store) SetPermission(ctx context.Context, userID types.ID, granted bool) error {
	if granted {
		return s.redis.SRem(ctx, deniedKey, string(userID)).Err()
	}
	return s.redis.SAdd(ctx, deniedKey, string(userID)).Err()
}

func (s *Store) Denied(ctx context.Context, userID types.ID) (bool, error) {
	return s.redis.SIsMember(ctx, deniedKey, string(userID)).Result()
}

// Nearby lists reported positions within radiusKm of p, closest first.
func (s *Store) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Nearby, error) {
	res, err := s.redis.GeoSearchLocation(ctx, geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Nearby, 0, len(res))
	for _, loc := range res {
		out = append(out, Nearby{
			UserID:     types.ID(loc.Name),
			Position:   types.Point{Lat: loc.Latitude, Lng: loc.Longitude},
			DistanceKm: loc.Dist,
		})
	}
	return out, nil
}

func (s *Store) Remove(ctx context.Context, userID types.ID) error {
	pipe := s.redis.TxPipeline()
	pipe.ZRem(ctx, geoKey, string(userID))
	pipe.HDel(ctx, fixTimeKey, string(userID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO location_snapshots (user_id, position, address, recorded_at)
		VALUES ($1, ST_GeogFromText($2), $3, $4)`,
		string(snap.UserID), geo.Format(snap.Position), snap.Address, snap.RecordedAt,
	)
	return err
}

func (s *Store) ListSnapshots(ctx context.Context, userID types.ID, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, ST_AsEWKT(position), address, recorded_at
		FROM location_snapshots
		WHERE user_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, string(userID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var uid, wkt string
		if err := rows.Scan(&snap.ID, &uid, &wkt, &snap.Address, &snap.RecordedAt); err != nil {
			return nil, err
		}
		p, ok := geo.ParseString(wkt)
		if !ok {
			continue
		}
		snap.UserID = types.ID(uid)
		snap.Position = p
		out = append(out, snap)
	}
	return out, rows.Err()
}
