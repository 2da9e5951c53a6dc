// README: Location service ingests device fixes and permission reports.
package location

import (
	"context"
	"fmt"
	"math"
	"time"

	"bagdrop/internal/logger"
	"bagdrop/internal/types"
)

type FixStore interface {
	SetFix(ctx context.Context, f Fix) error
	LatestFix(ctx context.Context, userID types.ID) (*Fix, error)
	SetPermission(ctx context.Context, userID types.ID, granted bool) error
	Denied(ctx context.Context, userID types.ID) (bool, error)
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Nearby, error)
	AppendSnapshot(ctx context.Context, snap Snapshot) error
	ListSnapshots(ctx context.Context, userID types.ID, limit int) ([]Snapshot, error)
}

type Service struct {
	store  FixStore
	maxAge time.Duration
	log    logger.Logger
	now    func() time.Time
}

func NewService(store FixStore, maxAge time.Duration, log logger.Logger) *Service {
	return &Service{store: store, maxAge: maxAge, log: log, now: time.Now}
}

type Update struct {
	UserID     types.ID
	Position   types.Point
	Accuracy   float64
	RecordedAt time.Time
}

// Update stores the latest fix of a user. A fix implies the device has
// location permission again.
func (s *Service) Update(ctx context.Context, u Update) (Fix, error) {
	if u.UserID == "" {
		return Fix{}, ErrBadRequest
	}
	if err := validPoint(u.Position); err != nil {
		return Fix{}, err
	}
	at := u.RecordedAt
	now := s.now()
	if at.IsZero() || at.After(now) {
		at = now
	}
	f := Fix{UserID: u.UserID, Position: u.Position, Accuracy: u.Accuracy, RecordedAt: at}
	if err := s.store.SetFix(ctx, f); err != nil {
		return Fix{}, err
	}
	if err := s.store.SetPermission(ctx, u.UserID, true); err != nil {
		s.log.Warn("clearing permission flag failed", "user_id", u.UserID, "error", err)
	}
	return f, nil
}

func validPoint(p types.Point) error {
	switch {
	case math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0):
		return fmt.Errorf("%w: coordinates must be finite", ErrBadRequest)
	case p.Lat < -85.05112878 || p.Lat > 85.05112878:
		return fmt.Errorf("%w: latitude %v out of range", ErrBadRequest, p.Lat)
	case p.Lng < -180 || p.Lng > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrBadRequest, p.Lng)
	}
	return nil
}

func (s *Service) ReportPermission(ctx context.Context, userID types.ID, granted bool) error {
	if userID == "" {
		return ErrBadRequest
	}
	if !granted {
		s.log.Warn("location permission denied by device", "user_id", userID)
	}
	return s.store.SetPermission(ctx, userID, granted)
}

// Latest returns the last fix, or nil when there is none.
func (s *Service) Latest(ctx context.Context, userID types.ID) (*Fix, error) {
	return s.store.LatestFix(ctx, userID)
}

// Current returns the last position if it is recent enough to judge vicinity.
func (s *Service) Current(ctx context.Context, userID types.ID) (*types.Point, error) {
	f, err := s.store.LatestFix(ctx, userID)
	if err != nil || f == nil {
		return nil, err
	}
	if s.maxAge > 0 && s.now().Sub(f.RecordedAt) > s.maxAge {
		return nil, nil
	}
	p := f.Position
	return &p, nil
}

func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Nearby, error) {
	if err := validPoint(p); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", ErrBadRequest)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.Nearby(ctx, p, radiusKm, limit)
}

func (s *Service) FlushSnapshot(ctx context.Context, userID types.ID, p types.Point, address string) error {
	return s.store.AppendSnapshot(ctx, Snapshot{
		UserID:     userID,
		Position:   p,
		Address:    address,
		RecordedAt: s.now(),
	})
}

func (s *Service) History(ctx context.Context, userID types.ID, limit int) ([]Snapshot, error) {
	return s.store.ListSnapshots(ctx, userID, limit)
}
