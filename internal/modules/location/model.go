// README: Location fixes, snapshots and watch options.
package location

import (
	"errors"
	"time"

	"bagdrop/internal/types"
)

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrBadRequest       = errors.New("bad request")
	ErrClosed           = errors.New("location forwarder closed")
)

// Fix is one reported device position.
type Fix struct {
	UserID     types.ID    `json:"user_id"`
	Position   types.Point `json:"position"`
	Accuracy   float64     `json:"accuracy_m,omitempty"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// Snapshot is a forwarded position kept for history.
type Snapshot struct {
	ID         int64
	UserID     types.ID
	Position   types.Point
	Address    string
	RecordedAt time.Time
}

type WatchOptions struct {
	Interval          time.Duration
	MinDistanceMeters float64
}

func DefaultWatchOptions() WatchOptions {
	return WatchOptions{Interval: 5 * time.Second, MinDistanceMeters: 10}
}

// Nearby is a delivery person found by a radius query.
type Nearby struct {
	UserID     types.ID    `json:"user_id"`
	Position   types.Point `json:"position"`
	DistanceKm float64     `json:"distance_km"`
}
