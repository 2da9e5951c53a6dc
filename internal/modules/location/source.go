// README: Position source that polls the latest stored fix of a user.
package location

import (
	"context"
	"sync"
	"time"

	"bagdrop/internal/geo"
	"bagdrop/internal/logger"
	"bagdrop/internal/types"
)

// Subscription streams fixes until Close is called or the source gives up.
// Err reports why the stream ended once Fixes is closed.
type Subscription interface {
	Fixes() <-chan Fix
	Close()
	Err() error
}

type PositionSource interface {
	Watch(ctx context.Context, userID types.ID, opts WatchOptions) (Subscription, error)
}

type FixReader interface {
	LatestFix(ctx context.Context, userID types.ID) (*Fix, error)
	Denied(ctx context.Context, userID types.ID) (bool, error)
}

// StoreSource turns the fixes devices push into a watch stream. Fixes older
// than maxAge are not emitted; zero disables the check.
type StoreSource struct {
	fixes  FixReader
	maxAge time.Duration
	log    logger.Logger
	now    func() time.Time
}

func NewStoreSource(fixes FixReader, maxAge time.Duration, log logger.Logger) *StoreSource {
	return &StoreSource{fixes: fixes, maxAge: maxAge, log: log, now: time.Now}
}

func (s *StoreSource) stale(f *Fix) bool {
	return s.maxAge > 0 && s.now().Sub(f.RecordedAt) > s.maxAge
}

func (s *StoreSource) Watch(ctx context.Context, userID types.ID, opts WatchOptions) (Subscription, error) {
	denied, err := s.fixes.Denied(ctx, userID)
	if err != nil {
		return nil, err
	}
	if denied {
		return nil, ErrPermissionDenied
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultWatchOptions().Interval
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &pollSubscription{ch: make(chan Fix, 1), cancel: cancel}
	go sub.poll(ctx, s, userID, opts)
	return sub, nil
}

type pollSubscription struct {
	ch     chan Fix
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (p *pollSubscription) Fixes() <-chan Fix { return p.ch }

func (p *pollSubscription) Close() { p.cancel() }

func (p *pollSubscription) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *pollSubscription) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *pollSubscription) poll(ctx context.Context, s *StoreSource, userID types.ID, opts WatchOptions) {
	defer close(p.ch)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var last *Fix
	for {
		denied, err := s.fixes.Denied(ctx, userID)
		if err == nil && denied {
			p.fail(ErrPermissionDenied)
			return
		}

		f, err := s.fixes.LatestFix(ctx, userID)
		if err != nil && ctx.Err() == nil {
			s.log.Debug("reading latest fix failed", "user_id", userID, "error", err)
		}
		if err == nil && f != nil && !s.stale(f) && moved(last, f, opts.MinDistanceMeters) {
			select {
			case p.ch <- *f:
				last = f
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// moved reports whether f is newer than last and far enough from it.
func moved(last, f *Fix, minMeters float64) bool {
	if last == nil {
		return true
	}
	if !f.RecordedAt.After(last.RecordedAt) {
		return false
	}
	return geo.DistanceKm(last.Position, f.Position)*1000 >= minMeters
}
