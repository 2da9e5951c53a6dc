// README: Forwards tracked positions onto the in-transit contracts of a user.
package location

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"bagdrop/internal/logger"
	"bagdrop/internal/metrics"
	"bagdrop/internal/types"
)

// ContractWriter writes a position onto the in-transit contracts of a
// delivery person and returns the contracts it touched.
type ContractWriter interface {
	UpdateCurrentLocation(ctx context.Context, deliveryID types.ID, text string, p types.Point) ([]types.ID, error)
}

type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, p types.Point) (string, error)
}

// Mirror publishes live positions somewhere clients can watch directly.
type Mirror interface {
	Publish(ctx context.Context, userID types.ID, f Fix, address string, contracts []types.ID) error
	Remove(ctx context.Context, userID types.ID) error
}

type SnapshotWriter interface {
	FlushSnapshot(ctx context.Context, userID types.ID, p types.Point, address string) error
}

type ForwarderDeps struct {
	Source    PositionSource
	Writer    ContractWriter
	Geocoder  ReverseGeocoder
	Mirror    Mirror
	Snapshots SnapshotWriter
}

type watch struct {
	owners map[string]struct{}
	sub    Subscription
}

// Forwarder keeps at most one position subscription per user. Owners are
// counted: the subscription lives until the last owner stops.
type Forwarder struct {
	deps    ForwarderDeps
	opts    WatchOptions
	log     logger.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watches map[types.ID]*watch
	closed  bool
}

func NewForwarder(deps ForwarderDeps, opts WatchOptions, log logger.Logger, m *metrics.Metrics) *Forwarder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Forwarder{
		deps:    deps,
		opts:    opts,
		log:     log,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		watches: map[types.ID]*watch{},
	}
}

// Start subscribes to the user's position on behalf of owner. Starting an
// already running watch only records the owner.
func (f *Forwarder) Start(userID types.ID, owner string) error {
	if userID == "" || owner == "" {
		return ErrBadRequest
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if w, ok := f.watches[userID]; ok {
		w.owners[owner] = struct{}{}
		return nil
	}

	sub, err := f.deps.Source.Watch(f.ctx, userID, f.opts)
	if errors.Is(err, ErrPermissionDenied) {
		f.log.Warn("location permission denied, not tracking", "user_id", userID, "owner", owner)
		return err
	}
	if err != nil {
		return fmt.Errorf("watching position: %w", err)
	}

	w := &watch{owners: map[string]struct{}{owner: {}}, sub: sub}
	f.watches[userID] = w
	f.metrics.SetActiveWatches(len(f.watches))
	f.log.Info("location tracking started", "user_id", userID, "owner", owner)

	f.wg.Add(1)
	go f.run(userID, w)
	return nil
}

// Stop drops owner. The subscription is released with the last owner.
func (f *Forwarder) Stop(userID types.ID, owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.watches[userID]
	if !ok {
		return
	}
	delete(w.owners, owner)
	if len(w.owners) > 0 {
		return
	}
	f.releaseLocked(userID, w)
	f.log.Info("location tracking stopped", "user_id", userID, "owner", owner)
}

func (f *Forwarder) releaseLocked(userID types.ID, w *watch) {
	delete(f.watches, userID)
	w.sub.Close()
	f.metrics.SetActiveWatches(len(f.watches))
}

func (f *Forwarder) IsActive(userID types.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.watches[userID]
	return ok
}

// Owners lists who keeps the user's watch alive, sorted.
func (f *Forwarder) Owners(userID types.ID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.watches[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(w.owners))
	for o := range w.owners {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Subscriptions is the number of live position subscriptions.
func (f *Forwarder) Subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watches)
}

func (f *Forwarder) ActiveUsers() []types.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.ID, 0, len(f.watches))
	for id := range f.watches {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close releases every subscription and waits for the loops to exit.
func (f *Forwarder) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for id, w := range f.watches {
		f.releaseLocked(id, w)
	}
	f.mu.Unlock()

	f.cancel()
	f.wg.Wait()
}

func (f *Forwarder) run(userID types.ID, w *watch) {
	defer f.wg.Done()

	for fix := range w.sub.Fixes() {
		f.forward(userID, fix)
	}

	if err := w.sub.Err(); errors.Is(err, ErrPermissionDenied) {
		f.log.Warn("location permission revoked, tracking stopped", "user_id", userID)
	}

	f.mu.Lock()
	if cur, ok := f.watches[userID]; ok && cur == w {
		delete(f.watches, userID)
		f.metrics.SetActiveWatches(len(f.watches))
	}
	f.mu.Unlock()

	if f.deps.Mirror != nil {
		ctx := context.WithoutCancel(f.ctx)
		if err := f.deps.Mirror.Remove(ctx, userID); err != nil {
			f.log.Debug("removing mirrored position failed", "user_id", userID, "error", err)
		}
	}
}

// forward writes one fix. Every failure is logged and the loop goes on.
func (f *Forwarder) forward(userID types.ID, fix Fix) {
	ctx := f.ctx
	address := FormatCoordinates(fix.Position)
	if f.deps.Geocoder != nil {
		if text, err := f.deps.Geocoder.ReverseGeocode(ctx, fix.Position); err != nil {
			f.log.Debug("reverse geocoding failed", "user_id", userID, "error", err)
		} else if text != "" {
			address = text
		}
	}

	ids, err := f.deps.Writer.UpdateCurrentLocation(ctx, userID, address, fix.Position)
	if err != nil {
		f.log.Error("writing contract location failed", "user_id", userID, "error", err)
		f.metrics.ObserveLocationWrite("error")
		return
	}
	f.metrics.ObserveLocationWrite("ok")

	if f.deps.Snapshots != nil {
		if err := f.deps.Snapshots.FlushSnapshot(ctx, userID, fix.Position, address); err != nil {
			f.log.Error("saving location snapshot failed", "user_id", userID, "error", err)
		}
	}
	if f.deps.Mirror != nil {
		if err := f.deps.Mirror.Publish(ctx, userID, fix, address, ids); err != nil {
			f.log.Warn("mirroring position failed", "user_id", userID, "error", err)
		}
	}
}

// FormatCoordinates is the address text used when geocoding is unavailable.
func FormatCoordinates(p types.Point) string {
	return fmt.Sprintf("%.6f, %.6f", p.Lat, p.Lng)
}
