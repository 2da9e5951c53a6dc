// README: Starts and stops forwarding from the in-transit contract count.
package location

import (
	"context"
	"time"

	"bagdrop/internal/logger"
	"bagdrop/internal/modules/feed"
	"bagdrop/internal/types"
)

const ActivationOwner = "activation"

type InTransitCounter interface {
	CountInTransit(ctx context.Context, deliveryID types.ID) (int, error)
	ActiveDeliveryIDs(ctx context.Context) ([]types.ID, error)
}

type Activator struct {
	counter  InTransitCounter
	fwd      *Forwarder
	interval time.Duration
	log      logger.Logger
}

func NewActivator(counter InTransitCounter, fwd *Forwarder, interval time.Duration, log logger.Logger) *Activator {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Activator{counter: counter, fwd: fwd, interval: interval, log: log}
}

// Check runs the count for one user and starts or stops its forwarding.
func (a *Activator) Check(ctx context.Context, userID types.ID) {
	n, err := a.counter.CountInTransit(ctx, userID)
	if err != nil {
		a.log.Warn("in-transit count failed", "user_id", userID, "error", err)
		return
	}
	if n > 0 {
		if err := a.fwd.Start(userID, ActivationOwner); err != nil {
			a.log.Debug("activation start skipped", "user_id", userID, "error", err)
		}
		return
	}
	a.fwd.Stop(userID, ActivationOwner)
}

// Sweep checks every user that has in-transit work or a running watch.
func (a *Activator) Sweep(ctx context.Context) {
	ids, err := a.counter.ActiveDeliveryIDs(ctx)
	if err != nil {
		a.log.Warn("listing active delivery users failed", "error", err)
	}
	seen := map[types.ID]bool{}
	for _, id := range append(ids, a.fwd.ActiveUsers()...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		a.Check(ctx, id)
	}
}

// Run sweeps on the ticker and re-checks a user whenever a status change
// for them arrives on events. It returns when ctx is done.
func (a *Activator) Run(ctx context.Context, events <-chan feed.Event) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.Sweep(ctx)
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if e.Type == feed.TypeStatusChanged && e.DeliveryID != "" {
				a.Check(ctx, e.DeliveryID)
			}
		}
	}
}
