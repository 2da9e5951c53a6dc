package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagdrop/internal/logger"
	"bagdrop/internal/modules/feed"
	"bagdrop/internal/types"
)

type fakeCounter struct {
	mu     sync.Mutex
	counts map[types.ID]int
}

func (c *fakeCounter) set(id types.ID, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[id] = n
}

func (c *fakeCounter) CountInTransit(_ context.Context, id types.ID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[id], nil
}

func (c *fakeCounter) ActiveDeliveryIDs(context.Context) ([]types.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.ID
	for id, n := range c.counts {
		if n > 0 {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestActivator_CheckStartsAndStops(t *testing.T) {
	src := &fakeSource{}
	fwd := newTestForwarder(src, &fakeWriter{}, nil, nil)
	defer fwd.Close()
	counter := &fakeCounter{counts: map[types.ID]int{"u1": 1}}
	a := NewActivator(counter, fwd, time.Hour, logger.NewNop())
	ctx := context.Background()

	a.Check(ctx, "u1")
	a.Check(ctx, "u1")
	assert.True(t, fwd.IsActive("u1"))
	assert.Equal(t, 1, src.Calls())

	counter.set("u1", 0)
	a.Check(ctx, "u1")
	assert.False(t, fwd.IsActive("u1"))
}

func TestActivator_SweepStopsIdleWatches(t *testing.T) {
	src := &fakeSource{}
	fwd := newTestForwarder(src, &fakeWriter{}, nil, nil)
	defer fwd.Close()
	counter := &fakeCounter{counts: map[types.ID]int{"u1": 2}}
	a := NewActivator(counter, fwd, time.Hour, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, fwd.Start("u2", ActivationOwner))
	a.Sweep(ctx)
	assert.Equal(t, []types.ID{"u1"}, fwd.ActiveUsers())
}

func TestActivator_RunReactsToEvents(t *testing.T) {
	src := &fakeSource{}
	fwd := newTestForwarder(src, &fakeWriter{}, nil, nil)
	defer fwd.Close()
	counter := &fakeCounter{counts: map[types.ID]int{}}
	a := NewActivator(counter, fwd, time.Hour, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan feed.Event)
	done := make(chan struct{})
	go func() {
		_ = a.Run(ctx, events)
		close(done)
	}()

	counter.set("u1", 1)
	events <- feed.Event{Type: feed.TypeStatusChanged, ContractID: "c1", DeliveryID: "u1", Status: 4}
	require.Eventually(t, func() bool { return fwd.IsActive("u1") }, time.Second, 5*time.Millisecond)

	counter.set("u1", 0)
	events <- feed.Event{Type: feed.TypeStatusChanged, ContractID: "c1", DeliveryID: "u1", Status: 5}
	require.Eventually(t, func() bool { return !fwd.IsActive("u1") }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
