package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagdrop/internal/logger"
	"bagdrop/internal/types"
)

type memFixes struct {
	mu     sync.Mutex
	fix    *Fix
	denied bool
}

func (m *memFixes) set(p types.Point, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fix = &Fix{UserID: "u1", Position: p, RecordedAt: at}
}

func (m *memFixes) deny() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied = true
}

func (m *memFixes) LatestFix(context.Context, types.ID) (*Fix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fix == nil {
		return nil, nil
	}
	f := *m.fix
	return &f, nil
}

func (m *memFixes) Denied(context.Context, types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.denied, nil
}

func recv(t *testing.T, ch <-chan Fix) (Fix, bool) {
	t.Helper()
	select {
	case f, ok := <-ch:
		return f, ok
	case <-time.After(500 * time.Millisecond):
		return Fix{}, false
	}
}

func TestStoreSource_DisplacementFilter(t *testing.T) {
	fixes := &memFixes{}
	base := types.Point{Lat: 14.5500, Lng: 121.0200}
	start := time.Now()
	fixes.set(base, start)

	src := NewStoreSource(fixes, 0, logger.NewNop())
	sub, err := src.Watch(context.Background(), "u1", WatchOptions{Interval: 5 * time.Millisecond, MinDistanceMeters: 10})
	require.NoError(t, err)
	defer sub.Close()

	f, ok := recv(t, sub.Fixes())
	require.True(t, ok)
	assert.Equal(t, base, f.Position)

	// ~4 m north: below the displacement threshold.
	fixes.set(types.Point{Lat: base.Lat + 0.00004, Lng: base.Lng}, start.Add(time.Second))
	_, ok = recv(t, sub.Fixes())
	assert.False(t, ok, "small move must not be emitted")

	// ~22 m north.
	far := types.Point{Lat: base.Lat + 0.0002, Lng: base.Lng}
	fixes.set(far, start.Add(2*time.Second))
	f, ok = recv(t, sub.Fixes())
	require.True(t, ok)
	assert.Equal(t, far, f.Position)
}

func TestStoreSource_DeniedUpFront(t *testing.T) {
	fixes := &memFixes{denied: true}
	_, err := NewStoreSource(fixes, 0, logger.NewNop()).Watch(context.Background(), "u1", DefaultWatchOptions())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestStoreSource_DeniedMidStream(t *testing.T) {
	fixes := &memFixes{}
	sub, err := NewStoreSource(fixes, 0, logger.NewNop()).Watch(context.Background(), "u1", WatchOptions{Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	defer sub.Close()

	fixes.deny()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Fixes():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, sub.Err(), ErrPermissionDenied)
}

func TestStoreSource_CloseEndsStream(t *testing.T) {
	sub, err := NewStoreSource(&memFixes{}, 0, logger.NewNop()).Watch(context.Background(), "u1", WatchOptions{Interval: time.Hour})
	require.NoError(t, err)
	sub.Close()
	_, ok := recv(t, sub.Fixes())
	assert.False(t, ok)
	assert.NoError(t, sub.Err())
}

func TestStoreSource_SkipsStaleFixes(t *testing.T) {
	fixes := &memFixes{}
	base := types.Point{Lat: 14.5500, Lng: 121.0200}
	fixes.set(base, time.Now().Add(-3*time.Hour))

	src := NewStoreSource(fixes, 2*time.Minute, logger.NewNop())
	sub, err := src.Watch(context.Background(), "u1", WatchOptions{Interval: 5 * time.Millisecond, MinDistanceMeters: 10})
	require.NoError(t, err)
	defer sub.Close()

	_, ok := recv(t, sub.Fixes())
	assert.False(t, ok, "hours-old fix must not be emitted")

	fresh := types.Point{Lat: base.Lat + 0.0002, Lng: base.Lng}
	fixes.set(fresh, time.Now())
	f, ok := recv(t, sub.Fixes())
	require.True(t, ok)
	assert.Equal(t, fresh, f.Position)
}
