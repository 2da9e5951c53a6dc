package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagdrop/internal/logger"
	"bagdrop/internal/types"
)

type fakeSub struct {
	ch     chan Fix
	once   sync.Once
	closed chan struct{}
	err    error
}

func newFakeSub() *fakeSub {
	return &fakeSub{ch: make(chan Fix), closed: make(chan struct{})}
}

func (s *fakeSub) Fixes() <-chan Fix { return s.ch }
func (s *fakeSub) Err() error        { return s.err }

func (s *fakeSub) Close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

type fakeSource struct {
	mu     sync.Mutex
	calls  int
	denied bool
	subs   []*fakeSub
}

func (f *fakeSource) Watch(_ context.Context, _ types.ID, _ WatchOptions) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.denied {
		return nil, ErrPermissionDenied
	}
	s := newFakeSub()
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type write struct {
	user types.ID
	text string
	pos  types.Point
}

type fakeWriter struct {
	mu     sync.Mutex
	writes []write
	fail   int
}

func (w *fakeWriter) UpdateCurrentLocation(_ context.Context, id types.ID, text string, p types.Point) ([]types.ID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, write{user: id, text: text, pos: p})
	if w.fail > 0 {
		w.fail--
		return nil, errors.New("backend unavailable")
	}
	return []types.ID{"c1"}, nil
}

func (w *fakeWriter) Writes() []write {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]write(nil), w.writes...)
}

type fakeGeocoder struct{ err error }

func (g fakeGeocoder) ReverseGeocode(context.Context, types.Point) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "Ayala Ave, Makati", nil
}

type fakeMirror struct {
	mu        sync.Mutex
	published int
	removed   []types.ID
}

func (m *fakeMirror) Publish(context.Context, types.ID, Fix, string, []types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published++
	return nil
}

func (m *fakeMirror) Remove(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, id)
	return nil
}

func (m *fakeMirror) Removed() []types.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ID(nil), m.removed...)
}

func newTestForwarder(src *fakeSource, w *fakeWriter, g ReverseGeocoder, m Mirror) *Forwarder {
	deps := ForwarderDeps{Source: src, Writer: w, Geocoder: g}
	if m != nil {
		deps.Mirror = m
	}
	return NewForwarder(deps, DefaultWatchOptions(), logger.NewNop(), nil)
}

func TestForwarder_StartTwiceIsNoop(t *testing.T) {
	src := &fakeSource{}
	f := newTestForwarder(src, &fakeWriter{}, nil, nil)
	defer f.Close()

	require.NoError(t, f.Start("u1", ActivationOwner))
	require.NoError(t, f.Start("u1", ActivationOwner))

	assert.Equal(t, 1, src.Calls())
	assert.Equal(t, 1, f.Subscriptions())
	assert.True(t, f.IsActive("u1"))
}

func TestForwarder_LastOwnerReleases(t *testing.T) {
	src := &fakeSource{}
	f := newTestForwarder(src, &fakeWriter{}, nil, nil)
	defer f.Close()

	require.NoError(t, f.Start("u1", ActivationOwner))
	require.NoError(t, f.Start("u1", "client"))
	assert.Equal(t, []string{"activation", "client"}, f.Owners("u1"))
	assert.Equal(t, 1, src.Calls())

	f.Stop("u1", ActivationOwner)
	assert.True(t, f.IsActive("u1"))

	f.Stop("u1", "client")
	assert.False(t, f.IsActive("u1"))
	assert.Equal(t, 0, f.Subscriptions())
	select {
	case <-src.subs[0].closed:
	case <-time.After(time.Second):
		t.Fatal("subscription was not released")
	}

	f.Stop("u1", "client")
	require.NoError(t, f.Start("u1", "client"))
	assert.Equal(t, 2, src.Calls(), "a stopped watch restarts only on an explicit start")
}

func TestForwarder_PermissionDenied(t *testing.T) {
	src := &fakeSource{denied: true}
	f := newTestForwarder(src, &fakeWriter{}, nil, nil)
	defer f.Close()

	err := f.Start("u1", ActivationOwner)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, f.IsActive("u1"))
	assert.Equal(t, 1, src.Calls())
}

func TestForwarder_WriteFailureKeepsLooping(t *testing.T) {
	src := &fakeSource{}
	w := &fakeWriter{fail: 1}
	m := &fakeMirror{}
	f := newTestForwarder(src, w, fakeGeocoder{}, m)
	defer f.Close()

	require.NoError(t, f.Start("u1", ActivationOwner))
	sub := src.subs[0]
	sub.ch <- Fix{UserID: "u1", Position: types.Point{Lat: 14.55, Lng: 121.02}, RecordedAt: time.Now()}
	sub.ch <- Fix{UserID: "u1", Position: types.Point{Lat: 14.56, Lng: 121.03}, RecordedAt: time.Now()}

	require.Eventually(t, func() bool { return len(w.Writes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.IsActive("u1"))
	assert.Equal(t, "Ayala Ave, Makati", w.Writes()[1].text)
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.published == 1
	}, time.Second, 5*time.Millisecond, "only the successful write is mirrored")
}

func TestForwarder_GeocodeFallback(t *testing.T) {
	src := &fakeSource{}
	w := &fakeWriter{}
	f := newTestForwarder(src, w, fakeGeocoder{err: errors.New("quota")}, nil)
	defer f.Close()

	require.NoError(t, f.Start("u1", ActivationOwner))
	src.subs[0].ch <- Fix{UserID: "u1", Position: types.Point{Lat: 14.5086, Lng: 121.0194}, RecordedAt: time.Now()}

	require.Eventually(t, func() bool { return len(w.Writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "14.508600, 121.019400", w.Writes()[0].text)
}

func TestForwarder_EndedSubscriptionIsForgotten(t *testing.T) {
	src := &fakeSource{}
	m := &fakeMirror{}
	f := newTestForwarder(src, &fakeWriter{}, nil, m)
	defer f.Close()

	require.NoError(t, f.Start("u1", ActivationOwner))
	src.subs[0].err = ErrPermissionDenied
	src.subs[0].Close()

	require.Eventually(t, func() bool { return !f.IsActive("u1") }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(m.Removed()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestForwarder_Close(t *testing.T) {
	src := &fakeSource{}
	f := newTestForwarder(src, &fakeWriter{}, nil, nil)

	require.NoError(t, f.Start("u1", ActivationOwner))
	require.NoError(t, f.Start("u2", ActivationOwner))
	assert.Equal(t, []types.ID{"u1", "u2"}, f.ActiveUsers())

	f.Close()
	assert.Equal(t, 0, f.Subscriptions())
	for _, s := range src.subs {
		select {
		case <-s.closed:
		default:
			t.Fatal("subscription left open after Close")
		}
	}
	assert.ErrorIs(t, f.Start("u3", ActivationOwner), ErrClosed)
	f.Close()
}
