package location

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagdrop/internal/logger"
	"bagdrop/internal/types"
)

type memStore struct {
	memFixes
	perms     map[types.ID]bool
	snapshots []Snapshot
}

func newMemStore() *memStore {
	return &memStore{perms: map[types.ID]bool{}}
}

func (m *memStore) SetFix(_ context.Context, f Fix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fix = &f
	return nil
}

func (m *memStore) SetPermission(_ context.Context, id types.ID, granted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perms[id] = granted
	m.denied = !granted
	return nil
}

func (m *memStore) Nearby(context.Context, types.Point, float64, int) ([]Nearby, error) {
	return nil, nil
}

func (m *memStore) AppendSnapshot(_ context.Context, s Snapshot) error {
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *memStore) ListSnapshots(context.Context, types.ID, int) ([]Snapshot, error) {
	return m.snapshots, nil
}

func TestUpdate_Validation(t *testing.T) {
	svc := NewService(newMemStore(), time.Minute, logger.NewNop())
	ctx := context.Background()

	cases := []Update{
		{UserID: "", Position: types.Point{Lat: 1, Lng: 1}},
		{UserID: "u1", Position: types.Point{Lat: math.NaN(), Lng: 1}},
		{UserID: "u1", Position: types.Point{Lat: 91, Lng: 1}},
		{UserID: "u1", Position: types.Point{Lat: 1, Lng: -181}},
	}
	for _, u := range cases {
		_, err := svc.Update(ctx, u)
		assert.ErrorIs(t, err, ErrBadRequest, "%+v", u)
	}
}

func TestUpdate_StoresFixAndClearsDenial(t *testing.T) {
	store := newMemStore()
	store.denied = true
	svc := NewService(store, time.Minute, logger.NewNop())
	ctx := context.Background()

	f, err := svc.Update(ctx, Update{UserID: "u1", Position: types.Point{Lat: 14.5, Lng: 121}, RecordedAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, f.RecordedAt.After(time.Now()), "future timestamps are clamped")
	assert.True(t, store.perms["u1"])

	p, err := svc.Current(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 14.5, p.Lat)
}

func TestCurrent_IgnoresStaleFix(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, time.Minute, logger.NewNop())
	store.set(types.Point{Lat: 1, Lng: 1}, time.Now().Add(-time.Hour))

	p, err := svc.Current(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestReportPermission(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, time.Minute, logger.NewNop())
	require.NoError(t, svc.ReportPermission(context.Background(), "u1", false))
	assert.False(t, store.perms["u1"])
	assert.ErrorIs(t, svc.ReportPermission(context.Background(), "", true), ErrBadRequest)
}

func TestFlushSnapshot(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, time.Minute, logger.NewNop())
	require.NoError(t, svc.FlushSnapshot(context.Background(), "u1", types.Point{Lat: 1, Lng: 2}, "somewhere"))
	require.Len(t, store.snapshots, 1)
	assert.Equal(t, "somewhere", store.snapshots[0].Address)
}
