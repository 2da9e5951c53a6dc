package profile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagdrop/internal/logger"
	"bagdrop/internal/modules/notify"
	"bagdrop/internal/types"
)

type memRepo struct {
	mu       sync.Mutex
	profiles map[types.ID]Profile
}

func newMemRepo(ps ...Profile) *memRepo {
	m := &memRepo{profiles: map[types.ID]Profile{}}
	for _, p := range ps {
		m.profiles[p.ID] = p
	}
	return m
}

func (m *memRepo) Get(_ context.Context, id types.ID) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memRepo) List(_ context.Context, f Filter) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Profile
	for _, p := range m.profiles {
		if f.Role != nil && p.Role != *f.Role {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memRepo) Insert(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; ok {
		return errors.New("duplicate key")
	}
	m.profiles[p.ID] = *p
	return nil
}

func (m *memRepo) update(id types.ID, fn func(p *Profile)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return ErrNotFound
	}
	fn(&p)
	m.profiles[id] = p
	return nil
}

func (m *memRepo) UpdateSelf(_ context.Context, id types.ID, u SelfUpdate) error {
	return m.update(id, func(p *Profile) {
		if u.FirstName != nil {
			p.FirstName = *u.FirstName
		}
		if u.LastName != nil {
			p.LastName = *u.LastName
		}
		if u.ContactNumber != nil {
			p.ContactNumber = *u.ContactNumber
		}
	})
}

func (m *memRepo) UpdateAdmin(_ context.Context, id types.ID, u AdminUpdate) error {
	return m.update(id, func(p *Profile) {
		if u.Role != nil {
			p.Role = *u.Role
		}
		if u.Status != nil {
			p.Status = *u.Status
		}
		if u.Verification != nil {
			p.Verification = *u.Verification
		}
	})
}

func (m *memRepo) SetStatus(_ context.Context, id types.ID, status AccountStatus, at *time.Time) error {
	return m.update(id, func(p *Profile) {
		p.Status = status
		if at != nil {
			p.LastSignInAt = at
		}
	})
}

func (m *memRepo) SetPicture(_ context.Context, id types.ID, url string) error {
	return m.update(id, func(p *Profile) { p.PictureURL = url })
}

type memTokens struct {
	registered   []notify.PushToken
	unregistered []string
}

func (m *memTokens) RegisterToken(_ context.Context, t notify.PushToken) error {
	m.registered = append(m.registered, t)
	return nil
}

func (m *memTokens) UnregisterToken(_ context.Context, _ types.ID, deviceID string) error {
	m.unregistered = append(m.unregistered, deviceID)
	return nil
}

type stubPictures struct{}

func (stubPictures) UploadProfilePicture(_ context.Context, id types.ID, _ string, _ []byte) (string, error) {
	return "https://storage.example/profiles/" + string(id) + ".png", nil
}

func TestSignIn(t *testing.T) {
	repo := newMemRepo(
		Profile{ID: "active", Role: types.RoleDelivery, Status: StatusOffline},
		Profile{ID: "pending", Role: types.RoleDelivery, Status: StatusPending},
		Profile{ID: "gone", Role: types.RoleAirline, Status: StatusDeactivated},
	)
	tokens := &memTokens{}
	svc := NewService(repo, tokens, nil, logger.NewNop())
	ctx := context.Background()

	p, err := svc.SignIn(ctx, SignIn{UserID: "active", DeviceID: "phone", PushToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, p.Status)
	require.NotNil(t, p.LastSignInAt)
	require.Len(t, tokens.registered, 1)
	assert.Equal(t, "tok", tokens.registered[0].Token)

	p, err = svc.SignIn(ctx, SignIn{UserID: "pending"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)

	_, err = svc.SignIn(ctx, SignIn{UserID: "gone"})
	assert.ErrorIs(t, err, ErrDeactivated)

	_, err = svc.SignIn(ctx, SignIn{UserID: "nobody"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSignOut(t *testing.T) {
	repo := newMemRepo(Profile{ID: "u1", Role: types.RoleDelivery, Status: StatusActive})
	tokens := &memTokens{}
	svc := NewService(repo, tokens, nil, logger.NewNop())

	require.NoError(t, svc.SignOut(context.Background(), "u1", "phone"))
	p, _ := repo.Get(context.Background(), "u1")
	assert.Equal(t, StatusOffline, p.Status)
	assert.Equal(t, []string{"phone"}, tokens.unregistered)
}

func TestAdminUpdate(t *testing.T) {
	repo := newMemRepo(Profile{ID: "u1", Role: types.RoleDelivery, Status: StatusPending, Verification: VerificationPending})
	svc := NewService(repo, nil, nil, logger.NewNop())
	ctx := context.Background()

	active := StatusActive
	_, err := svc.AdminUpdate(ctx, types.RoleAirline, "u1", AdminUpdate{Status: &active})
	assert.ErrorIs(t, err, ErrForbidden)

	bogus := AccountStatus("sleeping")
	_, err = svc.AdminUpdate(ctx, types.RoleAdmin, "u1", AdminUpdate{Status: &bogus})
	assert.ErrorIs(t, err, ErrBadRequest)

	verified := Verified
	p, err := svc.AdminUpdate(ctx, types.RoleAdmin, "u1", AdminUpdate{Status: &active, Verification: &verified})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, Verified, p.Verification)
	assert.Equal(t, types.RoleDelivery, p.Role)
}

func TestRegister(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, logger.NewNop())
	ctx := context.Background()

	_, err := svc.Register(ctx, Profile{ID: "u1", Role: types.RoleAdmin, FirstName: "a", LastName: "b"})
	assert.ErrorIs(t, err, ErrBadRequest)

	p, err := svc.Register(ctx, Profile{ID: "u1", Role: types.RoleAirline, FirstName: "Ana", LastName: "Reyes", Status: StatusActive})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status, "status is not client controlled")
	assert.Equal(t, Unverified, p.Verification)
}

func TestUpdateSelf(t *testing.T) {
	repo := newMemRepo(Profile{ID: "u1", Role: types.RoleDelivery, FirstName: "Old", Status: StatusActive})
	svc := NewService(repo, nil, nil, logger.NewNop())
	ctx := context.Background()

	blank := "  "
	_, err := svc.UpdateSelf(ctx, "u1", SelfUpdate{FirstName: &blank})
	assert.ErrorIs(t, err, ErrBadRequest)

	name := "New"
	p, err := svc.UpdateSelf(ctx, "u1", SelfUpdate{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "New", p.FirstName)
}

func TestRoleResolver(t *testing.T) {
	repo := newMemRepo(
		Profile{ID: "admin", Role: types.RoleAdmin, Status: StatusActive},
		Profile{ID: "gone", Role: types.RoleAirline, Status: StatusDeactivated},
	)
	svc := NewService(repo, nil, nil, logger.NewNop())

	role, err := svc.Role(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, role)

	_, err = svc.Role(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrDeactivated)
}

func TestSetPicture(t *testing.T) {
	repo := newMemRepo(Profile{ID: "u1", Role: types.RoleDelivery})
	svc := NewService(repo, nil, stubPictures{}, logger.NewNop())

	p, err := svc.SetPicture(context.Background(), "u1", "image/png", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example/profiles/u1.png", p.PictureURL)
}
