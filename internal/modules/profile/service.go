// README: Profile service: self-service edits, admin edits and session state.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bagdrop/internal/logger"
	"bagdrop/internal/modules/notify"
	"bagdrop/internal/types"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("profile not found")
	ErrForbidden    = errors.New("not allowed for this user")
	ErrDeactivated  = errors.New("account is deactivated")
	ErrMalformedRow = errors.New("malformed profile row")
)

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Profile, error)
	List(ctx context.Context, f Filter) ([]Profile, error)
	Insert(ctx context.Context, p *Profile) error
	UpdateSelf(ctx context.Context, id types.ID, u SelfUpdate) error
	UpdateAdmin(ctx context.Context, id types.ID, u AdminUpdate) error
	SetStatus(ctx context.Context, id types.ID, status AccountStatus, signedInAt *time.Time) error
	SetPicture(ctx context.Context, id types.ID, url string) error
}

// Tokens registers and drops push tokens on sign-in and sign-out.
type Tokens interface {
	RegisterToken(ctx context.Context, t notify.PushToken) error
	UnregisterToken(ctx context.Context, userID types.ID, deviceID string) error
}

type PictureUploader interface {
	UploadProfilePicture(ctx context.Context, userID types.ID, contentType string, data []byte) (string, error)
}

type Service struct {
	repo     Repository
	tokens   Tokens
	pictures PictureUploader
	log      logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, tokens Tokens, pictures PictureUploader, log logger.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, pictures: pictures, log: log, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Profile, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	return s.repo.Get(ctx, id)
}

// Role resolves the role of an authenticated user for the auth middleware.
func (s *Service) Role(ctx context.Context, id types.ID) (types.Role, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if p.Status == StatusDeactivated {
		return "", ErrDeactivated
	}
	return p.Role, nil
}

func (s *Service) List(ctx context.Context, actor types.Role, f Filter) ([]Profile, error) {
	if actor != types.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.repo.List(ctx, f)
}

// Register creates the profile of a freshly signed-up user. New accounts
// start pending and unverified; nobody registers as admin.
func (s *Service) Register(ctx context.Context, p Profile) (*Profile, error) {
	if p.ID == "" {
		return nil, ErrBadRequest
	}
	if p.Role == "" {
		p.Role = types.RoleDelivery
	}
	if !p.Role.Valid() || p.Role == types.RoleAdmin {
		return nil, fmt.Errorf("%w: cannot self-register as %q", ErrBadRequest, p.Role)
	}
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}
	now := s.now()
	p.Status = StatusPending
	p.Verification = Unverified
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.repo.Insert(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) UpdateSelf(ctx context.Context, id types.ID, u SelfUpdate) (*Profile, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	for _, v := range []*string{u.FirstName, u.LastName} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return nil, fmt.Errorf("%w: name cannot be blank", ErrBadRequest)
		}
	}
	if u.MiddleInitial != nil && len([]rune(strings.TrimSpace(*u.MiddleInitial))) > 1 {
		return nil, fmt.Errorf("%w: middle initial is one letter", ErrBadRequest)
	}
	if err := s.repo.UpdateSelf(ctx, id, u); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) AdminUpdate(ctx context.Context, actor types.Role, id types.ID, u AdminUpdate) (*Profile, error) {
	if actor != types.RoleAdmin {
		return nil, ErrForbidden
	}
	if id == "" {
		return nil, ErrBadRequest
	}
	if u.Role != nil && !u.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrBadRequest, *u.Role)
	}
	if u.Status != nil && !u.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, *u.Status)
	}
	if u.Verification != nil && !u.Verification.Valid() {
		return nil, fmt.Errorf("%w: unknown verification %q", ErrBadRequest, *u.Verification)
	}
	if err := s.repo.UpdateAdmin(ctx, id, u); err != nil {
		return nil, err
	}
	s.log.Info("profile updated by admin", "profile_id", id)
	return s.repo.Get(ctx, id)
}

type SignIn struct {
	UserID    types.ID
	DeviceID  string
	PushToken string
}

// SignIn marks the account active and registers the device for push.
// Deactivated accounts are refused; pending accounts stay pending.
func (s *Service) SignIn(ctx context.Context, in SignIn) (*Profile, error) {
	p, err := s.Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusDeactivated {
		return nil, ErrDeactivated
	}

	status := StatusActive
	if p.Status == StatusPending {
		status = StatusPending
	}
	now := s.now()
	if err := s.repo.SetStatus(ctx, p.ID, status, &now); err != nil {
		return nil, err
	}
	p.Status = status
	p.LastSignInAt = &now

	if s.tokens != nil && in.DeviceID != "" && in.PushToken != "" {
		if err := s.tokens.RegisterToken(ctx, notify.PushToken{UserID: p.ID, DeviceID: in.DeviceID, Token: in.PushToken}); err != nil {
			s.log.Warn("registering push token failed", "user_id", p.ID, "error", err)
		}
	}
	return p, nil
}

// SignOut marks the account offline and drops the device's push token.
func (s *Service) SignOut(ctx context.Context, userID types.ID, deviceID string) error {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if p.Status == StatusActive {
		if err := s.repo.SetStatus(ctx, userID, StatusOffline, nil); err != nil {
			return err
		}
	}
	if s.tokens != nil && deviceID != "" {
		if err := s.tokens.UnregisterToken(ctx, userID, deviceID); err != nil {
			s.log.Warn("dropping push token failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

func (s *Service) SetPicture(ctx context.Context, userID types.ID, contentType string, data []byte) (*Profile, error) {
	if userID == "" || len(data) == 0 {
		return nil, ErrBadRequest
	}
	if s.pictures == nil {
		return nil, errors.New("picture uploads are not configured")
	}
	url, err := s.pictures.UploadProfilePicture(ctx, userID, contentType, data)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPicture(ctx, userID, url); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID)
}
