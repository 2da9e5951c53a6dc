// README: Notification service fans a message out to every device of a user.
package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"bagdrop/internal/logger"
	"bagdrop/internal/metrics"
	"bagdrop/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type TokenStore interface {
	Upsert(ctx context.Context, t PushToken) error
	Delete(ctx context.Context, userID types.ID, deviceID string) error
	ListByUser(ctx context.Context, userID types.ID) ([]PushToken, error)
}

type Service struct {
	store    TokenStore
	sender   Sender
	settings Settings
	enabled  atomic.Bool
	log      logger.Logger
	metrics  *metrics.Metrics
	inflight sync.WaitGroup
}

func NewService(store TokenStore, sender Sender, settings Settings, log logger.Logger, m *metrics.Metrics) *Service {
	if settings.Sound == "" {
		settings.Sound = "default"
	}
	s := &Service{store: store, sender: sender, settings: settings, log: log, metrics: m}
	s.enabled.Store(settings.Enabled)
	return s
}

// Enabled reports the current switch value. SetEnabled is the only writer.
func (s *Service) Enabled() bool {
	return s.enabled.Load()
}

func (s *Service) SetEnabled(v bool) {
	s.enabled.Store(v)
	s.log.Info("push notifications switched", "enabled", v)
}

func (s *Service) RegisterToken(ctx context.Context, t PushToken) error {
	if t.UserID == "" || t.DeviceID == "" || t.Token == "" {
		return ErrBadRequest
	}
	return s.store.Upsert(ctx, t)
}

func (s *Service) UnregisterToken(ctx context.Context, userID types.ID, deviceID string) error {
	if userID == "" || deviceID == "" {
		return ErrBadRequest
	}
	return s.store.Delete(ctx, userID, deviceID)
}

// Notify sends msg to every registered device of userID in the background.
// Failures are logged; the caller never waits on delivery.
func (s *Service) Notify(ctx context.Context, userID types.ID, msg Message) {
	if !s.Enabled() || userID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if s.settings.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.settings.Timeout)
			defer cancel()
		}
		s.deliver(ctx, userID, msg)
	}()
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) deliver(ctx context.Context, userID types.ID, msg Message) {
	tokens, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		s.log.Error("listing push tokens failed", "user_id", userID, "error", err)
		s.metrics.ObserveNotification("error")
		return
	}
	if len(tokens) == 0 {
		s.log.Debug("no push tokens for user", "user_id", userID)
		return
	}
	for _, t := range tokens {
		if err := s.sender.Send(ctx, t.Token, msg, s.settings.Sound); err != nil {
			s.log.Warn("push send failed", "user_id", userID, "device_id", t.DeviceID, "error", err)
			s.metrics.ObserveNotification("error")
			continue
		}
		s.metrics.ObserveNotification("sent")
	}
}
