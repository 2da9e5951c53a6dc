package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagdrop/internal/logger"
	"bagdrop/internal/types"
)

type memTokens struct {
	mu     sync.Mutex
	tokens map[types.ID]map[string]string
	err    error
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: map[types.ID]map[string]string{}}
}

func (m *memTokens) Upsert(_ context.Context, t PushToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens[t.UserID] == nil {
		m.tokens[t.UserID] = map[string]string{}
	}
	m.tokens[t.UserID][t.DeviceID] = t.Token
	return nil
}

func (m *memTokens) Delete(_ context.Context, userID types.ID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens[userID], deviceID)
	return nil
}

func (m *memTokens) ListByUser(_ context.Context, userID types.ID) ([]PushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []PushToken
	for dev, tok := range m.tokens[userID] {
		out = append(out, PushToken{UserID: userID, DeviceID: dev, Token: tok})
	}
	return out, nil
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]bool
	sound string
}

func (r *recordingSender) Send(_ context.Context, token string, _ Message, sound string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sound = sound
	if r.fail[token] {
		return errors.New("boom")
	}
	r.sent = append(r.sent, token)
	return nil
}

func TestGatewaySender_Payload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewGatewaySender(srv.URL, time.Second)
	err := s.Send(context.Background(), "ExponentPushToken[abc]", Message{
		Title: "Luggage picked up",
		Body:  "Your bags are on the way",
		Data:  map[string]string{"contract_id": "c1"},
	}, "default")
	require.NoError(t, err)

	assert.Equal(t, "ExponentPushToken[abc]", got["to"])
	assert.Equal(t, "default", got["sound"])
	assert.Equal(t, "Luggage picked up", got["title"])
	assert.Equal(t, "Your bags are on the way", got["body"])
	assert.Equal(t, map[string]any{"contract_id": "c1"}, got["data"])
}

func TestGatewaySender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewGatewaySender(srv.URL, time.Second).Send(context.Background(), "tok", Message{}, "default")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestGatewaySender_EmptyToken(t *testing.T) {
	err := NewGatewaySender("http://127.0.0.1:0", time.Second).Send(context.Background(), "", Message{}, "default")
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestNotify_FansOutToEveryDevice(t *testing.T) {
	store := newMemTokens()
	sender := &recordingSender{fail: map[string]bool{"bad": true}}
	svc := NewService(store, sender, DefaultSettings(), logger.NewNop(), nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterToken(ctx, PushToken{UserID: "u1", DeviceID: "phone", Token: "t-phone"}))
	require.NoError(t, svc.RegisterToken(ctx, PushToken{UserID: "u1", DeviceID: "tablet", Token: "bad"}))
	require.NoError(t, svc.RegisterToken(ctx, PushToken{UserID: "u2", DeviceID: "phone", Token: "t-other"}))

	svc.Notify(ctx, "u1", Message{Title: "hi"})
	svc.Wait()

	assert.Equal(t, []string{"t-phone"}, sender.sent)
	assert.Equal(t, "default", sender.sound)
}

func TestNotify_DisabledSendsNothing(t *testing.T) {
	store := newMemTokens()
	sender := &recordingSender{}
	svc := NewService(store, sender, DefaultSettings(), logger.NewNop(), nil)
	require.NoError(t, svc.RegisterToken(context.Background(), PushToken{UserID: "u1", DeviceID: "d", Token: "t"}))

	svc.SetEnabled(false)
	assert.False(t, svc.Enabled())
	svc.Notify(context.Background(), "u1", Message{Title: "hi"})
	svc.Wait()
	assert.Empty(t, sender.sent)

	svc.SetEnabled(true)
	svc.Notify(context.Background(), "u1", Message{Title: "hi"})
	svc.Wait()
	assert.Equal(t, []string{"t"}, sender.sent)
}

func TestNotify_SurvivesCancelledCaller(t *testing.T) {
	store := newMemTokens()
	sender := &recordingSender{}
	svc := NewService(store, sender, DefaultSettings(), logger.NewNop(), nil)
	require.NoError(t, svc.RegisterToken(context.Background(), PushToken{UserID: "u1", DeviceID: "d", Token: "t"}))

	ctx, cancel := context.WithCancel(context.Background())
	svc.Notify(ctx, "u1", Message{Title: "hi"})
	cancel()
	svc.Wait()
	assert.Equal(t, []string{"t"}, sender.sent)
}

func TestNotify_StoreErrorIsSwallowed(t *testing.T) {
	store := newMemTokens()
	store.err = errors.New("db down")
	sender := &recordingSender{}
	svc := NewService(store, sender, DefaultSettings(), logger.NewNop(), nil)

	svc.Notify(context.Background(), "u1", Message{Title: "hi"})
	svc.Wait()
	assert.Empty(t, sender.sent)
}

func TestRegisterToken_Validation(t *testing.T) {
	svc := NewService(newMemTokens(), &recordingSender{}, DefaultSettings(), logger.NewNop(), nil)
	err := svc.RegisterToken(context.Background(), PushToken{UserID: "u1", DeviceID: "d"})
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.ErrorIs(t, svc.UnregisterToken(context.Background(), "", "d"), ErrBadRequest)
}
