// README: In-process fan-out of feed events to listeners and WebSocket clients.
package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bagdrop/internal/logger"
)

const (
	listenerBuffer = 32
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
)

type listener struct {
	filter Filter
	ch     chan Event
}

// Hub delivers events to every listener whose filter matches. Slow
// listeners drop events instead of blocking the hub.
type Hub struct {
	mu        sync.RWMutex
	listeners map[*listener]struct{}
	log       logger.Logger
	upgrader  websocket.Upgrader
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		listeners: map[*listener]struct{}{},
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Listen registers a listener. The returned cancel func unregisters it and
// closes the channel.
func (h *Hub) Listen(f Filter) (<-chan Event, func()) {
	l := &listener{filter: f, ch: make(chan Event, listenerBuffer)}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return l.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, l)
			h.mu.Unlock()
			close(l.ch)
		})
	}
}

// Dispatch hands e to every matching listener.
func (h *Hub) Dispatch(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for l := range h.listeners {
		if !l.filter.Match(e) {
			continue
		}
		select {
		case l.ch <- e:
		default:
			h.log.Warn("feed listener is full, dropping event", "contract_id", e.ContractID, "type", e.Type)
		}
	}
}

// Publish dispatches locally. It lets the hub stand in for a Broker when
// Redis is not configured.
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.Dispatch(e)
	return nil
}

func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// ServeWS upgrades the request and streams matching events as JSON until
// the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, f Filter) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.Listen(f)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				h.log.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
