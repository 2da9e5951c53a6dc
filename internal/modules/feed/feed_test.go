package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagdrop/internal/logger"
)

func TestParseFilter(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    Filter
		wantErr bool
	}{
		{name: "empty", in: "", want: Filter{}},
		{name: "delivery", in: "delivery_id=eq.u1", want: Filter{DeliveryID: "u1"}},
		{name: "airline and status", in: "airline_id=eq.a1&contract_status_id=eq.4", want: Filter{AirlineID: "a1", Status: 4}},
		{name: "comma separated", in: "delivery_id=eq.u1, contract_status_id=eq.3", want: Filter{DeliveryID: "u1", Status: 3}},
		{name: "unknown column", in: "owner=eq.x", wantErr: true},
		{name: "unsupported operator", in: "delivery_id=neq.u1", wantErr: true},
		{name: "no operator", in: "delivery_id", wantErr: true},
		{name: "bad status", in: "contract_status_id=eq.four", wantErr: true},
		{name: "empty value", in: "airline_id=eq.", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFilter(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrBadFilter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFilterMatch(t *testing.T) {
	e := Event{ContractID: "c1", DeliveryID: "d1", AirlineID: "a1", Status: 4}
	assert.True(t, Filter{}.Match(e))
	assert.True(t, Filter{DeliveryID: "d1", Status: 4}.Match(e))
	assert.False(t, Filter{DeliveryID: "d2"}.Match(e))
	assert.False(t, Filter{AirlineID: "a2"}.Match(e))
	assert.False(t, Filter{Status: 5}.Match(e))
}

func TestHub_DispatchesToMatchingListeners(t *testing.T) {
	h := NewHub(logger.NewNop())
	mine, cancelMine := h.Listen(Filter{DeliveryID: "d1"})
	other, cancelOther := h.Listen(Filter{DeliveryID: "d2"})
	defer cancelOther()

	h.Dispatch(Event{ContractID: "c1", DeliveryID: "d1", Status: 4, At: time.Now()})

	select {
	case e := <-mine:
		assert.Equal(t, "c1", string(e.ContractID))
	case <-time.After(time.Second):
		t.Fatal("expected event for d1")
	}
	select {
	case e := <-other:
		t.Fatalf("unexpected event for d2: %+v", e)
	default:
	}

	assert.Equal(t, 2, h.Listeners())
	cancelMine()
	cancelMine()
	assert.Equal(t, 1, h.Listeners())
	_, open := <-mine
	assert.False(t, open)
}

func TestHub_FullListenerDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(logger.NewNop())
	_, cancel := h.Listen(Filter{})
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < listenerBuffer*2; i++ {
			h.Dispatch(Event{ContractID: "c"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on a full listener")
	}
}

func TestHub_ServeWS(t *testing.T) {
	h := NewHub(logger.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, Filter{AirlineID: "a1"})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Listeners() == 1 }, time.Second, 10*time.Millisecond)
	h.Dispatch(Event{ContractID: "other", AirlineID: "a2", Status: 5})
	h.Dispatch(Event{ContractID: "c9", AirlineID: "a1", Status: 5})

	var got Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "c9", string(got.ContractID))
	assert.Equal(t, 5, got.Status)
}
