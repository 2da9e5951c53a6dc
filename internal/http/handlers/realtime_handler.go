// README: Realtime contract feed over websocket.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bagdrop/internal/modules/contract"
	"bagdrop/internal/modules/feed"
	"bagdrop/internal/types"
)

type RealtimeHandler struct {
	hub *feed.Hub
}

func NewRealtimeHandler(hub *feed.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Subscribe streams contract changes matching ?filter=, e.g.
// filter=delivery_id=eq.<uid>,contract_status_id=eq.4
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	f, err := feed.ParseFilter(c.Query("filter"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	f, ok := scopeFilter(callerID(c), callerRole(c), f)
	if !ok {
		writeError(c, http.StatusForbidden, "filter not allowed for this user")
		return
	}
	h.hub.ServeWS(c.Writer, c.Request, f)
}

// scopeFilter limits what a caller may watch. Admins see everything, airline
// staff their own contracts, delivery people their own contracts or the
// pending board.
func scopeFilter(uid types.ID, role types.Role, f feed.Filter) (feed.Filter, bool) {
	switch role {
	case types.RoleAdmin:
		return f, true
	case types.RoleAirline:
		if f.AirlineID != "" && f.AirlineID != uid {
			return f, false
		}
		f.AirlineID = uid
		return f, true
	case types.RoleDelivery:
		if f.DeliveryID == uid {
			return f, true
		}
		if f.DeliveryID == "" && f.AirlineID == "" && f.Status == int(contract.StatusPending) {
			return f, true
		}
		if f.DeliveryID == "" && f.AirlineID == "" && f.Status == 0 {
			f.DeliveryID = uid
			return f, true
		}
	}
	return f, false
}
