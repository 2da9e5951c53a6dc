// README: Administrator handlers: profile moderation, push switch, courier lookup.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bagdrop/internal/modules/location"
	"bagdrop/internal/modules/notify"
	"bagdrop/internal/modules/profile"
	"bagdrop/internal/types"
)

type AdminHandler struct {
	profiles *profile.Service
	notify   *notify.Service
	location *location.Service
	tracking *location.Forwarder
}

func NewAdminHandler(profiles *profile.Service, n *notify.Service, loc *location.Service, fwd *location.Forwarder) *AdminHandler {
	return &AdminHandler{profiles: profiles, notify: n, location: loc, tracking: fwd}
}

func (h *AdminHandler) ListProfiles(c *gin.Context) {
	var f profile.Filter
	if v := c.Query("role"); v != "" {
		r := types.Role(v)
		f.Role = &r
	}
	if v := c.Query("status"); v != "" {
		s := profile.AccountStatus(v)
		f.Status = &s
	}
	if v := c.Query("verification"); v != "" {
		s := profile.Verification(v)
		f.Verification = &s
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	f.Limit = limit

	ps, err := h.profiles.List(c.Request.Context(), callerRole(c), f)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ps)
}

type adminUpdateReq struct {
	Role          *types.Role            `json:"role"`
	Status        *profile.AccountStatus `json:"account_status"`
	Verification  *profile.Verification  `json:"verification_status"`
	CorporationID *types.ID              `json:"corporation_id"`
}

func (h *AdminHandler) UpdateProfile(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid profile id")
		return
	}
	var req adminUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.profiles.AdminUpdate(c.Request.Context(), callerRole(c), types.ID(id), profile.AdminUpdate{
		Role:          req.Role,
		Status:        req.Status,
		Verification:  req.Verification,
		CorporationID: req.CorporationID,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type switchReq struct {
	Enabled *bool `json:"enabled"`
}

func (h *AdminHandler) Notifications(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"enabled": h.notify.Enabled()})
}

func (h *AdminHandler) SetNotifications(c *gin.Context) {
	var req switchReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		writeError(c, http.StatusBadRequest, "enabled is required")
		return
	}
	h.notify.SetEnabled(*req.Enabled)
	writeJSON(c, http.StatusOK, gin.H{"enabled": h.notify.Enabled()})
}

// Nearby lists delivery people around ?lat=&lng= within ?radius_km= (default 5).
func (h *AdminHandler) Nearby(c *gin.Context) {
	p, ok := queryPoint(c)
	if !ok || p == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius := 5.0
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	out, err := h.location.Nearby(c.Request.Context(), *p, radius, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *AdminHandler) CourierHistory(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid profile id")
		return
	}
	limit, ok := queryInt(c, "limit", 100)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	snaps, err := h.location.History(c.Request.Context(), types.ID(id), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	type snapshotView struct {
		Position   types.Point `json:"position"`
		Address    string      `json:"address"`
		RecordedAt time.Time   `json:"recorded_at"`
	}
	out := make([]snapshotView, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotView{Position: s.Position, Address: s.Address, RecordedAt: s.RecordedAt})
	}
	writeJSON(c, http.StatusOK, out)
}

// Tracking lists users whose positions are being forwarded.
func (h *AdminHandler) Tracking(c *gin.Context) {
	users := h.tracking.ActiveUsers()
	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{"user_id": u, "owners": h.tracking.Owners(u)})
	}
	writeJSON(c, http.StatusOK, out)
}
