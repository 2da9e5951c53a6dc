// README: Location handlers: device fixes, permission reports and tracking state.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bagdrop/internal/modules/location"
	"bagdrop/internal/types"
)

// ManualOwner holds a watch the courier started from the app.
const ManualOwner = "manual"

// ActivationChecker re-evaluates whether a user should be forwarding.
type ActivationChecker interface {
	Check(ctx context.Context, userID types.ID)
}

type LocationHandler struct {
	location  *location.Service
	tracking  *location.Forwarder
	activator ActivationChecker
}

func NewLocationHandler(svc *location.Service, fwd *location.Forwarder, act ActivationChecker) *LocationHandler {
	return &LocationHandler{location: svc, tracking: fwd, activator: act}
}

type fixReq struct {
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	Accuracy   float64    `json:"accuracy"`
	RecordedAt *time.Time `json:"recorded_at"`
}

// Update stores the caller's latest fix. The first fix after sign-in also
// lets an in-transit courier start forwarding without waiting for the sweep.
func (h *LocationHandler) Update(c *gin.Context) {
	var req fixReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		writeError(c, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	u := location.Update{
		UserID:   callerID(c),
		Position: types.Point{Lat: *req.Latitude, Lng: *req.Longitude},
		Accuracy: req.Accuracy,
	}
	if req.RecordedAt != nil {
		u.RecordedAt = *req.RecordedAt
	}
	fix, err := h.location.Update(c.Request.Context(), u)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if h.activator != nil && !h.tracking.IsActive(u.UserID) {
		h.activator.Check(c.Request.Context(), u.UserID)
	}
	writeJSON(c, http.StatusOK, fix)
}

type permissionReq struct {
	Granted *bool `json:"granted"`
}

func (h *LocationHandler) Permission(c *gin.Context) {
	var req permissionReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Granted == nil {
		writeError(c, http.StatusBadRequest, "granted is required")
		return
	}
	if err := h.location.ReportPermission(c.Request.Context(), callerID(c), *req.Granted); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"granted": *req.Granted})
}

type trackingView struct {
	Active bool     `json:"active"`
	Owners []string `json:"owners"`
}

func (h *LocationHandler) trackingState(id types.ID) trackingView {
	owners := h.tracking.Owners(id)
	if owners == nil {
		owners = []string{}
	}
	return trackingView{Active: h.tracking.IsActive(id), Owners: owners}
}

func (h *LocationHandler) Tracking(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.trackingState(callerID(c)))
}

// StartTracking is idempotent; a denied permission answers 403.
func (h *LocationHandler) StartTracking(c *gin.Context) {
	id := callerID(c)
	if err := h.tracking.Start(id, ManualOwner); err != nil {
		if errors.Is(err, location.ErrClosed) {
			writeError(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, h.trackingState(id))
}

// StopTracking releases the manual hold only; in-transit activation keeps
// its own hold until the last contract leaves transit.
func (h *LocationHandler) StopTracking(c *gin.Context) {
	id := callerID(c)
	h.tracking.Stop(id, ManualOwner)
	writeJSON(c, http.StatusOK, h.trackingState(id))
}
