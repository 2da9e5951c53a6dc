// README: Profile self-service and session (sign-in/out) handlers.
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"bagdrop/internal/modules/profile"
	"bagdrop/internal/types"
)

const maxPictureUpload = 10 << 20

type ProfileHandler struct {
	profiles *profile.Service
}

func NewProfileHandler(svc *profile.Service) *ProfileHandler {
	return &ProfileHandler{profiles: svc}
}

type registerReq struct {
	Role                   types.Role `json:"role"`
	FirstName              string     `json:"first_name"`
	MiddleInitial          string     `json:"middle_initial"`
	LastName               string     `json:"last_name"`
	Email                  string     `json:"email"`
	ContactNumber          string     `json:"contact_number"`
	EmergencyContactName   string     `json:"emergency_contact_name"`
	EmergencyContactNumber string     `json:"emergency_contact_number"`
}

// Register creates the caller's own profile after sign-up.
func (h *ProfileHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.profiles.Register(c.Request.Context(), profile.Profile{
		ID:                     callerID(c),
		Role:                   req.Role,
		FirstName:              req.FirstName,
		MiddleInitial:          req.MiddleInitial,
		LastName:               req.LastName,
		Email:                  req.Email,
		ContactNumber:          req.ContactNumber,
		EmergencyContactName:   req.EmergencyContactName,
		EmergencyContactNumber: req.EmergencyContactNumber,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

func (h *ProfileHandler) Me(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type selfUpdateReq struct {
	FirstName              *string `json:"first_name"`
	MiddleInitial          *string `json:"middle_initial"`
	LastName               *string `json:"last_name"`
	ContactNumber          *string `json:"contact_number"`
	EmergencyContactName   *string `json:"emergency_contact_name"`
	EmergencyContactNumber *string `json:"emergency_contact_number"`
}

func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	var req selfUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.profiles.UpdateSelf(c.Request.Context(), callerID(c), profile.SelfUpdate{
		FirstName:              req.FirstName,
		MiddleInitial:          req.MiddleInitial,
		LastName:               req.LastName,
		ContactNumber:          req.ContactNumber,
		EmergencyContactName:   req.EmergencyContactName,
		EmergencyContactNumber: req.EmergencyContactNumber,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// SetPicture takes a multipart file named "picture".
func (h *ProfileHandler) SetPicture(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPictureUpload+1<<20)
	fh, err := c.FormFile("picture")
	if err != nil {
		writeError(c, http.StatusBadRequest, "missing picture")
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable picture")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable picture")
		return
	}
	p, err := h.profiles.SetPicture(c.Request.Context(), callerID(c), fh.Header.Get("Content-Type"), data)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type signInReq struct {
	DeviceID  string `json:"device_id"`
	PushToken string `json:"push_token"`
}

func (h *ProfileHandler) SignIn(c *gin.Context) {
	var req signInReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	p, err := h.profiles.SignIn(c.Request.Context(), profile.SignIn{
		UserID:    callerID(c),
		DeviceID:  req.DeviceID,
		PushToken: req.PushToken,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *ProfileHandler) SignOut(c *gin.Context) {
	if err := h.profiles.SignOut(c.Request.Context(), callerID(c), c.Query("device_id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
