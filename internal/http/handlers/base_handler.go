// README: Base handler utilities (JSON helpers, caller identity, error mapping).
package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bagdrop/internal/http/middleware"
	"bagdrop/internal/modules/contract"
	"bagdrop/internal/modules/feed"
	"bagdrop/internal/modules/location"
	"bagdrop/internal/modules/media"
	"bagdrop/internal/modules/notify"
	"bagdrop/internal/modules/profile"
	"bagdrop/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts auth UIDs and tracking codes: letters, digits, '-' and '_'.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func callerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func callerRole(c *gin.Context) types.Role {
	return types.Role(middleware.CallerRole(c))
}

func actor(c *gin.Context) contract.Actor {
	return contract.Actor{ID: callerID(c), Role: callerRole(c)}
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// queryPoint reads lat/lng query parameters. Both absent yields nil.
func queryPoint(c *gin.Context) (*types.Point, bool) {
	lat, lng := c.Query("lat"), c.Query("lng")
	if lat == "" && lng == "" {
		return nil, true
	}
	return parsePoint(lat, lng)
}

func parsePoint(lat, lng string) (*types.Point, bool) {
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	return pointOf(la, lo)
}

func pointOf(lat, lng float64) (*types.Point, bool) {
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, false
	}
	return &types.Point{Lat: lat, Lng: lng}, true
}

// writeServiceError maps module errors to status codes. Unknown errors are
// backend failures and are not echoed.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contract.ErrBadRequest),
		errors.Is(err, contract.ErrRemarksRequired),
		errors.Is(err, contract.ErrProofRequired),
		errors.Is(err, profile.ErrBadRequest),
		errors.Is(err, location.ErrBadRequest),
		errors.Is(err, notify.ErrBadRequest),
		errors.Is(err, media.ErrBadRequest),
		errors.Is(err, feed.ErrBadFilter):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, media.ErrUnsupportedMedia):
		writeError(c, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, media.ErrTooLarge):
		writeError(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, contract.ErrNotFound), errors.Is(err, profile.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, contract.ErrForbidden),
		errors.Is(err, profile.ErrForbidden),
		errors.Is(err, profile.ErrDeactivated),
		errors.Is(err, location.ErrPermissionDenied):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, contract.ErrOutsideVicinity):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, contract.ErrInvalidState), errors.Is(err, contract.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
