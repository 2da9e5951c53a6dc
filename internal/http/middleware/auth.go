// README: Firebase ID-token auth; resolves the caller's uid and role for handlers.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bagdrop/internal/infra"
	"bagdrop/internal/modules/profile"
	"bagdrop/internal/types"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"
)

// RoleResolver looks up the stored role of an authenticated user.
type RoleResolver interface {
	Role(ctx context.Context, id types.ID) (types.Role, error)
}

// Auth verifies the bearer token within timeout. The role comes from the
// profile record when roles is set and from the "role" claim otherwise.
// A user without a profile passes through with an empty role.
func Auth(verifier infra.TokenVerifier, roles RoleResolver, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok && c.IsWebsocket() {
			// Browsers cannot set headers on a websocket handshake.
			raw, ok = c.Query("access_token"), true
		}
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		ctx := c.Request.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		token, err := verifier.VerifyIDToken(ctx, strings.TrimSpace(raw))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": "token verification timed out"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var role types.Role
		if roles != nil {
			role, err = roles.Role(ctx, types.ID(token.UID))
			switch {
			case err == nil:
			case errors.Is(err, profile.ErrNotFound):
				role = ""
			case errors.Is(err, profile.ErrDeactivated):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
				return
			default:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "role lookup failed"})
				return
			}
		} else if claim, ok := token.Claims["role"].(string); ok {
			role = types.Role(claim)
		}

		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, string(role))
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of allowed.
func RequireRole(allowed ...types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := types.Role(CallerRole(c))
		for _, r := range allowed {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
