package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/kisanmitra/backend/internal/ratelimit"
	"github.com/kisanmitra/backend/internal/util"
	"go.uber.org/zap"
)

// OptionalAuth sets user_id and user_role for requests with a valid bearer
// token. Requests without one, or with a bad one, continue anonymously.
func OptionalAuth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.Next()
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			logger.Log.Debug("Ignoring invalid bearer token",
				zap.String("request_id", c.GetString("request_id")),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Set(util.ContextUserID, claims.UserID)
		c.Set(util.ContextUserRole, claims.Role)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests with 401
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if util.OptionalUserID(c) == "" {
			util.RespondUnauthorized(c, "authentication required")
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests from non-admin roles with 403
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if util.OptionalUserID(c) == "" {
			util.RespondUnauthorized(c, "authentication required")
			return
		}
		if util.UserRole(c) != models.RoleAdmin {
			util.RespondForbidden(c, "admin access required")
			return
		}
		c.Next()
	}
}

// Identity names the caller for rate limiting: the user when authenticated,
// otherwise the client address
func Identity(c *gin.Context) string {
	if id := util.OptionalUserID(c); id != "" {
		return ratelimit.UserIdentifier(id)
	}
	return ratelimit.ClientIdentifier(c.ClientIP())
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
