package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/kisanmitra/backend/internal/errors"
	"github.com/kisanmitra/backend/internal/ratelimit"
	"github.com/kisanmitra/backend/internal/util"
)

// RateLimit guards a route with limiter, keyed by identify (usually auth.Identity).
// A slot is claimed before the handler runs and handed back when it responds
// with 400 or above, so only successful requests count against the quota.
func RateLimit(limiter *ratelimit.Limiter, identify func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identify(c)
		res, reservation, _ := limiter.Reserve(c.Request.Context(), id)
		ratelimit.SetHeaders(c, res)
		if !res.Allowed {
			util.RespondWithAPIError(c, apperrors.RateLimited("").
				WithDetails("limit resets at "+res.ResetAt.UTC().Format(http.TimeFormat)))
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			reservation.Release(c.Request.Context())
		}
	}
}
