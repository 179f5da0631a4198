package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/logger"
	"go.uber.org/zap"
)

// Health is the liveness probe
// GET /health
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.now().UTC(),
		"service":   "kisanmitra-backend",
	})
}

// Ready runs every readiness check and reports 503 if any fails
// GET /ready
func (h *Handlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.Readiness))
	status := http.StatusOK
	for _, chk := range h.Readiness {
		if err := chk.Check(ctx); err != nil {
			logger.Log.Warn("Readiness check failed", zap.String("check", chk.Name), zap.Error(err))
			checks[chk.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[chk.Name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
