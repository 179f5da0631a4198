package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/kisanmitra/backend/internal/errors"
	"github.com/kisanmitra/backend/internal/util"
)

const maxSummaryWindow = 90 * 24 * time.Hour

type summaryQuery struct {
	Operation string `form:"op" binding:"max=64"`
	Window    string `form:"window"`
	By        string `form:"by" binding:"omitempty,oneof=operation"`
}

// AnalyticsSummary reports success rate, cache hit rate and latency for one
// operation, or for all of them, over a trailing window (default 24h)
// GET /api/v1/admin/analytics/summary?op=&window=&by=operation
func (h *Handlers) AnalyticsSummary(c *gin.Context) {
	var q summaryQuery
	if !util.BindQuery(c, &q) {
		return
	}

	window := 24 * time.Hour
	if q.Window != "" {
		d, err := time.ParseDuration(q.Window)
		if err != nil || d <= 0 || d > maxSummaryWindow {
			util.RespondWithAPIError(c, apperrors.ValidationError("window", "window must be a duration between 1s and 2160h"))
			return
		}
		window = d
	}
	to := h.now()
	from := to.Add(-window)
	ctx := c.Request.Context()

	if q.By != "operation" {
		summary, err := h.Analytics.Summary(ctx, q.Operation, from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		util.RespondOK(c, http.StatusOK, summary)
		return
	}

	ops, err := h.Analytics.Operations(ctx, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make(map[string]interface{}, len(ops))
	for _, op := range ops {
		summary, err := h.Analytics.Summary(ctx, op, from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		out[op] = summary
	}
	util.RespondOK(c, http.StatusOK, gin.H{"from": from, "to": to, "operations": out})
}
