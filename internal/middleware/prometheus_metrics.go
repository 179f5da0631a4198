package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/metrics"
)

// MetricsMiddleware collects HTTP metrics for Prometheus.
// Paths are labelled by route template so ids do not explode label cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	m := metrics.Get()

	return func(c *gin.Context) {
		method := c.Request.Method
		path := routePath(c)
		m.HTTPActiveConnections.WithLabelValues(method, path).Inc()
		defer m.HTTPActiveConnections.WithLabelValues(method, path).Dec()

		startTime := time.Now()
		c.Next()

		// Use numeric status codes so queries like status=~"5.." work
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(startTime).Seconds())
	}
}

func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}
