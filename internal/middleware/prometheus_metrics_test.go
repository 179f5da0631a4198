package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsMiddleware_StatusCodesAreNumeric(t *testing.T) {
	logger.InitializeForTest()
	m := metrics.Initialize()
	m.HTTPRequestsTotal.Reset()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/200", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/404", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/500", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/200", "/404", "/500", "/500"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	// Numeric labels keep Grafana queries like status=~"5.." working
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/200", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/404", "404")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/500", "500")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/200", "OK")))
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	logger.InitializeForTest()
	m := metrics.Initialize()
	m.HTTPRequestsTotal.Reset()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/posts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/a", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/b", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/posts/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
