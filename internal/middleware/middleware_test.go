package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/ratelimit"
	"github.com/kisanmitra/backend/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestIDMiddleware(t *testing.T) {
	logger.InitializeForTest()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware(), GinLoggerMiddleware())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestSpanAttributes(t *testing.T) {
	logger.InitializeForTest()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(
		RequestIDMiddleware(),
		otelgin.Middleware("test", otelgin.WithTracerProvider(tp), otelgin.WithPropagators(propagation.TraceContext{})),
		SpanAttributes(),
	)
	router.GET("/feed", func(c *gin.Context) {
		c.Set(util.ContextUserID, "u1")
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/feed?limit=10", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "u1", attrs["user.id"])
	assert.Equal(t, "rid-1", attrs["request.id"])
	assert.Equal(t, "10", attrs["query.limit"])
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}

func TestRateLimitMiddleware(t *testing.T) {
	logger.InitializeForTest()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	limiter := ratelimit.New("search-test", ratelimit.Limits{Hourly: 2, Daily: 10},
		ratelimit.NewMemoryStore(), ratelimit.WithClock(func() time.Time { return now }))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(limiter, func(c *gin.Context) string { return ratelimit.ClientIdentifier(c.ClientIP()) }))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	do := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	// Failed requests do not spend quota
	assert.Equal(t, http.StatusBadRequest, do("/bad").Code)
	w := do("/ok")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	w = do("/ok")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do("/ok")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var env util.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)

	res, err := limiter.Check(context.Background(), ratelimit.ClientIdentifier("192.0.2.1"))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}
