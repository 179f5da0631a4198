package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/util"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware starts the otelgin server span
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// SpanAttributes annotates the server span once the rest of the chain has run.
// otelgin ends its span on return, so this must be registered after it.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		if requestID := c.GetString(RequestIDKey); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}
		if userID := util.OptionalUserID(c); userID != "" {
			span.SetAttributes(attribute.String("user.id", userID))
		}
		for _, q := range []string{"limit", "offset", "crops", "region"} {
			if v := c.Query(q); v != "" {
				span.SetAttributes(attribute.String("query."+q, v))
			}
		}
		if status := c.Writer.Status(); status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		if size := c.Writer.Size(); size > 0 {
			span.SetAttributes(attribute.Int("http.response.size_bytes", size))
		}
		for _, ginErr := range c.Errors {
			if ginErr.Err != nil {
				span.RecordError(ginErr.Err)
				span.SetStatus(codes.Error, ginErr.Error())
			}
		}
	}
}
