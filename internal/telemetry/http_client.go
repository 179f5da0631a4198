package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HTTPClientConfig holds configuration for an instrumented HTTP client
type HTTPClientConfig struct {
	ServiceName string // e.g. "gemini", "elasticsearch"
	Timeout     time.Duration
}

// NewInstrumentedHTTPClient creates an HTTP client whose requests are traced
func NewInstrumentedHTTPClient(cfg HTTPClientConfig) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: otelhttp.NewTransport(
			http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return fmt.Sprintf("%s %s", cfg.ServiceName, r.Method)
			}),
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}
}

// ExternalServiceCallAttrs holds attributes for external service calls
type ExternalServiceCallAttrs struct {
	Service    string // gemini, elasticsearch, ses
	Operation  string
	ResourceID string // optional
	CacheHit   bool
}

// TraceExternalCall starts a client span for a call to an external service
func TraceExternalCall(ctx context.Context, attrs ExternalServiceCallAttrs) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("external-api").Start(ctx, fmt.Sprintf("%s.%s", attrs.Service, attrs.Operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("external.service", attrs.Service),
			attribute.String("external.operation", attrs.Operation),
		),
	)

	if attrs.ResourceID != "" {
		span.SetAttributes(attribute.String("external.resource_id", attrs.ResourceID))
	}
	if attrs.CacheHit {
		span.SetAttributes(attribute.Bool("external.cache_hit", true))
	}

	return ctx, span
}

// RecordExternalCallError records error details in a span
func RecordExternalCallError(span trace.Span, err error, statusCode int, retryable bool) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}

	if statusCode > 0 {
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
	if retryable || statusCode >= 500 || statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests {
		span.SetAttributes(attribute.Bool("external.error.retryable", true))
	}
}

// RecordExternalCallSuccess marks a span as successful
func RecordExternalCallSuccess(span trace.Span, statusCode int, responseSizeBytes int64) {
	if statusCode > 0 {
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
	if responseSizeBytes > 0 {
		span.SetAttributes(attribute.Int64("http.response.size_bytes", responseSizeBytes))
	}
	span.SetStatus(codes.Ok, "")
}
