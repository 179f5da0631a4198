package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPActiveConnections *prometheus.GaugeVec

	// Cache metrics
	CacheHitsTotal        *prometheus.CounterVec
	CacheMissesTotal      *prometheus.CounterVec
	CacheEvictionsTotal   *prometheus.CounterVec
	CacheExpirationsTotal *prometheus.CounterVec
	CacheEntries          *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitExceededTotal *prometheus.CounterVec
	RateLimitStoreErrors   *prometheus.CounterVec

	// Analytics recorder metrics
	OperationsTotal       *prometheus.CounterVec
	OperationDuration     *prometheus.HistogramVec
	AnalyticsDroppedTotal prometheus.Counter
	AnalyticsWriteErrors  prometheus.Counter
	AnalyticsPurgedTotal  prometheus.Counter
	AnalyticsQueueDepth   prometheus.Gauge

	// Assistant metrics
	AIRequestDuration *prometheus.HistogramVec
	AIErrorsTotal     *prometheus.CounterVec
	AIDedupedTotal    prometheus.Counter

	// Feed and community metrics
	FeedGenerationTime *prometheus.HistogramVec
	InteractionsTotal  *prometheus.CounterVec
	PostsCreatedTotal  *prometheus.CounterVec
	ModerationTotal    *prometheus.CounterVec
	OTPTotal           *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of currently active HTTP connections",
				},
				[]string{"method", "path"},
			),

			CacheHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache_name"},
			),
			CacheMissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache_name"},
			),
			CacheEvictionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_evictions_total",
					Help: "Total number of capacity evictions",
				},
				[]string{"cache_name"},
			),
			CacheExpirationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_expirations_total",
					Help: "Total number of entries dropped after their TTL",
				},
				[]string{"cache_name"},
			),
			CacheEntries: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "cache_entries",
					Help: "Current number of cache entries",
				},
				[]string{"cache_name"},
			),

			RateLimitExceededTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit rejections",
				},
				[]string{"limiter", "window"},
			),
			RateLimitStoreErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_store_errors_total",
					Help: "Rate limit store failures (requests are allowed through)",
				},
				[]string{"limiter", "operation"},
			),

			OperationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "operations_total",
					Help: "Completed operations by type, outcome and cache status",
				},
				[]string{"operation", "outcome", "cached"},
			),
			OperationDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "operation_duration_seconds",
					Help:    "Operation latency in seconds",
					Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
				},
				[]string{"operation"},
			),
			AnalyticsDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Analytics events dropped because the queue was full",
			}),
			AnalyticsWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "analytics_write_errors_total",
				Help: "Analytics events that failed to persist",
			}),
			AnalyticsPurgedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "analytics_events_purged_total",
				Help: "Analytics events deleted by the retention job",
			}),
			AnalyticsQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "analytics_queue_depth",
				Help: "Analytics events waiting to be written",
			}),

			AIRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ai_request_duration_seconds",
					Help:    "Latency of upstream AI inference calls",
					Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 16, 32},
				},
				[]string{"model"},
			),
			AIErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ai_errors_total",
					Help: "Upstream AI failures by classified code",
				},
				[]string{"code"},
			),
			AIDedupedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ai_requests_deduplicated_total",
				Help: "Questions answered by joining an identical in-flight request",
			}),

			FeedGenerationTime: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "feed_generation_duration_seconds",
					Help:    "Time to generate feed in seconds",
					Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"feed_type"},
			),
			InteractionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "post_interactions_total",
					Help: "Post interactions by kind",
				},
				[]string{"kind"},
			),
			PostsCreatedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "posts_created_total",
					Help: "Posts created by initial status",
				},
				[]string{"status"},
			),
			ModerationTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "group_moderation_actions_total",
					Help: "Group post moderation transitions",
				},
				[]string{"action"},
			),
			OTPTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "otp_events_total",
					Help: "OTP issue and verification outcomes",
				},
				[]string{"event"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}
