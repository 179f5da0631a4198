package analytics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"github.com/kisanmitra/backend/internal/models"
	"go.uber.org/zap"
)

// Retention is how long an event is kept before the retention job drops it
const Retention = 90 * 24 * time.Hour

// Operation types recorded by the services
const (
	OpChat       = "chat"
	OpFeed       = "feed"
	OpDiscover   = "group_discover"
	OpSearch     = "search"
	OpOTPRequest = "otp_request"
	OpOTPVerify  = "otp_verify"
)

// Context carries optional attributes of a successful operation
type Context struct {
	Cached   bool
	UserID   string
	Metadata map[string]interface{}
}

// Sink persists events. Implementations may be slow; they run on worker goroutines.
type Sink interface {
	Write(ctx context.Context, event *models.AnalyticsEvent) error
}

// Options configures a Recorder
type Options struct {
	QueueSize int
	Workers   int
	Retention time.Duration
	Now       func() time.Time
}

// Recorder appends operation outcomes asynchronously. Recording never blocks
// the caller and never returns an error: a full queue drops the event and a
// failed write is logged.
type Recorder struct {
	sink      Sink
	events    chan *models.AnalyticsEvent
	workers   int
	retention time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder writing to sink
func NewRecorder(sink Sink, opts Options) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Retention <= 0 {
		opts.Retention = Retention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{
		sink:      sink,
		events:    make(chan *models.AnalyticsEvent, opts.QueueSize),
		workers:   opts.Workers,
		retention: opts.Retention,
		now:       opts.Now,
		metrics:   metrics.Get(),
	}
}

// Start launches the worker goroutines
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true

	logger.Log.Info("Starting analytics recorder", zap.Int("workers", r.workers))
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop stops accepting events and waits for the queue to drain, or for ctx to expire
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.events)
	started := r.started
	r.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info("Analytics recorder stopped")
		return nil
	case <-ctx.Done():
		logger.Log.Warn("Analytics recorder stop timed out", zap.Int("pending", len(r.events)))
		return ctx.Err()
	}
}

// RecordSuccess records a successful operation
func (r *Recorder) RecordSuccess(operation string, duration time.Duration, c Context) {
	event := r.newEvent(operation, duration)
	event.Success = true
	event.Cached = c.Cached
	if c.UserID != "" {
		uid := c.UserID
		event.UserID = &uid
	}
	if len(c.Metadata) > 0 {
		event.Metadata = models.JSONMap(c.Metadata)
	}
	r.enqueue(event)
}

// RecordError records a failed operation with its classified error code
func (r *Recorder) RecordError(operation string, duration time.Duration, code string, message string) {
	event := r.newEvent(operation, duration)
	event.Success = false
	if code != "" {
		event.ErrorCode = &code
	}
	if message != "" {
		event.ErrorMessage = &message
	}
	r.enqueue(event)
}

func (r *Recorder) newEvent(operation string, duration time.Duration) *models.AnalyticsEvent {
	now := r.now().UTC()
	return &models.AnalyticsEvent{
		OperationType:  operation,
		ResponseTimeMs: duration.Milliseconds(),
		CreatedAt:      now,
		ExpiresAt:      now.Add(r.retention),
	}
}

func (r *Recorder) enqueue(event *models.AnalyticsEvent) {
	r.observe(event)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(event, "recorder stopped")
		return
	}

	select {
	case r.events <- event:
		r.metrics.AnalyticsQueueDepth.Set(float64(len(r.events)))
	default:
		r.drop(event, "queue full")
	}
}

func (r *Recorder) observe(event *models.AnalyticsEvent) {
	outcome := "success"
	if !event.Success {
		outcome = "error"
	}
	r.metrics.OperationsTotal.WithLabelValues(event.OperationType, outcome, strconv.FormatBool(event.Cached)).Inc()
	r.metrics.OperationDuration.WithLabelValues(event.OperationType).Observe(float64(event.ResponseTimeMs) / 1000)
}

func (r *Recorder) drop(event *models.AnalyticsEvent, reason string) {
	r.metrics.AnalyticsDroppedTotal.Inc()
	logger.Log.Warn("Dropping analytics event",
		zap.String("operation", event.OperationType),
		zap.String("reason", reason),
	)
}

func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	for event := range r.events {
		r.metrics.AnalyticsQueueDepth.Set(float64(len(r.events)))
		r.write(id, event)
	}
}

func (r *Recorder) write(worker int, event *models.AnalyticsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.AnalyticsWriteErrors.Inc()
			logger.Log.Error("Analytics sink panicked",
				zap.Int("worker", worker),
				zap.Any("panic", rec),
			)
		}
	}()

	if err := r.sink.Write(ctx, event); err != nil {
		r.metrics.AnalyticsWriteErrors.Inc()
		logger.Log.Warn("Failed to persist analytics event",
			zap.Int("worker", worker),
			zap.String("operation", event.OperationType),
			zap.Error(err),
		)
	}
}
