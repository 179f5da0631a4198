package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"go.uber.org/zap"
)

const (
	WindowHourly = "hourly"
	WindowDaily  = "daily"

	releaseTimeout = 3 * time.Second
)

// Limits are the ceilings for one limiter
type Limits struct {
	Hourly int
	Daily  int
}

// ChatLimits are the assistant quotas
func ChatLimits() Limits {
	return Limits{Hourly: 50, Daily: 200}
}

// OTPLimits are the quotas for sending one-time codes to a destination
func OTPLimits() Limits {
	return Limits{Hourly: 5, Daily: 20}
}

// Result describes the quota state of an identifier at check time
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Window is the window that binds: the one that rejected, or the one closest to its ceiling
	Window string
}

// RetryAfter is how long the caller should wait before retrying
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	d := r.ResetAt.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}

// Limiter enforces rolling hourly and daily ceilings per identifier.
// Reserve claims a slot atomically; callers release it when the guarded
// operation fails so failures do not count.
type Limiter struct {
	name    string
	limits  Limits
	store   Store
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option customizes a Limiter
type Option func(*Limiter)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter. name labels metrics and logs ("chat", "otp") and
// namespaces its keys, so limiters can share one Store.
func New(name string, limits Limits, store Store, opts ...Option) *Limiter {
	l := &Limiter{
		name:    name,
		limits:  limits,
		store:   store,
		now:     time.Now,
		metrics: metrics.Get(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limits returns the configured ceilings
func (l *Limiter) Limits() Limits {
	return l.limits
}

func (l *Limiter) key(identifier string) string {
	return l.name + ":" + identifier
}

// Check reports the quota state of identifier without consuming anything.
// A store failure allows the request; the error is returned for logging only.
func (l *Limiter) Check(ctx context.Context, identifier string) (Result, error) {
	now := l.now()
	dayLog, err := l.store.Window(ctx, l.key(identifier), now.Add(-24*time.Hour))
	if err != nil {
		return l.failOpen(now, identifier, "check", err), err
	}
	res := l.evaluate(now, dayLog)
	if !res.Allowed {
		l.rejected(identifier, res)
	}
	return res, nil
}

// Reserve claims one slot for identifier if both windows have room. The
// returned Result describes the quota after the claim. The Reservation is nil
// when the request was rejected or the store failed (fail open).
func (l *Limiter) Reserve(ctx context.Context, identifier string) (Result, *Reservation, error) {
	now := l.now()
	key := l.key(identifier)

	id, dayLog, err := l.store.Reserve(ctx, key, now, l.limits)
	if err != nil {
		return l.failOpen(now, identifier, "reserve", err), nil, err
	}
	if id == "" {
		res := l.evaluate(now, dayLog)
		res.Allowed = false
		l.rejected(identifier, res)
		return res, nil, nil
	}

	res := l.evaluate(now, append(dayLog, now))
	res.Allowed = true
	return res, &Reservation{limiter: l, key: key, id: id}, nil
}

func (l *Limiter) evaluate(now time.Time, dayLog []time.Time) Result {
	hourStart := now.Add(-time.Hour)
	hourIdx := len(dayLog)
	for i, ts := range dayLog {
		if ts.After(hourStart) {
			hourIdx = i
			break
		}
	}
	hourLog := dayLog[hourIdx:]

	hourly := windowState{limit: l.limits.Hourly, used: len(hourLog), span: time.Hour, log: hourLog}
	daily := windowState{limit: l.limits.Daily, used: len(dayLog), span: 24 * time.Hour, log: dayLog}

	res := Result{Allowed: hourly.remaining() > 0 && daily.remaining() > 0}

	// The binding window is whichever has fewer slots left; ties go to hourly
	// since it resets first.
	bind, name := hourly, WindowHourly
	if daily.remaining() < hourly.remaining() {
		bind, name = daily, WindowDaily
	}
	res.Window = name
	res.Limit = bind.limit
	res.Remaining = bind.remaining()
	res.ResetAt = bind.resetAt(now)
	return res
}

func (l *Limiter) rejected(identifier string, res Result) {
	l.metrics.RateLimitExceededTotal.WithLabelValues(l.name, res.Window).Inc()
	logger.Log.Info("Rate limit exceeded",
		zap.String("limiter", l.name),
		zap.String("identifier", identifier),
		zap.String("window", res.Window),
		zap.Time("reset_at", res.ResetAt),
	)
}

func (l *Limiter) failOpen(now time.Time, identifier, op string, err error) Result {
	l.metrics.RateLimitStoreErrors.WithLabelValues(l.name, op).Inc()
	logger.Log.Warn("Rate limit store unavailable, allowing request",
		zap.String("limiter", l.name),
		zap.String("identifier", identifier),
		zap.Error(err),
	)
	return Result{
		Allowed:   true,
		Limit:     l.limits.Hourly,
		Remaining: l.limits.Hourly,
		ResetAt:   now.Add(time.Hour),
		Window:    WindowHourly,
	}
}

// Reservation is a claimed slot. A nil Reservation is valid and releases nothing.
type Reservation struct {
	limiter *Limiter
	key     string
	id      string
}

// Release returns the slot, for requests that failed. It runs even when ctx
// is already cancelled. Errors are logged.
func (r *Reservation) Release(ctx context.Context) {
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := r.limiter.store.Release(ctx, r.key, r.id); err != nil {
		r.limiter.metrics.RateLimitStoreErrors.WithLabelValues(r.limiter.name, "release").Inc()
		logger.Log.Warn("Failed to release rate limit slot",
			zap.String("limiter", r.limiter.name),
			zap.String("key", r.key),
			zap.Error(err),
		)
	}
}

type windowState struct {
	limit int
	used  int
	span  time.Duration
	log   []time.Time
}

func (w windowState) remaining() int {
	if r := w.limit - w.used; r > 0 {
		return r
	}
	return 0
}

// resetAt is when the window next frees a slot
func (w windowState) resetAt(now time.Time) time.Time {
	if len(w.log) == 0 {
		return now.Add(w.span)
	}
	// When over the ceiling, enough entries must age out to get back under it
	idx := 0
	if over := w.used - w.limit; over > 0 {
		idx = over
		if idx >= len(w.log) {
			idx = len(w.log) - 1
		}
	}
	return w.log[idx].Add(w.span)
}

// UserIdentifier namespaces an authenticated user id
func UserIdentifier(userID string) string {
	return "user:" + userID
}

// ClientIdentifier namespaces an anonymous client address
func ClientIdentifier(ip string) string {
	return "ip:" + ip
}

// SetHeaders writes the rate-limit response headers for res
func SetHeaders(c *gin.Context, res Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed {
		retry := res.RetryAfter(time.Now())
		c.Header("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
	}
}
