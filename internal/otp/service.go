package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kisanmitra/backend/internal/analytics"
	"github.com/kisanmitra/backend/internal/cache"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/kisanmitra/backend/internal/ratelimit"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 5
	period             = 300
)

var (
	ErrInvalidDestination = errors.New("destination must be an email address or an E.164 phone number")
	ErrExpired            = errors.New("code expired or never issued")
	ErrInvalidCode        = errors.New("code is incorrect")
	ErrTooManyAttempts    = errors.New("too many incorrect attempts")
)

// RateLimitError is returned when a destination has requested too many codes
type RateLimitError struct {
	Result ratelimit.Result
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many codes requested, retry after %s", e.Result.ResetAt.Format(time.RFC3339))
}

// Kind of destination a code was sent to
type Kind string

const (
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
)

type entry struct {
	secret   string
	attempts int
}

// Recorder is the analytics surface OTP needs
type Recorder interface {
	RecordSuccess(operation string, duration time.Duration, c analytics.Context)
	RecordError(operation string, duration time.Duration, code string, message string)
}

// Options configures the service
type Options struct {
	TTL         time.Duration
	MaxAttempts int
	Issuer      string
	Now         func() time.Time
}

// Service issues and verifies one-time login codes. Pending codes live in a
// per-process cache, so a code must be verified by the instance that issued it.
type Service struct {
	db          *gorm.DB
	limiter     *ratelimit.Limiter
	pending     *cache.TTLCache[*entry]
	email       Sender
	phone       Sender
	recorder    Recorder
	validate    *validator.Validate
	ttl         time.Duration
	maxAttempts int
	issuer      string
	now         func() time.Time

	mu sync.Mutex
}

// NewService wires the OTP flow. email and phone deliver codes per destination kind.
func NewService(db *gorm.DB, limiter *ratelimit.Limiter, email, phone Sender, recorder Recorder, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Issuer == "" {
		opts.Issuer = "KisanMitra"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		db:          db,
		limiter:     limiter,
		pending:     cache.New[*entry](cache.Options{Name: "otp", Now: opts.Now}),
		email:       email,
		phone:       phone,
		recorder:    recorder,
		validate:    validator.New(),
		ttl:         opts.TTL,
		maxAttempts: opts.MaxAttempts,
		issuer:      opts.Issuer,
		now:         opts.Now,
	}
}

// TTL is how long an issued code stays valid
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Normalize classifies and canonicalizes a destination
func (s *Service) Normalize(destination string) (string, Kind, error) {
	d := strings.TrimSpace(destination)
	if s.validate.Var(d, "required,email") == nil {
		return strings.ToLower(d), KindEmail, nil
	}
	if s.validate.Var(d, "required,e164") == nil {
		return d, KindPhone, nil
	}
	return "", "", ErrInvalidDestination
}

func (s *Service) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    period,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Request issues a new code, replacing any pending one for the destination
func (s *Service) Request(ctx context.Context, destination string) (ratelimit.Result, error) {
	start := s.now()
	dest, kind, err := s.Normalize(destination)
	if err != nil {
		return ratelimit.Result{}, err
	}
	identity := "otp:" + dest

	rl, reservation, err := s.limiter.Reserve(ctx, identity)
	if err != nil {
		logger.Log.Warn("OTP rate limit check degraded", zap.Error(err))
	}
	if !rl.Allowed {
		metrics.Get().OTPTotal.WithLabelValues("rate_limited").Inc()
		s.recorder.RecordError(analytics.OpOTPRequest, s.now().Sub(start), "RATE_LIMITED", "otp quota exceeded")
		return rl, &RateLimitError{Result: rl}
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: dest,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		reservation.Release(ctx)
		return rl, fmt.Errorf("failed to generate secret: %w", err)
	}
	code, err := totp.GenerateCodeCustom(key.Secret(), s.now(), s.opts())
	if err != nil {
		reservation.Release(ctx)
		return rl, fmt.Errorf("failed to generate code: %w", err)
	}

	s.pending.Set(dest, &entry{secret: key.Secret()}, s.ttl)

	sender := s.phone
	if kind == KindEmail {
		sender = s.email
	}
	if err := sender.SendOTP(ctx, dest, code, s.ttl); err != nil {
		s.pending.Delete(dest)
		reservation.Release(ctx)
		metrics.Get().OTPTotal.WithLabelValues("send_failed").Inc()
		s.recorder.RecordError(analytics.OpOTPRequest, s.now().Sub(start), "SEND_FAILED", err.Error())
		return rl, fmt.Errorf("failed to deliver code: %w", err)
	}

	metrics.Get().OTPTotal.WithLabelValues("issued").Inc()
	s.recorder.RecordSuccess(analytics.OpOTPRequest, s.now().Sub(start), analytics.Context{
		Metadata: map[string]interface{}{"kind": string(kind)},
	})
	return rl, nil
}

// Verify checks a code and returns the user for the destination, creating it
// on first login. A code can be used once.
func (s *Service) Verify(ctx context.Context, destination, code string) (*models.User, bool, error) {
	start := s.now()
	dest, kind, err := s.Normalize(destination)
	if err != nil {
		return nil, false, err
	}

	if err := s.check(dest, code); err != nil {
		s.recorder.RecordError(analytics.OpOTPVerify, s.now().Sub(start), verifyCode(err), err.Error())
		return nil, false, err
	}

	user, created, err := s.upsertUser(ctx, dest, kind)
	if err != nil {
		return nil, false, err
	}
	s.recorder.RecordSuccess(analytics.OpOTPVerify, s.now().Sub(start), analytics.Context{UserID: user.ID})
	return user, created, nil
}

func (s *Service) check(dest, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending.Get(dest)
	if !ok {
		metrics.Get().OTPTotal.WithLabelValues("expired").Inc()
		return ErrExpired
	}
	if e.attempts >= s.maxAttempts {
		s.pending.Delete(dest)
		metrics.Get().OTPTotal.WithLabelValues("locked").Inc()
		return ErrTooManyAttempts
	}

	valid, err := totp.ValidateCustom(strings.TrimSpace(code), e.secret, s.now(), s.opts())
	if err != nil || !valid {
		e.attempts++
		if e.attempts >= s.maxAttempts {
			s.pending.Delete(dest)
		}
		metrics.Get().OTPTotal.WithLabelValues("invalid").Inc()
		return ErrInvalidCode
	}

	s.pending.Delete(dest)
	metrics.Get().OTPTotal.WithLabelValues("verified").Inc()
	return nil
}

func (s *Service) upsertUser(ctx context.Context, dest string, kind Kind) (*models.User, bool, error) {
	column := "phone"
	if kind == KindEmail {
		column = "email"
	}

	var user models.User
	err := s.db.WithContext(ctx).Where(column+" = ?", dest).First(&user).Error
	if err == nil {
		now := s.now()
		if err := s.db.WithContext(ctx).Model(&user).Update("last_active_at", now).Error; err != nil {
			logger.Log.Warn("Failed to update last active time",
				logger.WithUserID(user.ID),
				zap.Error(err),
			)
		} else {
			user.LastActiveAt = &now
		}
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()
	user = models.User{LastActiveAt: &now}
	if kind == KindEmail {
		user.Email = &dest
	} else {
		user.Phone = &dest
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// Lost a race with a concurrent first login
		var existing models.User
		if s.db.WithContext(ctx).Where(column+" = ?", dest).First(&existing).Error == nil {
			return &existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	logger.Log.Info("User created on first login", zap.String("user_id", user.ID), zap.String("kind", string(kind)))
	return &user, true, nil
}

func verifyCode(err error) string {
	switch {
	case errors.Is(err, ErrExpired), errors.Is(err, ErrTooManyAttempts):
		return "OTP_EXPIRED"
	default:
		return "OTP_INVALID"
	}
}

// Pending reports how many codes await verification
func (s *Service) Pending() int {
	return s.pending.Len()
}

// Janitor drops expired codes until ctx is cancelled
func (s *Service) Janitor(ctx context.Context, interval time.Duration) {
	s.pending.Janitor(ctx, interval)
}
