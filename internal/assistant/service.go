package assistant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kisanmitra/backend/internal/analytics"
	"github.com/kisanmitra/backend/internal/cache"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"github.com/kisanmitra/backend/internal/ratelimit"
	"github.com/kisanmitra/backend/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	MaxMessageLength = 2000
	MaxHistoryTurns  = 20
	DefaultCacheTTL  = time.Hour
	DefaultLanguage  = "en"
)

var (
	ErrEmptyMessage    = errors.New("message is required")
	ErrMessageTooLong  = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	ErrHistoryTooLong  = fmt.Errorf("history exceeds %d turns", MaxHistoryTurns)
	ErrInvalidRole     = errors.New("history role must be user or model")
	ErrUnsupportedLang = errors.New("unsupported language")
)

// RateLimitError is returned when the caller is over quota
type RateLimitError struct {
	Result ratelimit.Result
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded, resets at %s", e.Result.Window, e.Result.ResetAt.Format(time.RFC3339))
}

// Request is one question to the assistant
type Request struct {
	Identity string
	UserID   string
	Message  string
	History  []Turn
	Language string
}

// Answer is the assistant's reply with the caller's remaining quota
type Answer struct {
	Text      string           `json:"text"`
	Cached    bool             `json:"cached"`
	RateLimit ratelimit.Result `json:"-"`
}

// Recorder is the analytics surface the assistant needs
type Recorder interface {
	RecordSuccess(operation string, duration time.Duration, c analytics.Context)
	RecordError(operation string, duration time.Duration, code string, message string)
}

var systemPrompts = map[string]string{
	"en": "You are KisanMitra, a friendly farming advisor for Indian farmers. Give practical, safe advice on crops, soil, pests, irrigation, weather and government schemes. Answer in simple English.",
	"hi": "आप किसानमित्र हैं, भारतीय किसानों के लिए एक मददगार कृषि सलाहकार। फसल, मिट्टी, कीट, सिंचाई, मौसम और सरकारी योजनाओं पर व्यावहारिक और सुरक्षित सलाह दें। सरल हिंदी में उत्तर दें।",
	"pa": "ਤੁਸੀਂ ਕਿਸਾਨਮਿੱਤਰ ਹੋ, ਭਾਰਤੀ ਕਿਸਾਨਾਂ ਲਈ ਇੱਕ ਸਹਾਇਕ ਖੇਤੀ ਸਲਾਹਕਾਰ। ਫ਼ਸਲ, ਮਿੱਟੀ, ਕੀੜੇ, ਸਿੰਚਾਈ, ਮੌਸਮ ਅਤੇ ਸਰਕਾਰੀ ਯੋਜਨਾਵਾਂ ਬਾਰੇ ਵਿਹਾਰਕ ਸਲਾਹ ਦਿਓ। ਸਰਲ ਪੰਜਾਬੀ ਵਿੱਚ ਜਵਾਬ ਦਿਓ।",
}

// Languages lists the supported reply languages
func Languages() []string {
	return []string{"en", "hi", "pa"}
}

// Service answers farming questions with rate limiting, caching and request coalescing
type Service struct {
	client   Client
	limiter  *ratelimit.Limiter
	answers  *cache.TTLCache[string]
	ttl      time.Duration
	recorder Recorder
	group    singleflight.Group
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService wires the assistant. answers caches replies to history-free questions.
func NewService(client Client, limiter *ratelimit.Limiter, answers *cache.TTLCache[string], ttl time.Duration, recorder Recorder) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		client:   client,
		limiter:  limiter,
		answers:  answers,
		ttl:      ttl,
		recorder: recorder,
		metrics:  metrics.Get(),
		now:      time.Now,
	}
}

// Validate checks a request's shape and fills in the default language
func Validate(req *Request) error {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if len(req.History) > MaxHistoryTurns {
		return ErrHistoryTooLong
	}
	for _, t := range req.History {
		if t.Role != "user" && t.Role != "model" {
			return ErrInvalidRole
		}
	}
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	if _, ok := systemPrompts[req.Language]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedLang, req.Language)
	}
	return nil
}

// CacheKey derives the answer cache key from language and normalized message
func CacheKey(language, message string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(message), " "))
	sum := sha256.Sum256([]byte(language + "|" + normalized))
	return "chat:" + hex.EncodeToString(sum[:])
}

// Ask answers a question. The returned Answer carries the rate-limit state
// even when err is non-nil, except for validation failures.
func (s *Service) Ask(ctx context.Context, req Request) (Answer, error) {
	if err := Validate(&req); err != nil {
		return Answer{}, err
	}

	ctx, span := telemetry.StartOperation(ctx, "assistant.ask",
		attribute.String("chat.language", req.Language),
		attribute.Int("chat.history_turns", len(req.History)),
	)
	var opErr error
	defer func() { telemetry.EndOperation(span, opErr) }()

	start := s.now()

	rl, reservation, err := s.limiter.Reserve(ctx, req.Identity)
	if err != nil {
		logger.Log.Warn("Chat rate limit check degraded", zap.String("identity", req.Identity), zap.Error(err))
	}
	if !rl.Allowed {
		opErr = &RateLimitError{Result: rl}
		return Answer{RateLimit: rl}, opErr
	}

	cacheable := len(req.History) == 0
	key := CacheKey(req.Language, req.Message)

	if cacheable {
		if text, ok := s.answers.Get(key); ok {
			span.SetAttributes(attribute.Bool("chat.cached", true))
			s.recorder.RecordSuccess(analytics.OpChat, s.now().Sub(start), analytics.Context{Cached: true, UserID: req.UserID})
			return Answer{Text: text, Cached: true, RateLimit: rl}, nil
		}
	} else {
		// Conversations are not shared between callers
		key = fmt.Sprintf("%s:%s:%d", key, req.Identity, s.now().UnixNano())
	}

	text, err := s.generate(ctx, key, Prompt{
		System:   systemPrompts[req.Language],
		Message:  req.Message,
		History:  req.History,
		Language: req.Language,
	})
	elapsed := s.now().Sub(start)

	if err != nil {
		reservation.Release(ctx)
		rl = s.refund(rl, reservation)

		apiErr := Classify(err)
		s.metrics.AIErrorsTotal.WithLabelValues(string(apiErr.Code)).Inc()
		s.recorder.RecordError(analytics.OpChat, elapsed, string(apiErr.Code), err.Error())
		logger.Log.Warn("Assistant request failed",
			zap.String("identity", req.Identity),
			zap.String("code", string(apiErr.Code)),
			zap.Error(err),
		)
		opErr = err
		return Answer{RateLimit: rl}, err
	}

	s.recorder.RecordSuccess(analytics.OpChat, elapsed, analytics.Context{
		UserID:   req.UserID,
		Metadata: map[string]interface{}{"language": req.Language, "history_turns": len(req.History)},
	})
	if cacheable {
		s.answers.Set(key, text, s.ttl)
	}

	return Answer{Text: text, RateLimit: rl}, nil
}

// Quota reports the caller's remaining questions without spending one
func (s *Service) Quota(ctx context.Context, identity string) (ratelimit.Result, error) {
	return s.limiter.Check(ctx, identity)
}

// generate coalesces identical in-flight questions. The shared call runs
// detached from any one caller's context and is bounded by the client's own
// timeout; each caller stops waiting when its own ctx ends.
func (s *Service) generate(ctx context.Context, key string, prompt Prompt) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.client.Generate(detached, prompt)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.metrics.AIDedupedTotal.Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refund reports the quota as it stands once a released slot is back
func (s *Service) refund(rl ratelimit.Result, reservation *ratelimit.Reservation) ratelimit.Result {
	if reservation != nil && rl.Remaining < rl.Limit {
		rl.Remaining++
	}
	return rl
}
