package handlers

import (
	"context"
	"time"

	"github.com/kisanmitra/backend/internal/analytics"
	"github.com/kisanmitra/backend/internal/assistant"
	"github.com/kisanmitra/backend/internal/auth"
	"github.com/kisanmitra/backend/internal/feed"
	"github.com/kisanmitra/backend/internal/groups"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/kisanmitra/backend/internal/otp"
	"github.com/kisanmitra/backend/internal/posts"
	"github.com/kisanmitra/backend/internal/ratelimit"
	"github.com/kisanmitra/backend/internal/search"
	"github.com/kisanmitra/backend/internal/storage"
)

const defaultMaxImageBytes = 5 << 20

// TokenIssuer mints session tokens after OTP verification
type TokenIssuer interface {
	Issue(user *models.User) (*auth.Token, error)
}

// AnalyticsReader answers operator reporting queries
type AnalyticsReader interface {
	Summary(ctx context.Context, operation string, from, to time.Time) (analytics.Summary, error)
	Operations(ctx context.Context, from, to time.Time) ([]string, error)
}

// Checker is a named readiness probe
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the services the HTTP layer delegates to
type Deps struct {
	Feed         *feed.Service
	Interactions *feed.InteractionService
	Posts        *posts.Service
	Groups       *groups.Service
	Assistant    *assistant.Service
	OTP          *otp.Service
	Tokens       TokenIssuer
	Search       search.Searcher
	Analytics    AnalyticsReader
	// Images is nil when uploads are not configured
	Images        storage.ImageUploader
	MaxImageBytes int64
	// SearchLimiter guards /search/posts; nil disables it
	SearchLimiter *ratelimit.Limiter
	Readiness     []Checker
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	Deps
	now func() time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{Deps: deps, now: time.Now}
}
