// Package container builds the KisanMitra services from configuration and
// owns their lifecycle.
package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kisanmitra/backend/internal/analytics"
	"github.com/kisanmitra/backend/internal/assistant"
	"github.com/kisanmitra/backend/internal/auth"
	"github.com/kisanmitra/backend/internal/cache"
	"github.com/kisanmitra/backend/internal/config"
	"github.com/kisanmitra/backend/internal/database"
	"github.com/kisanmitra/backend/internal/email"
	"github.com/kisanmitra/backend/internal/feed"
	"github.com/kisanmitra/backend/internal/groups"
	"github.com/kisanmitra/backend/internal/handlers"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/otp"
	"github.com/kisanmitra/backend/internal/posts"
	"github.com/kisanmitra/backend/internal/ratelimit"
	"github.com/kisanmitra/backend/internal/search"
	"github.com/kisanmitra/backend/internal/storage"
	"github.com/kisanmitra/backend/internal/telemetry"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reconcileInterval = 10 * time.Minute

// Container holds all application dependencies
type Container struct {
	cfg *config.Config

	// Core infrastructure
	db     *gorm.DB
	redis  *cache.RedisClient
	tracer *sdktrace.TracerProvider

	// Background jobs
	recorder   *analytics.Recorder
	retention  *analytics.RetentionService
	reconciler *search.ReconciliationService

	// Services
	tokens        *auth.TokenService
	feed          *feed.Service
	interactions  *feed.InteractionService
	posts         *posts.Service
	groups        *groups.Service
	assistant     *assistant.Service
	otp           *otp.Service
	searcher      search.Searcher
	analytics     *analytics.Query
	searchLimiter *ratelimit.Limiter
	images        *storage.S3Uploader

	// Lifecycle hooks
	cleanupFuncs []func(context.Context) error
	mu           sync.RWMutex
}

// New creates an empty container for cfg. Call Init to build the services.
func New(cfg *config.Config) *Container {
	return &Container{
		cfg:          cfg,
		cleanupFuncs: make([]func(context.Context) error, 0),
	}
}

// SetDB registers an existing database connection; Init will not open one
func (c *Container) SetDB(db *gorm.DB) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = db
	return c
}

// DB returns the database connection
func (c *Container) DB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Redis returns the shared Redis client, or nil when none is configured
func (c *Container) Redis() *cache.RedisClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.redis
}

// Tokens returns the session token service
func (c *Container) Tokens() *auth.TokenService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// Recorder returns the analytics recorder
func (c *Container) Recorder() *analytics.Recorder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recorder
}

// Retention returns the analytics retention job
func (c *Container) Retention() *analytics.RetentionService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retention
}

// Init builds every service. It opens the database unless one was set,
// connects to the optional backends and starts the background jobs.
// Everything started is registered for Cleanup, including on failure.
func (c *Container) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.cfg
	if cfg == nil {
		return NewInitializationError("Missing configuration", nil)
	}

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Enabled:      cfg.Telemetry.Enabled,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		// Tracing is optional
		logger.WarnWithFields("Failed to initialize tracing", err)
	} else if tp != nil {
		c.tracer = tp
		c.addCleanup(func(ctx context.Context) error { return telemetry.Shutdown(ctx, tp) })
	}

	if c.db == nil {
		db, err := database.Open(cfg.Database, cfg.LogLevel == "debug", cfg.Telemetry.Enabled)
		if err != nil {
			return &StageError{Stage: "database", Err: err}
		}
		c.db = db
		c.addCleanup(func(context.Context) error { return database.Close(db) })
		if err := database.Migrate(db); err != nil {
			return &StageError{Stage: "migrations", Err: err}
		}
	}

	if cfg.Redis.Enabled() {
		rc, err := cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
		switch {
		case err == nil:
			c.redis = rc
			c.addCleanup(func(context.Context) error { return rc.Close() })
		case cfg.RateLimit.Store == "redis":
			return &StageError{Stage: "redis", Err: err}
		default:
			logger.WarnWithFields("Redis unavailable, continuing without it", err)
		}
	}

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return &StageError{Stage: "auth", Err: err}
	}
	c.tokens = tokens

	c.buildAnalytics()
	c.buildSearch(ctx)
	c.buildServices(ctx)

	return c.validate()
}

func (c *Container) buildAnalytics() {
	cfg := c.cfg.Analytics

	c.recorder = analytics.NewRecorder(analytics.NewGormSink(c.db), analytics.Options{
		QueueSize: cfg.QueueSize,
		Workers:   cfg.Workers,
		Retention: cfg.Retention,
	})
	c.recorder.Start()
	recorder := c.recorder
	c.addCleanup(recorder.Stop)

	c.retention = analytics.NewRetentionService(c.db, cfg.RetentionInterval)
	if cfg.RetentionInterval > 0 {
		c.retention.Start()
		retention := c.retention
		c.addCleanup(func(context.Context) error {
			retention.Stop()
			return nil
		})
	}

	c.analytics = analytics.NewQuery(c.db)
}

// buildSearch prefers Elasticsearch and falls back to the database
func (c *Container) buildSearch(ctx context.Context) {
	var index search.Searcher = search.NewDBSearcher(c.db)

	if url := c.cfg.Search.ElasticsearchURL; url != "" {
		es, err := search.NewElasticClient(url)
		if err == nil {
			err = es.InitializeIndices(ctx)
		}
		if err != nil {
			logger.WarnWithFields("Elasticsearch unavailable, searching the database", err)
		} else {
			logger.Log.Info("✅ Elasticsearch connected", zap.String("url", url))
			index = es

			c.reconciler = search.NewReconciliationService(c.db, es, reconcileInterval)
			c.reconciler.Start()
			reconciler := c.reconciler
			c.addCleanup(func(context.Context) error {
				reconciler.Stop()
				return nil
			})
		}
	}

	if c.redis != nil {
		c.searcher = search.NewCachedSearcher(index, c.redis.Universal(), search.DefaultCacheTTL)
		return
	}
	c.searcher = index
}

func (c *Container) buildServices(ctx context.Context) {
	cfg := c.cfg

	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Store == "redis" {
		store = ratelimit.NewRedisStore(c.redis)
	} else {
		c.janitor(store.(*ratelimit.MemoryStore).Janitor)
	}

	prefs := feed.NewPreferenceStore(c.db)
	c.interactions = feed.NewInteractionService(c.db, prefs)

	pages := cache.New[feed.Page](cache.Options{MaxEntries: cfg.Cache.MaxEntries, Name: "feed"})
	c.janitor(pages.Janitor)
	c.feed = feed.NewService(c.db, prefs, pages, cfg.Cache.FeedTTL, c.recorder)
	c.interactions.OnChange(c.feed.Invalidate)

	c.posts = posts.NewService(c.db, c.interactions, c.searcher)
	c.groups = groups.NewService(c.db, c.searcher, c.recorder)

	answers := cache.New[string](cache.Options{MaxEntries: cfg.Cache.MaxEntries, Name: "chat"})
	c.janitor(answers.Janitor)
	if cfg.AI.APIKey == "" {
		logger.Log.Warn("GEMINI_API_KEY is not set; chat requests will fail")
	}
	client := assistant.NewGeminiClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout)
	chatLimiter := ratelimit.New("chat", ratelimit.Limits{Hourly: cfg.RateLimit.ChatHourly, Daily: cfg.RateLimit.ChatDaily}, store)
	c.assistant = assistant.NewService(client, chatLimiter, answers, cfg.Cache.AITTL, c.recorder)

	var emailSender otp.Sender = otp.LogSender{}
	if cfg.Email.Enabled() {
		ses, err := email.NewEmailService(cfg.Email.AWSRegion, cfg.Email.FromEmail, cfg.Email.FromName)
		if err != nil {
			logger.WarnWithFields("SES unavailable, logging email codes instead", err)
		} else {
			emailSender = ses
		}
	}
	otpLimiter := ratelimit.New("otp", ratelimit.Limits{Hourly: cfg.RateLimit.OTPHourly, Daily: cfg.RateLimit.OTPDaily}, store)
	c.otp = otp.NewService(c.db, otpLimiter, emailSender, otp.LogSender{}, c.recorder, otp.Options{
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
		Issuer:      cfg.OTP.Issuer,
	})

	c.searchLimiter = ratelimit.New("search", ratelimit.Limits{Hourly: cfg.RateLimit.SearchHourly, Daily: cfg.RateLimit.SearchDaily}, store)

	c.buildStorage(ctx)
}

// buildStorage enables image uploads when a bucket is configured.
// An unreachable bucket is logged; uploads then fail per request.
func (c *Container) buildStorage(ctx context.Context) {
	cfg := c.cfg.Storage
	if !cfg.Enabled() {
		logger.Log.Info("AWS_S3_BUCKET not set, image uploads disabled")
		return
	}
	uploader, err := storage.NewS3Uploader(ctx, cfg.AWSRegion, cfg.Bucket, cfg.CDNBaseURL)
	if err != nil {
		logger.WarnWithFields("S3 unavailable, image uploads disabled", err)
		return
	}
	if err := uploader.CheckBucketAccess(ctx); err != nil {
		logger.WarnWithFields("S3 bucket check failed", err)
	}
	c.images = uploader
}

// janitor runs a periodic purge until Cleanup
func (c *Container) janitor(run func(ctx context.Context, interval time.Duration)) {
	interval := c.cfg.Cache.JanitorPeriod
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, interval)
	}()
	c.addCleanup(func(context.Context) error {
		cancel()
		<-done
		return nil
	})
}

// Deps returns the services the HTTP layer needs
func (c *Container) Deps() handlers.Deps {
	c.mu.RLock()
	defer c.mu.RUnlock()

	checks := []handlers.Checker{{Name: "database", Check: c.pingDB}}
	if c.redis != nil {
		checks = append(checks, handlers.Checker{Name: "redis", Check: c.redis.Ping})
	}

	deps := handlers.Deps{
		Feed:          c.feed,
		Interactions:  c.interactions,
		Posts:         c.posts,
		Groups:        c.groups,
		Assistant:     c.assistant,
		OTP:           c.otp,
		Tokens:        c.tokens,
		Search:        c.searcher,
		Analytics:     c.analytics,
		SearchLimiter: c.searchLimiter,
		MaxImageBytes: c.cfg.Storage.MaxImageBytes,
		Readiness:     checks,
	}
	if c.images != nil {
		deps.Images = c.images
	}
	return deps
}

func (c *Container) pingDB(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ============================================================================
// LIFECYCLE MANAGEMENT
// ============================================================================

// OnCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions are called in LIFO order (last registered, first cleaned up).
func (c *Container) OnCleanup(fn func(context.Context) error) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addCleanup(fn)
	return c
}

func (c *Container) addCleanup(fn func(context.Context) error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Cleanup performs graceful shutdown of all registered services.
// Every function runs even if an earlier one fails; the first error is returned.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](ctx); err != nil {
			logger.Log.Error("Cleanup function failed", zap.Int("index", i), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	c.cleanupFuncs = c.cleanupFuncs[:0]
	return first
}

// ============================================================================
// VALIDATION
// ============================================================================

// Validate checks that all required dependencies are registered
func (c *Container) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Container) validate() error {
	missingDeps := []string{}

	required := []struct {
		name string
		ok   bool
	}{
		{"database (DB)", c.db != nil},
		{"token service", c.tokens != nil},
		{"analytics recorder", c.recorder != nil},
		{"feed service", c.feed != nil},
		{"post service", c.posts != nil},
		{"group service", c.groups != nil},
		{"assistant service", c.assistant != nil},
		{"OTP service", c.otp != nil},
		{"searcher", c.searcher != nil},
	}
	for _, r := range required {
		if !r.ok {
			missingDeps = append(missingDeps, r.name)
		}
	}

	if len(missingDeps) > 0 {
		return NewInitializationError("Missing required dependencies", missingDeps)
	}
	return nil
}

// String summarizes which optional backends are active
func (c *Container) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("container(redis=%t, tracing=%t, elasticsearch=%t, images=%t)", c.redis != nil, c.tracer != nil, c.reconciler != nil, c.images != nil)
}
