package container

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kisanmitra/backend/internal/config"
	"github.com/kisanmitra/backend/internal/database"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		RateLimit: config.RateLimitConfig{
			Store:        "memory",
			ChatHourly:   5,
			ChatDaily:    10,
			OTPHourly:    5,
			OTPDaily:     20,
			SearchHourly: 100,
			SearchDaily:  1000,
		},
		Cache: config.CacheConfig{
			MaxEntries:    100,
			AITTL:         time.Hour,
			FeedTTL:       time.Minute,
			JanitorPeriod: time.Minute,
		},
		Analytics: config.AnalyticsConfig{
			QueueSize:         16,
			Workers:           1,
			Retention:         24 * time.Hour,
			RetentionInterval: time.Hour,
		},
		AI: config.AIConfig{
			BaseURL: "http://127.0.0.1:1",
			Model:   "test-model",
			Timeout: time.Second,
		},
		OTP:  config.OTPConfig{TTL: time.Minute, MaxAttempts: 3},
		Auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
	}
}

func TestInitBuildsEveryService(t *testing.T) {
	logger.InitializeForTest()
	db, err := database.OpenInMemory()
	require.NoError(t, err)

	c := New(testConfig()).SetDB(db)
	require.NoError(t, c.Init(context.Background()))
	defer func() { assert.NoError(t, c.Cleanup(context.Background())) }()

	assert.NoError(t, c.Validate())
	assert.Nil(t, c.Redis())
	assert.Same(t, db, c.DB())
	assert.Contains(t, c.String(), "redis=false")

	deps := c.Deps()
	assert.NotNil(t, deps.Feed)
	assert.NotNil(t, deps.Posts)
	assert.NotNil(t, deps.Assistant)
	assert.NotNil(t, deps.OTP)
	assert.NotNil(t, deps.Search)
	assert.NotNil(t, deps.SearchLimiter)
	assert.Nil(t, deps.Images, "uploads stay off without a bucket")
	require.Len(t, deps.Readiness, 1)
	assert.Equal(t, "database", deps.Readiness[0].Name)
	assert.NoError(t, deps.Readiness[0].Check(context.Background()))

	tok, err := c.Tokens().Issue(&models.User{ID: "u1", Role: models.RoleFarmer})
	require.NoError(t, err)
	claims, err := c.Tokens().Parse(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
}

func TestInitWithoutConfig(t *testing.T) {
	err := New(nil).Init(context.Background())
	var initErr *InitializationError
	assert.ErrorAs(t, err, &initErr)
}

func TestRedisStoreRequiresReachableRedis(t *testing.T) {
	logger.InitializeForTest()
	db, err := database.OpenInMemory()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.RateLimit.Store = "redis"
	cfg.Redis = config.RedisConfig{Host: "127.0.0.1", Port: "1"}

	c := New(cfg).SetDB(db)
	err = c.Init(context.Background())
	var stage *StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, "redis", stage.Stage)
	assert.NoError(t, c.Cleanup(context.Background()))
}

func TestValidateReportsMissingDependencies(t *testing.T) {
	err := New(testConfig()).Validate()
	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Contains(t, initErr.MissingDeps, "database (DB)")
	assert.Contains(t, initErr.Error(), "OTP service")
}

func TestCleanupRunsInReverseOrder(t *testing.T) {
	logger.InitializeForTest()
	c := New(testConfig())

	var order []int
	boom := errors.New("boom")
	c.OnCleanup(func(context.Context) error { order = append(order, 1); return nil })
	c.OnCleanup(func(context.Context) error { order = append(order, 2); return boom })
	c.OnCleanup(func(context.Context) error { order = append(order, 3); return nil })

	err := c.Cleanup(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{3, 2, 1}, order)

	// Hooks run once
	assert.NoError(t, c.Cleanup(context.Background()))
	assert.Len(t, order, 3)
}
