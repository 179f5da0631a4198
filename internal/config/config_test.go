package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.RateLimit.ChatHourly)
	assert.Equal(t, 200, cfg.RateLimit.ChatDaily)
	assert.Equal(t, 300, cfg.RateLimit.SearchHourly)
	assert.Equal(t, "memory", cfg.RateLimit.Store)
	assert.Equal(t, time.Hour, cfg.Cache.AITTL)
	assert.Equal(t, 90*24*time.Hour, cfg.Analytics.Retention)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("CHAT_RATE_LIMIT_HOURLY", "10")
	t.Setenv("CHAT_RATE_LIMIT_DAILY", "40")
	t.Setenv("AI_CACHE_TTL", "15m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.RateLimit.ChatHourly)
	assert.Equal(t, 15*time.Minute, cfg.Cache.AITTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "kisanmitra.db", cfg.Database.DSN)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")

	t.Run("hourly above daily", func(t *testing.T) {
		t.Setenv("CHAT_RATE_LIMIT_HOURLY", "300")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("redis store without host", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_STORE", "redis")
		t.Setenv("REDIS_HOST", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("zero search limit", func(t *testing.T) {
		t.Setenv("SEARCH_RATE_LIMIT_DAILY", "0")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mongo")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("zero image size", func(t *testing.T) {
		t.Setenv("MAX_IMAGE_BYTES", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestStorageEnabled(t *testing.T) {
	assert.False(t, StorageConfig{AWSRegion: "ap-south-1"}.Enabled())
	assert.True(t, StorageConfig{AWSRegion: "ap-south-1", Bucket: "kisan-images"}.Enabled())
}

func TestLoadDatabaseSkipsServerSettings(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", "/tmp/km.db")

	db, err := LoadDatabase()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Driver)
	assert.Equal(t, "/tmp/km.db", db.DSN)

	t.Setenv("DB_DRIVER", "mysql")
	_, err = LoadDatabase()
	assert.Error(t, err)
}
