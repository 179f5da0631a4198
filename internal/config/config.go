package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the KisanMitra backend.
// Values come from the environment (optionally loaded from .env by godotenv in main).
type Config struct {
	Environment string
	LogLevel    string
	LogFile     string

	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Analytics AnalyticsConfig
	AI        AIConfig
	OTP       OTPConfig
	Auth      AuthConfig
	Search    SearchConfig
	Email     EmailConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite"
	Driver string
	DSN    string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Enabled reports whether a Redis host was configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type RateLimitConfig struct {
	// Store is "memory" (per-process, default) or "redis"
	Store        string
	ChatHourly   int
	ChatDaily    int
	OTPHourly    int
	OTPDaily     int
	SearchHourly int
	SearchDaily  int
}

type CacheConfig struct {
	MaxEntries    int
	AITTL         time.Duration
	FeedTTL       time.Duration
	JanitorPeriod time.Duration
}

type AnalyticsConfig struct {
	QueueSize         int
	Workers           int
	Retention         time.Duration
	RetentionInterval time.Duration
}

type AIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
	Issuer      string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type SearchConfig struct {
	ElasticsearchURL string
}

type EmailConfig struct {
	AWSRegion string
	FromEmail string
	FromName  string
}

// Enabled reports whether SES delivery is configured
func (e EmailConfig) Enabled() bool {
	return e.AWSRegion != "" && e.FromEmail != ""
}

// StorageConfig configures post image uploads
type StorageConfig struct {
	AWSRegion     string
	Bucket        string
	CDNBaseURL    string
	MaxImageBytes int64
}

// Enabled reports whether image uploads are configured
func (s StorageConfig) Enabled() bool {
	return s.AWSRegion != "" && s.Bucket != ""
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SamplingRate float64
	ServiceName  string
}

// Load reads configuration from environment variables, applying defaults
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:     getEnvOrDefault("LOG_FILE", "server.log"),
		Server: ServerConfig{
			Port:            getEnvOrDefault("PORT", "8080"),
			AllowedOrigins:  splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*")),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver: getEnvOrDefault("DB_DRIVER", "postgres"),
			DSN:    databaseDSN(),
		},
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		RateLimit: RateLimitConfig{
			Store:        getEnvOrDefault("RATE_LIMIT_STORE", "memory"),
			ChatHourly:   getInt("CHAT_RATE_LIMIT_HOURLY", 50),
			ChatDaily:    getInt("CHAT_RATE_LIMIT_DAILY", 200),
			OTPHourly:    getInt("OTP_RATE_LIMIT_HOURLY", 5),
			OTPDaily:     getInt("OTP_RATE_LIMIT_DAILY", 20),
			SearchHourly: getInt("SEARCH_RATE_LIMIT_HOURLY", 300),
			SearchDaily:  getInt("SEARCH_RATE_LIMIT_DAILY", 2000),
		},
		Cache: CacheConfig{
			MaxEntries:    getInt("CACHE_MAX_ENTRIES", 1000),
			AITTL:         getDuration("AI_CACHE_TTL", time.Hour),
			FeedTTL:       getDuration("FEED_CACHE_TTL", time.Minute),
			JanitorPeriod: getDuration("CACHE_JANITOR_INTERVAL", 5*time.Minute),
		},
		Analytics: AnalyticsConfig{
			QueueSize:         getInt("ANALYTICS_QUEUE_SIZE", 1024),
			Workers:           getInt("ANALYTICS_WORKERS", 2),
			Retention:         getDuration("ANALYTICS_RETENTION", 90*24*time.Hour),
			RetentionInterval: getDuration("ANALYTICS_RETENTION_INTERVAL", 6*time.Hour),
		},
		AI: AIConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			Model:   getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
			BaseURL: getEnvOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Timeout: getDuration("AI_TIMEOUT", 30*time.Second),
		},
		OTP: OTPConfig{
			TTL:         getDuration("OTP_TTL", 5*time.Minute),
			MaxAttempts: getInt("OTP_MAX_ATTEMPTS", 5),
			Issuer:      getEnvOrDefault("OTP_ISSUER", "KisanMitra"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  getDuration("JWT_TTL", 30*24*time.Hour),
		},
		Search: SearchConfig{
			ElasticsearchURL: os.Getenv("ELASTICSEARCH_URL"),
		},
		Email: EmailConfig{
			AWSRegion: os.Getenv("AWS_REGION"),
			FromEmail: os.Getenv("SES_FROM_EMAIL"),
			FromName:  getEnvOrDefault("SES_FROM_NAME", "KisanMitra"),
		},
		Storage: StorageConfig{
			AWSRegion:     os.Getenv("AWS_REGION"),
			Bucket:        os.Getenv("AWS_S3_BUCKET"),
			CDNBaseURL:    os.Getenv("CDN_BASE_URL"),
			MaxImageBytes: int64(getInt("MAX_IMAGE_BYTES", 5<<20)),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			SamplingRate: getFloat("OTEL_SAMPLING_RATE", 0.1),
			ServiceName:  getEnvOrDefault("OTEL_SERVICE_NAME", "kisanmitra-backend"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings, for tools that need nothing else
func LoadDatabase() (DatabaseConfig, error) {
	cfg := DatabaseConfig{
		Driver: getEnvOrDefault("DB_DRIVER", "postgres"),
		DSN:    databaseDSN(),
	}
	switch cfg.Driver {
	case "postgres", "sqlite":
		return cfg, nil
	}
	return cfg, fmt.Errorf("unknown DB_DRIVER %q (want postgres or sqlite)", cfg.Driver)
}

// Validate fails fast on configuration that cannot work
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.RateLimit.ChatHourly <= 0 || c.RateLimit.ChatDaily <= 0 {
		return fmt.Errorf("chat rate limits must be positive (hourly=%d, daily=%d)", c.RateLimit.ChatHourly, c.RateLimit.ChatDaily)
	}
	if c.RateLimit.ChatHourly > c.RateLimit.ChatDaily {
		return fmt.Errorf("CHAT_RATE_LIMIT_HOURLY (%d) cannot exceed CHAT_RATE_LIMIT_DAILY (%d)", c.RateLimit.ChatHourly, c.RateLimit.ChatDaily)
	}
	if c.RateLimit.OTPHourly <= 0 || c.RateLimit.OTPDaily <= 0 {
		return fmt.Errorf("OTP rate limits must be positive")
	}
	if c.RateLimit.SearchHourly <= 0 || c.RateLimit.SearchDaily <= 0 {
		return fmt.Errorf("search rate limits must be positive")
	}
	switch c.RateLimit.Store {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("RATE_LIMIT_STORE=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_STORE %q (want memory or redis)", c.RateLimit.Store)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (want postgres or sqlite)", c.Database.Driver)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}
	if c.Analytics.Workers <= 0 || c.Analytics.QueueSize <= 0 {
		return fmt.Errorf("analytics workers and queue size must be positive")
	}
	if c.Storage.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func databaseDSN() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	if os.Getenv("DB_DRIVER") == "sqlite" {
		return getEnvOrDefault("SQLITE_PATH", "kisanmitra.db")
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnvOrDefault("DB_HOST", "localhost"),
		getEnvOrDefault("DB_PORT", "5432"),
		getEnvOrDefault("DB_USER", "postgres"),
		getEnvOrDefault("DB_PASSWORD", ""),
		getEnvOrDefault("DB_NAME", "kisanmitra"),
		getEnvOrDefault("DB_SSLMODE", "disable"),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
