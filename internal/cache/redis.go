package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/kisanmitra/backend/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient wraps the redis.Client with centralized connection pooling.
// It backs the shared rate-limit store, the search result cache and the readiness probe.
type RedisClient struct {
	client redis.UniversalClient
}

// NewRedisClient creates a pooled Redis client and verifies the connection
func NewRedisClient(host string, port string, password string) (*RedisClient, error) {
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6379"
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.ErrorWithFields("Failed to connect to Redis", err)
		_ = client.Close()
		return nil, err
	}

	logger.Log.Info("✅ Redis client connected successfully",
		zap.String("address", addr),
	)

	return &RedisClient{client: client}, nil
}

// NewRedisClientFrom wraps an existing client (tests, sentinel/cluster setups)
func NewRedisClientFrom(client redis.UniversalClient) *RedisClient {
	return &RedisClient{client: client}
}

// Close closes the Redis connection gracefully
func (rc *RedisClient) Close() error {
	if rc == nil || rc.client == nil {
		return nil
	}
	return rc.client.Close()
}

// Ping tests the Redis connection
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// ZRangeByScoreWithScores returns the scores of members in [min, max], ascending
func (rc *RedisClient) ZRangeByScoreWithScores(ctx context.Context, key string, min, max string) ([]float64, error) {
	zs, err := rc.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(zs))
	for i, z := range zs {
		scores[i] = z.Score
	}
	return scores, nil
}

// ZRem removes members from a sorted set
func (rc *RedisClient) ZRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return rc.client.ZRem(ctx, key, args...).Err()
}

// Eval runs a Lua script; scripts are cached server-side by SHA after the first call
func (rc *RedisClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return redis.NewScript(script).Run(ctx, rc.client, keys, args...).Result()
}

// Universal exposes the underlying client for components that need the full command set
func (rc *RedisClient) Universal() redis.UniversalClient {
	return rc.client
}
