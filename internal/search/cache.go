package search

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultCacheTTL bounds how stale a cached result page can be
const DefaultCacheTTL = 2 * time.Minute

// resultStore is the subset of the Redis client used for result caching
type resultStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedSearcher caches search result pages in Redis. Any index write bumps
// a generation number that is part of the key, so pages cached before the
// write are never served again by this process.
type CachedSearcher struct {
	next       Searcher
	redis      resultStore
	ttl        time.Duration
	generation atomic.Uint64
}

// NewCachedSearcher wraps next. A nil store disables caching.
func NewCachedSearcher(next Searcher, store redis.UniversalClient, ttl time.Duration) *CachedSearcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &CachedSearcher{next: next, ttl: ttl}
	if store != nil {
		c.redis = store
	}
	return c
}

func (c *CachedSearcher) cacheKey(params Params) string {
	data, _ := json.Marshal(params)
	return fmt.Sprintf("search:posts:%d:%x", c.generation.Load(), md5.Sum(data))
}

func (c *CachedSearcher) IndexPost(ctx context.Context, post *models.Post) error {
	c.generation.Add(1)
	return c.next.IndexPost(ctx, post)
}

func (c *CachedSearcher) DeletePost(ctx context.Context, postID string) error {
	c.generation.Add(1)
	return c.next.DeletePost(ctx, postID)
}

// SearchPosts serves from Redis when possible. Redis failures fall through to the backend.
func (c *CachedSearcher) SearchPosts(ctx context.Context, params Params) (*Result, error) {
	params = params.normalized()
	if c.redis == nil {
		return c.next.SearchPosts(ctx, params)
	}

	key := c.cacheKey(params)
	if cached, err := c.redis.Get(ctx, key).Result(); err == nil {
		var result Result
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			return &result, nil
		}
	} else if err != redis.Nil {
		logger.Log.Debug("Search cache read failed", zap.Error(err))
	}

	result, err := c.next.SearchPosts(ctx, params)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(result); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logger.Log.Debug("Search cache write failed", zap.Error(err))
		}
	}
	return result, nil
}
