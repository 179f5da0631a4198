package cache

import (
	"container/list"
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"go.uber.org/zap"
)

// DefaultMaxEntries is used when Options.MaxEntries is not positive
const DefaultMaxEntries = 1000

// Options configures a TTLCache
type Options struct {
	// MaxEntries bounds the cache; the oldest-inserted entry is evicted first
	MaxEntries int
	// Name labels the cache in metrics and logs
	Name string
	// Now overrides the clock (tests)
	Now func() time.Time
}

// Entry is a cached value with its insertion and expiry timestamps
type Entry[V any] struct {
	Data      V
	Timestamp time.Time
	ExpiresAt time.Time
}

// Stats is a point-in-time snapshot of cache counters
type Stats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
	Size        int    `json:"size"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type item[V any] struct {
	key   string
	entry Entry[V]
}

// TTLCache is an in-memory key/value store with per-entry expiry and a
// bounded size. Eviction is by insertion order, not access order.
// State is per-process and lost on restart.
type TTLCache[V any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = oldest insertion
	max     int
	name    string
	now     func() time.Time
	stats   Stats
	metrics *metrics.Metrics
}

// New creates a TTL cache
func New[V any](opts Options) *TTLCache[V] {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TTLCache[V]{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		max:     opts.MaxEntries,
		name:    opts.Name,
		now:     opts.Now,
		metrics: metrics.Get(),
	}
}

// Name returns the cache label
func (c *TTLCache[V]) Name() string {
	return c.name
}

// Get returns the value for key. An expired entry is evicted and reported as a miss.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.recordMiss()
		return zero, false
	}

	it := el.Value.(*item[V])
	if c.now().After(it.entry.ExpiresAt) {
		c.removeElement(el)
		c.stats.Expirations++
		c.metrics.CacheExpirationsTotal.WithLabelValues(c.name).Inc()
		c.recordMiss()
		return zero, false
	}

	c.stats.Hits++
	c.metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
	return it.entry.Data, true
}

// Peek returns the full entry without touching hit/miss counters or evicting
func (c *TTLCache[V]) Peek(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return Entry[V]{}, false
	}
	it := el.Value.(*item[V])
	if c.now().After(it.entry.ExpiresAt) {
		return Entry[V]{}, false
	}
	return it.entry, true
}

// Set stores value under key for ttl. When the cache is full and key is new,
// the oldest-inserted entry is evicted first. Overwriting a key keeps its
// insertion position. A non-positive ttl stores nothing.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := Entry[V]{Data: value, Timestamp: now, ExpiresAt: now.Add(ttl)}

	if el, ok := c.items[key]; ok {
		el.Value.(*item[V]).entry = entry
		return
	}

	if len(c.items) >= c.max {
		if oldest := c.order.Front(); oldest != nil {
			c.removeElement(oldest)
			c.stats.Evictions++
			c.metrics.CacheEvictionsTotal.WithLabelValues(c.name).Inc()
		}
	}

	c.items[key] = c.order.PushBack(&item[V]{key: key, entry: entry})
	c.updateSizeGauge()
}

// Delete removes key, reporting whether it was present
func (c *TTLCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	c.updateSizeGauge()
	return true
}

// InvalidatePattern removes every key matching pattern and returns the count removed
func (c *TTLCache[V]) InvalidatePattern(pattern *regexp.Regexp) int {
	if pattern == nil {
		return 0
	}
	return c.invalidate(pattern.MatchString)
}

// InvalidatePrefix removes every key starting with prefix and returns the count removed
func (c *TTLCache[V]) InvalidatePrefix(prefix string) int {
	return c.invalidate(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func (c *TTLCache[V]) invalidate(match func(string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if match(el.Value.(*item[V]).key) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	if removed > 0 {
		c.updateSizeGauge()
	}
	return removed
}

// Purge drops all expired entries and returns how many were removed
func (c *TTLCache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if now.After(el.Value.(*item[V]).entry.ExpiresAt) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	if removed > 0 {
		c.stats.Expirations += uint64(removed)
		c.metrics.CacheExpirationsTotal.WithLabelValues(c.name).Add(float64(removed))
		c.updateSizeGauge()
	}
	return removed
}

// Clear removes every entry
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.updateSizeGauge()
}

// Len returns the number of stored entries, including expired ones not yet purged
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the cache counters
func (c *TTLCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

// Janitor purges expired entries every interval until ctx is cancelled
func (c *TTLCache[V]) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Purge(); n > 0 {
				logger.Log.Debug("Cache purge",
					zap.String("cache", c.name),
					zap.Int("expired", n),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// removeElement must be called with c.mu held
func (c *TTLCache[V]) removeElement(el *list.Element) {
	it := c.order.Remove(el).(*item[V])
	delete(c.items, it.key)
}

func (c *TTLCache[V]) recordMiss() {
	c.stats.Misses++
	c.metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
}

func (c *TTLCache[V]) updateSizeGauge() {
	c.metrics.CacheEntries.WithLabelValues(c.name).Set(float64(len(c.items)))
}
