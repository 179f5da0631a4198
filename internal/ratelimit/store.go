package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// retention is the longest window any limiter looks back over
const retention = 24 * time.Hour

// Store keeps the accepted-request log for each key
type Store interface {
	// Window returns accepted timestamps strictly after since, oldest first
	Window(ctx context.Context, key string, since time.Time) ([]time.Time, error)
	// Reserve appends an entry at `at` when key holds fewer than limits.Hourly
	// entries after at-1h and fewer than limits.Daily after at-24h, in one
	// atomic step. It returns the day log as it was before the call; id is
	// empty when the ceiling was reached and nothing was added.
	Reserve(ctx context.Context, key string, at time.Time, limits Limits) (id string, dayLog []time.Time, err error)
	// Release removes an entry added by Reserve
	Release(ctx context.Context, key, id string) error
}

type slot struct {
	at time.Time
	id string
}

// MemoryStore is a per-process Store. Limits are not shared between
// server instances and reset on restart.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string][]slot
	seq  uint64
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]slot)}
}

func (s *MemoryStore) Window(_ context.Context, key string, since time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return times(s.logs[key], since), nil
}

func (s *MemoryStore) Reserve(_ context.Context, key string, at time.Time, limits Limits) (string, []time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := prune(s.logs[key], at.Add(-retention))
	s.logs[key] = log

	dayLog := times(log, at.Add(-retention))
	if len(dayLog) >= limits.Daily || len(times(log, at.Add(-time.Hour))) >= limits.Hourly {
		return "", dayLog, nil
	}

	s.seq++
	id := strconv.FormatUint(s.seq, 10)

	// Keep the log sorted even if clocks hand us an out-of-order timestamp
	i := sort.Search(len(log), func(i int) bool { return log[i].at.After(at) })
	log = append(log, slot{})
	copy(log[i+1:], log[i:])
	log[i] = slot{at: at, id: id}

	s.logs[key] = log
	return id, dayLog, nil
}

func (s *MemoryStore) Release(_ context.Context, key, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[key]
	for i := range log {
		if log[i].id == id {
			s.logs[key] = append(log[:i], log[i+1:]...)
			break
		}
	}
	return nil
}

// Sweep drops timestamps older than the retention window and forgets idle keys
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := now.Add(-retention)
	for key, log := range s.logs {
		log = prune(log, cutoff)
		if len(log) == 0 {
			delete(s.logs, key)
			removed++
			continue
		}
		s.logs[key] = log
	}
	return removed
}

// Janitor sweeps idle keys every interval until ctx is cancelled
func (s *MemoryStore) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.Sweep(now)
		case <-ctx.Done():
			return
		}
	}
}

// Len returns the number of tracked keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func times(log []slot, since time.Time) []time.Time {
	i := sort.Search(len(log), func(i int) bool { return log[i].at.After(since) })
	out := make([]time.Time, len(log)-i)
	for j := range out {
		out[j] = log[i+j].at
	}
	return out
}

func prune(log []slot, cutoff time.Time) []slot {
	i := sort.Search(len(log), func(i int) bool { return log[i].at.After(cutoff) })
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}

// reserveScript trims the log, counts both windows and adds the member only
// when both are under their ceilings. It replies {granted, day scores...}.
//
// KEYS[1] log key
// ARGV: at ms, hour cutoff ms, day cutoff ms, hourly, daily, member, ttl ms
const reserveScript = `
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[3])
local day = redis.call('ZRANGEBYSCORE', KEYS[1], '(' .. ARGV[3], '+inf', 'WITHSCORES')
local hour = redis.call('ZCOUNT', KEYS[1], '(' .. ARGV[2], '+inf')
local granted = 0
if hour < tonumber(ARGV[4]) and #day / 2 < tonumber(ARGV[5]) then
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[6])
	redis.call('PEXPIRE', KEYS[1], ARGV[7])
	granted = 1
end
local out = {granted}
for i = 2, #day, 2 do
	out[#out + 1] = day[i]
end
return out
`

// zsetClient is the subset of cache.RedisClient the Redis store needs
type zsetClient interface {
	ZRangeByScoreWithScores(ctx context.Context, key string, min, max string) ([]float64, error)
	ZRem(ctx context.Context, key string, members ...string) error
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisStore keeps one sorted set per key, scored by unix milliseconds,
// so limits hold across server instances.
type RedisStore struct {
	client zsetClient
	prefix string
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(client zsetClient) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:"}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Window(ctx context.Context, key string, since time.Time) ([]time.Time, error) {
	min := "(" + strconv.FormatInt(since.UnixMilli(), 10)
	scores, err := s.client.ZRangeByScoreWithScores(ctx, s.key(key), min, "+inf")
	if err != nil {
		return nil, fmt.Errorf("redis window %s: %w", key, err)
	}
	out := make([]time.Time, len(scores))
	for i, score := range scores {
		out[i] = time.UnixMilli(int64(score))
	}
	return out, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key string, at time.Time, limits Limits) (string, []time.Time, error) {
	ms := at.UnixMilli()
	// Members must be unique or two requests in the same millisecond collapse
	member := strconv.FormatInt(ms, 10) + "-" + uuid.NewString()

	reply, err := s.client.Eval(ctx, reserveScript, []string{s.key(key)},
		ms,
		at.Add(-time.Hour).UnixMilli(),
		at.Add(-retention).UnixMilli(),
		limits.Hourly,
		limits.Daily,
		member,
		retention.Milliseconds(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("redis reserve %s: %w", key, err)
	}

	granted, dayLog, err := parseReserveReply(reply)
	if err != nil {
		return "", nil, fmt.Errorf("redis reserve %s: %w", key, err)
	}
	if !granted {
		return "", dayLog, nil
	}
	return member, dayLog, nil
}

func (s *RedisStore) Release(ctx context.Context, key, id string) error {
	if err := s.client.ZRem(ctx, s.key(key), id); err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}

func parseReserveReply(reply interface{}) (bool, []time.Time, error) {
	items, ok := reply.([]interface{})
	if !ok || len(items) == 0 {
		return false, nil, fmt.Errorf("unexpected reply %T", reply)
	}
	flag, ok := items[0].(int64)
	if !ok {
		return false, nil, fmt.Errorf("unexpected flag %T", items[0])
	}
	dayLog := make([]time.Time, 0, len(items)-1)
	for _, item := range items[1:] {
		raw, ok := item.(string)
		if !ok {
			return false, nil, fmt.Errorf("unexpected score %T", item)
		}
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false, nil, err
		}
		dayLog = append(dayLog, time.UnixMilli(int64(score)))
	}
	return flag == 1, dayLog, nil
}
