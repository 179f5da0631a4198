package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limits Limits) (*Limiter, *testClock) {
	clock := &testClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	return New("test", limits, NewMemoryStore(), WithClock(clock.Now)), clock
}

func reserve(t *testing.T, l *Limiter, id string) Result {
	t.Helper()
	res, r, err := l.Reserve(context.Background(), id)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.NotNil(t, r)
	return res
}

func TestFiftyFirstChatRequestRejected(t *testing.T) {
	l, clock := newTestLimiter(ChatLimits())
	ctx := context.Background()
	id := "user:123"

	for i := 0; i < 50; i++ {
		res := reserve(t, l, id)
		assert.Equal(t, 49-i, res.Remaining, "request %d", i+1)
		clock.Advance(time.Minute / 2)
	}

	res, r, err := l.Reserve(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, WindowHourly, res.Window)
	assert.Equal(t, 50, res.Limit)

	// The first request was at 08:00, so one slot frees at 09:00
	assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), res.ResetAt)
}

func TestCheckDoesNotConsumeQuota(t *testing.T) {
	l, _ := newTestLimiter(Limits{Hourly: 2, Daily: 10})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := l.Check(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2, res.Remaining)
	}
}

func TestHourlyWindowRolls(t *testing.T) {
	l, clock := newTestLimiter(Limits{Hourly: 2, Daily: 10})
	ctx := context.Background()

	reserve(t, l, "user:1")
	clock.Advance(10 * time.Minute)
	reserve(t, l, "user:1")

	res, _ := l.Check(ctx, "user:1")
	assert.False(t, res.Allowed)

	// 50 minutes later the first request is exactly an hour old and leaves the window
	clock.Advance(50 * time.Minute)
	res, _ = l.Check(ctx, "user:1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestDailyCeilingBinds(t *testing.T) {
	l, clock := newTestLimiter(Limits{Hourly: 5, Daily: 8})
	ctx := context.Background()

	accepted := 0
	for i := 0; i < 30; i++ {
		res, r, err := l.Reserve(ctx, "user:farmer")
		require.NoError(t, err)
		if res.Allowed {
			require.NotNil(t, r)
			accepted++
		}
		clock.Advance(20 * time.Minute)
	}
	// 30 attempts over 10 hours: the daily ceiling caps acceptance
	assert.Equal(t, 8, accepted)

	res, _ := l.Check(ctx, "user:farmer")
	assert.False(t, res.Allowed)
	assert.Equal(t, WindowDaily, res.Window)
	assert.Equal(t, 8, res.Limit)
}

func TestRollingHourNeverExceedsCeiling(t *testing.T) {
	l, clock := newTestLimiter(Limits{Hourly: 4, Daily: 100})
	ctx := context.Background()

	var accepted []time.Time
	for i := 0; i < 200; i++ {
		if res, _, _ := l.Reserve(ctx, "ip:10.0.0.1"); res.Allowed {
			accepted = append(accepted, clock.Now())
		}
		clock.Advance(7 * time.Minute)
	}

	for i := range accepted {
		inWindow := 0
		for j := i; j < len(accepted) && accepted[j].Sub(accepted[i]) < time.Hour; j++ {
			inWindow++
		}
		assert.LessOrEqual(t, inWindow, 4)
	}
}

func TestIdentifierNamespacesDoNotCollide(t *testing.T) {
	l, _ := newTestLimiter(Limits{Hourly: 1, Daily: 1})
	ctx := context.Background()

	assert.Equal(t, "user:10.0.0.1", UserIdentifier("10.0.0.1"))
	assert.Equal(t, "ip:10.0.0.1", ClientIdentifier("10.0.0.1"))

	reserve(t, l, UserIdentifier("10.0.0.1"))

	res, _ := l.Check(ctx, ClientIdentifier("10.0.0.1"))
	assert.True(t, res.Allowed)
	res, _ = l.Check(ctx, UserIdentifier("10.0.0.1"))
	assert.False(t, res.Allowed)
}

type failingStore struct{}

func (failingStore) Window(context.Context, string, time.Time) ([]time.Time, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Reserve(context.Context, string, time.Time, Limits) (string, []time.Time, error) {
	return "", nil, errors.New("connection refused")
}

func (failingStore) Release(context.Context, string, string) error {
	return errors.New("connection refused")
}

func TestStoreErrorFailsOpen(t *testing.T) {
	l := New("test_failopen", ChatLimits(), failingStore{})

	res, err := l.Check(context.Background(), "user:1")
	assert.Error(t, err)
	assert.True(t, res.Allowed)

	res, r, err := l.Reserve(context.Background(), "user:1")
	assert.Error(t, err)
	assert.True(t, res.Allowed)
	assert.Nil(t, r)
	r.Release(context.Background())
}

func TestReleaseReturnsTheSlot(t *testing.T) {
	l, _ := newTestLimiter(Limits{Hourly: 1, Daily: 5})
	ctx := context.Background()

	_, r, err := l.Reserve(ctx, "user:1")
	require.NoError(t, err)
	res, _ := l.Check(ctx, "user:1")
	assert.False(t, res.Allowed)

	r.Release(ctx)
	res, _ = l.Check(ctx, "user:1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	// A cancelled request context still releases
	_, r, err = l.Reserve(ctx, "user:1")
	require.NoError(t, err)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	r.Release(cancelled)
	res, _ = l.Check(ctx, "user:1")
	assert.True(t, res.Allowed)
}

func TestLimitersSharingAStoreKeepSeparateQuotas(t *testing.T) {
	store := NewMemoryStore()
	chat := New("chat", Limits{Hourly: 50, Daily: 200}, store)
	search := New("search", Limits{Hourly: 300, Daily: 2000}, store)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		reserve(t, search, "user:123")
	}

	res, err := chat.Check(ctx, "user:123")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 50, res.Remaining)

	res, err = search.Check(ctx, "user:123")
	require.NoError(t, err)
	assert.Equal(t, 250, res.Remaining)
	assert.Equal(t, 2, store.Len())
}

func TestConcurrentReservationsNeverExceedCeiling(t *testing.T) {
	l, _ := newTestLimiter(Limits{Hourly: 2, Daily: 10})
	ctx := context.Background()

	const callers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, r, _ := l.Reserve(ctx, "user:1"); res.Allowed && r != nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, granted)
}

func TestSetHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reset := time.Now().Add(90 * time.Second).Truncate(time.Second)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	SetHeaders(c, Result{Allowed: true, Limit: 50, Remaining: 12, ResetAt: reset})

	assert.Equal(t, "50", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "12", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(reset.Unix(), 10), w.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	SetHeaders(c, Result{Allowed: false, Limit: 200, Remaining: 0, ResetAt: reset})

	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 90, retry, 2)
}

func TestRetryAfterHasFloor(t *testing.T) {
	now := time.Now()
	assert.Equal(t, time.Duration(0), Result{Allowed: true}.RetryAfter(now))
	assert.Equal(t, time.Second, Result{ResetAt: now}.RetryAfter(now))
}
