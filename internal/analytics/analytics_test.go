package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kisanmitra/backend/internal/database"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memorySink struct {
	mu     sync.Mutex
	events []*models.AnalyticsEvent
	err    error
	block  chan struct{}
}

func (s *memorySink) Write(_ context.Context, e *models.AnalyticsEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.InitializeForTest()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestP95(t *testing.T) {
	assert.Equal(t, int64(0), P95(nil))
	assert.Equal(t, int64(42), P95([]int64{42}))

	samples := make([]int64, 0, 100)
	for i := 100; i >= 1; i-- {
		samples = append(samples, int64(i))
	}
	// floor(100*0.95) = 95 -> 96th smallest value
	assert.Equal(t, int64(96), P95(samples))
	assert.Equal(t, int64(100), samples[0], "input must not be reordered")

	// floor(10*0.95) = 9 -> the max
	assert.Equal(t, int64(10), P95([]int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}))
}

func TestSummarize(t *testing.T) {
	code := "AI_ERROR"
	events := []models.AnalyticsEvent{
		{Success: true, ResponseTimeMs: 100, Cached: true},
		{Success: true, ResponseTimeMs: 300},
		{Success: false, ResponseTimeMs: 200, ErrorCode: &code},
		{Success: true, ResponseTimeMs: 400, Cached: true},
	}

	s := Summarize(events)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Successes)
	assert.Equal(t, 1, s.Errors)
	assert.InDelta(t, 0.25, s.ErrorRate, 1e-9)
	assert.InDelta(t, 0.5, s.CacheHitRate, 1e-9)
	assert.InDelta(t, 250, s.AvgMs, 1e-9)
	assert.Equal(t, int64(400), s.P95Ms)
	assert.Equal(t, 1, s.ErrorCodes["AI_ERROR"])

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestRecorderWritesThroughSink(t *testing.T) {
	logger.InitializeForTest()
	sink := &memorySink{}
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	r := NewRecorder(sink, Options{QueueSize: 16, Workers: 2, Now: func() time.Time { return now }})
	r.Start()

	r.RecordSuccess(OpChat, 120*time.Millisecond, Context{Cached: true, UserID: "u1", Metadata: map[string]interface{}{"lang": "hi"}})
	r.RecordError(OpChat, 80*time.Millisecond, "AI_SAFETY_BLOCKED", "response blocked")

	require.NoError(t, r.Stop(context.Background()))
	require.Equal(t, 2, sink.Len())

	var ok, failed *models.AnalyticsEvent
	for _, e := range sink.events {
		if e.Success {
			ok = e
		} else {
			failed = e
		}
	}
	require.NotNil(t, ok)
	require.NotNil(t, failed)

	assert.True(t, ok.Cached)
	assert.Equal(t, int64(120), ok.ResponseTimeMs)
	assert.Equal(t, "u1", *ok.UserID)
	assert.Equal(t, "hi", ok.Metadata["lang"])
	assert.Equal(t, now.Add(Retention), ok.ExpiresAt)

	assert.Equal(t, "AI_SAFETY_BLOCKED", *failed.ErrorCode)
	assert.Equal(t, "response blocked", *failed.ErrorMessage)
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	logger.InitializeForTest()
	sink := &memorySink{block: make(chan struct{})}
	r := NewRecorder(sink, Options{QueueSize: 1, Workers: 1})
	r.Start()

	start := time.Now()
	for i := 0; i < 20; i++ {
		r.RecordSuccess(OpFeed, time.Millisecond, Context{})
	}
	assert.Less(t, time.Since(start), time.Second, "recording must never block")

	close(sink.block)
	require.NoError(t, r.Stop(context.Background()))

	// One in flight in the worker plus at most one buffered
	assert.LessOrEqual(t, sink.Len(), 2)
	assert.GreaterOrEqual(t, sink.Len(), 1)
}

func TestRecorderSwallowsSinkErrors(t *testing.T) {
	logger.InitializeForTest()
	sink := &memorySink{err: errors.New("disk full")}
	r := NewRecorder(sink, Options{})
	r.Start()

	assert.NotPanics(t, func() {
		r.RecordSuccess(OpSearch, time.Millisecond, Context{})
	})
	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, 0, sink.Len())
}

func TestRecordAfterStopIsDropped(t *testing.T) {
	logger.InitializeForTest()
	sink := &memorySink{}
	r := NewRecorder(sink, Options{})
	r.Start()
	require.NoError(t, r.Stop(context.Background()))
	require.NoError(t, r.Stop(context.Background()))

	assert.NotPanics(t, func() {
		r.RecordError(OpChat, time.Millisecond, "AI_ERROR", "late")
	})
	assert.Equal(t, 0, sink.Len())
}

func TestGormSinkAndQuerySummary(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sink := NewGormSink(db)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	code := "AI_ERROR"
	rows := []*models.AnalyticsEvent{
		{OperationType: OpChat, Success: true, ResponseTimeMs: 100, Cached: true, CreatedAt: base, ExpiresAt: base.Add(Retention)},
		{OperationType: OpChat, Success: false, ResponseTimeMs: 900, ErrorCode: &code, CreatedAt: base.Add(time.Minute), ExpiresAt: base.Add(Retention)},
		{OperationType: OpFeed, Success: true, ResponseTimeMs: 50, CreatedAt: base.Add(2 * time.Minute), ExpiresAt: base.Add(Retention)},
		{OperationType: OpChat, Success: true, ResponseTimeMs: 300, CreatedAt: base.Add(48 * time.Hour), ExpiresAt: base.Add(Retention)},
	}
	for _, row := range rows {
		require.NoError(t, sink.Write(ctx, row))
	}

	q := NewQuery(db)

	s, err := q.Summary(ctx, OpChat, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Errors)
	assert.InDelta(t, 0.5, s.CacheHitRate, 1e-9)
	assert.Equal(t, int64(900), s.P95Ms)
	assert.Equal(t, 1, s.ErrorCodes["AI_ERROR"])

	all, err := q.Summary(ctx, "", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)

	ops, err := q.Operations(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{OpChat, OpFeed}, ops)

	_, err = q.Summary(ctx, "", base, base)
	assert.Error(t, err)
}

func TestRetentionPurgesExpiredOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.AnalyticsEvent{OperationType: OpChat, Success: true, CreatedAt: now.Add(-100 * 24 * time.Hour), ExpiresAt: now.Add(-10 * 24 * time.Hour)}).Error)
	require.NoError(t, db.Create(&models.AnalyticsEvent{OperationType: OpChat, Success: true, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(89 * 24 * time.Hour)}).Error)

	svc := NewRetentionService(db, time.Hour)
	svc.now = func() time.Time { return now }

	n, err := svc.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var remaining int64
	require.NoError(t, db.Model(&models.AnalyticsEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)

	svc.Stop()
}
