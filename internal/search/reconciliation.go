package search

import (
	"context"
	"sync"
	"time"

	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// reconcileBatch bounds how many posts one pass reindexes
const reconcileBatch = 200

// ReconciliationService periodically reindexes posts whose engagement changed
// since the last pass, and removes posts that left the approved state, so the
// index catches up on fire-and-forget writes that failed.
type ReconciliationService struct {
	db       *gorm.DB
	index    Searcher
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastRun   time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(db *gorm.DB, index Searcher, interval time.Duration) *ReconciliationService {
	return &ReconciliationService{
		db:       db,
		index:    index,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic reconciliation loop
func (rs *ReconciliationService) Start() {
	rs.mu.Lock()
	if rs.isRunning {
		rs.mu.Unlock()
		return
	}
	rs.isRunning = true
	rs.mu.Unlock()

	logger.Log.Info("Starting search reconciliation service", zap.Duration("interval", rs.interval))

	rs.wg.Add(1)
	go rs.loop()
}

// Stop gracefully stops the reconciliation service
func (rs *ReconciliationService) Stop() {
	rs.mu.Lock()
	if !rs.isRunning {
		rs.mu.Unlock()
		return
	}
	rs.isRunning = false
	rs.mu.Unlock()

	close(rs.stopChan)
	rs.wg.Wait()
	logger.Log.Info("Search reconciliation service stopped")
}

func (rs *ReconciliationService) loop() {
	defer rs.wg.Done()

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-rs.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), rs.interval)
			rs.Reconcile(ctx)
			cancel()
		}
	}
}

// Reconcile reindexes posts updated since the previous pass. Returns how many
// documents were written and removed.
func (rs *ReconciliationService) Reconcile(ctx context.Context) (indexed, removed int) {
	rs.mu.Lock()
	since := rs.lastRun
	rs.mu.Unlock()
	started := rs.now()

	var posts []models.Post
	if err := rs.db.WithContext(ctx).Unscoped().
		Where("updated_at >= ?", since).
		Order("updated_at ASC").
		Limit(reconcileBatch).
		Find(&posts).Error; err != nil {
		logger.Log.Warn("Failed to query posts for reconciliation", zap.Error(err))
		return 0, 0
	}

	next := started
	for i := range posts {
		p := &posts[i]
		var err error
		if p.IsApproved() && !p.DeletedAt.Valid {
			if err = rs.index.IndexPost(ctx, p); err == nil {
				indexed++
			}
		} else {
			if err = rs.index.DeletePost(ctx, p.ID); err == nil {
				removed++
			}
		}
		if err != nil {
			logger.Log.Warn("Failed to reconcile post", zap.String("post_id", p.ID), zap.Error(err))
		}
	}
	// A full batch means more rows remain; resume from the last one seen
	if len(posts) == reconcileBatch {
		next = posts[len(posts)-1].UpdatedAt
	}

	rs.mu.Lock()
	rs.lastRun = next
	rs.mu.Unlock()

	logger.Log.Debug("Search reconciliation complete",
		zap.Int("indexed", indexed),
		zap.Int("removed", removed),
		zap.Duration("duration", rs.now().Sub(started)),
	)
	return indexed, removed
}
