package analytics

import (
	"context"
	"time"

	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/metrics"
	"github.com/kisanmitra/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RetentionService periodically deletes events past their expiry
type RetentionService struct {
	db       *gorm.DB
	interval time.Duration
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
}

// NewRetentionService creates a retention job running every interval
func NewRetentionService(db *gorm.DB, interval time.Duration) *RetentionService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RetentionService{
		db:       db,
		interval: interval,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins the periodic purge
func (s *RetentionService) Start() {
	logger.Log.Info("🧹 Starting analytics retention service", zap.Duration("interval", s.interval))
	s.started = true
	go s.run()
}

// Stop stops the service and waits for an in-flight purge
func (s *RetentionService) Stop() {
	s.cancel()
	if s.started {
		<-s.done
	}
	logger.Log.Info("🧹 Analytics retention service stopped")
}

func (s *RetentionService) run() {
	defer close(s.done)

	// Run immediately on startup
	s.purgeAndLog()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.purgeAndLog()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *RetentionService) purgeAndLog() {
	start := time.Now()
	n, err := s.Purge(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			logger.ErrorWithFields("Analytics retention purge failed", err)
		}
		return
	}
	if n > 0 {
		logger.Log.Info("🗑️ Purged expired analytics events",
			zap.Int64("deleted", n),
			logger.WithDuration(time.Since(start)),
		)
	}
}

// Purge deletes every event whose expiry has passed and returns the count
func (s *RetentionService) Purge(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now().UTC()).
		Delete(&models.AnalyticsEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	metrics.Get().AnalyticsPurgedTotal.Add(float64(res.RowsAffected))
	return res.RowsAffected, nil
}
