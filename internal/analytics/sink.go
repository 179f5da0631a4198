package analytics

import (
	"context"

	"github.com/kisanmitra/backend/internal/models"
	"gorm.io/gorm"
)

// GormSink writes events to the analytics_events table
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) Write(ctx context.Context, event *models.AnalyticsEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}
