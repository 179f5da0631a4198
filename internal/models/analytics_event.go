package models

import (
	"time"

	"gorm.io/gorm"
)

// AnalyticsEvent is an immutable record of one operation outcome.
// Rows past ExpiresAt are purged by the retention job.
type AnalyticsEvent struct {
	ID             string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OperationType  string  `gorm:"not null;index:idx_analytics_op_created" json:"operation_type"`
	Success        bool    `gorm:"not null" json:"success"`
	ResponseTimeMs int64   `gorm:"not null" json:"response_time_ms"`
	Cached         bool    `gorm:"default:false" json:"cached"`
	ErrorCode      *string `json:"error_code,omitempty"`
	ErrorMessage   *string `gorm:"type:text" json:"error_message,omitempty"`
	UserID         *string `gorm:"index" json:"user_id,omitempty"`
	Metadata       JSONMap `gorm:"type:text" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_analytics_op_created" json:"created_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (e *AnalyticsEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = generateUUID()
	}
	return nil
}
