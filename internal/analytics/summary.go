package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kisanmitra/backend/internal/models"
	"gorm.io/gorm"
)

// Summary aggregates a set of events
type Summary struct {
	Operation    string    `json:"operation,omitempty"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	Total        int       `json:"total"`
	Successes    int       `json:"successes"`
	Errors       int       `json:"errors"`
	ErrorRate    float64   `json:"error_rate"`
	CacheHitRate float64   `json:"cache_hit_rate"`
	AvgMs        float64   `json:"avg_ms"`
	P95Ms        int64     `json:"p95_ms"`
	// ErrorCodes counts failures per classified code
	ErrorCodes map[string]int `json:"error_codes,omitempty"`
}

// P95 returns the 95th percentile of samples: the value at index
// floor(n*0.95) of the sorted samples, clamped to the last element.
// samples is not modified.
func P95(samples []int64) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Summarize computes the aggregate statistics for events
func Summarize(events []models.AnalyticsEvent) Summary {
	var s Summary
	s.Total = len(events)
	if s.Total == 0 {
		return s
	}

	samples := make([]int64, 0, len(events))
	var totalMs int64
	cached := 0
	for _, e := range events {
		if e.Success {
			s.Successes++
		} else {
			s.Errors++
			if e.ErrorCode != nil {
				if s.ErrorCodes == nil {
					s.ErrorCodes = make(map[string]int)
				}
				s.ErrorCodes[*e.ErrorCode]++
			}
		}
		if e.Cached {
			cached++
		}
		totalMs += e.ResponseTimeMs
		samples = append(samples, e.ResponseTimeMs)
	}

	s.ErrorRate = float64(s.Errors) / float64(s.Total)
	s.CacheHitRate = float64(cached) / float64(s.Total)
	s.AvgMs = float64(totalMs) / float64(s.Total)
	s.P95Ms = P95(samples)
	return s
}

// Query reads persisted events for operator reporting
type Query struct {
	db *gorm.DB
}

// NewQuery creates a query over the analytics table
func NewQuery(db *gorm.DB) *Query {
	return &Query{db: db}
}

// Summary aggregates events of operation created in [from, to).
// An empty operation covers every operation type.
func (q *Query) Summary(ctx context.Context, operation string, from, to time.Time) (Summary, error) {
	if !to.After(from) {
		return Summary{}, fmt.Errorf("invalid window: %s is not after %s", to, from)
	}

	tx := q.db.WithContext(ctx).
		Model(&models.AnalyticsEvent{}).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC())
	if operation != "" {
		tx = tx.Where("operation_type = ?", operation)
	}

	var events []models.AnalyticsEvent
	if err := tx.Select("success", "response_time_ms", "cached", "error_code").Find(&events).Error; err != nil {
		return Summary{}, fmt.Errorf("failed to load analytics events: %w", err)
	}

	s := Summarize(events)
	s.Operation = operation
	s.From = from
	s.To = to
	return s, nil
}

// Operations lists the distinct operation types recorded in [from, to)
func (q *Query) Operations(ctx context.Context, from, to time.Time) ([]string, error) {
	var ops []string
	err := q.db.WithContext(ctx).
		Model(&models.AnalyticsEvent{}).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Distinct().
		Order("operation_type").
		Pluck("operation_type", &ops).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}
