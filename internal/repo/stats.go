// Package repo implements the data persistence layer for the consistency
// backbone, backed by GORM. This file provides the aggregate queries the
// backlog/health monitor runs: pending outbox counts, oldest-pending age,
// per-event-type breakdowns, and consumer lag.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-platform-core/internal/domain"
)

// OutboxTypeStats is the published/pending split for one event type.
type OutboxTypeStats struct {
	EventType string `json:"event_type"`
	Pending   int64  `json:"pending"`
	Published int64  `json:"published"`
}

// OutboxStats is a point-in-time snapshot of outbox health.
type OutboxStats struct {
	PendingCount     int64
	OldestPendingAge time.Duration
	Published24h     int64
	ByType           []OutboxTypeStats
}

// CollectOutboxStats computes the monitor's outbox snapshot with a handful of
// lightweight queries. now is injected so probes are deterministic in tests.
func CollectOutboxStats(ctx context.Context, db *gorm.DB, now time.Time) (*OutboxStats, error) {
	var stats OutboxStats

	if err := db.WithContext(ctx).Model(&domain.OutboxEvent{}).
		Where("published_at IS NULL").
		Count(&stats.PendingCount).Error; err != nil {
		return nil, err
	}

	if stats.PendingCount > 0 {
		// Oldest unpublished row (avoid MIN() -> TEXT in SQLite).
		var row struct {
			CreatedAt time.Time
		}
		if err := db.WithContext(ctx).Model(&domain.OutboxEvent{}).
			Select("created_at").
			Where("published_at IS NULL").
			Order("created_at ASC").
			Limit(1).
			Scan(&row).Error; err != nil {
			return nil, err
		}
		if age := now.Sub(row.CreatedAt); age > 0 {
			stats.OldestPendingAge = age
		}
	}

	if err := db.WithContext(ctx).Model(&domain.OutboxEvent{}).
		Where("published_at > ?", now.Add(-24*time.Hour)).
		Count(&stats.Published24h).Error; err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).Model(&domain.OutboxEvent{}).
		Select(
			"event_type",
			"SUM(CASE WHEN published_at IS NULL THEN 1 ELSE 0 END) AS pending",
			"SUM(CASE WHEN published_at IS NOT NULL THEN 1 ELSE 0 END) AS published",
		).
		Group("event_type").
		Order("event_type ASC").
		Scan(&stats.ByType).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}

// ConsumerLag returns the worst observed processing lag for a consumer over
// its most recent completions: processed_at minus the outbox row's created_at,
// joined via event_id. Zero lag with a nil error means the consumer has no
// processed events yet. The duration math runs in Go so the query stays
// driver-agnostic.
func ConsumerLag(ctx context.Context, db *gorm.DB, consumerName string, sample int) (time.Duration, error) {
	if sample <= 0 {
		sample = 100
	}
	var rows []struct {
		CreatedAt   time.Time
		ProcessedAt time.Time
	}
	err := db.WithContext(ctx).
		Table("processed_events").
		Select("outbox_events.created_at AS created_at", "processed_events.processed_at AS processed_at").
		Joins("JOIN outbox_events ON outbox_events.event_id = processed_events.event_id").
		Where("processed_events.consumer_name = ?", consumerName).
		Order("processed_events.processed_at DESC").
		Limit(sample).
		Scan(&rows).Error
	if err != nil {
		return 0, err
	}
	var worst time.Duration
	for _, r := range rows {
		if lag := r.ProcessedAt.Sub(r.CreatedAt); lag > worst {
			worst = lag
		}
	}
	return worst, nil
}
