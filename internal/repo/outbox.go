// Package repo implements the data persistence layer for the consistency
// backbone, backed by GORM. This file provides repository functions for the
// transactional outbox: staging rows inside a mutation's transaction, and the
// relay-side batch selection and publish bookkeeping.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-platform-core/internal/domain"
)

// StageOutboxEvents inserts one outbox row per draft with published_at NULL.
// It must be called on the transaction handle of the originating mutation so
// the rows exist if and only if the mutation commits. Drafts without an
// explicit EventID get a fresh UUID; EventIDs are never reused across
// logically distinct events.
func StageOutboxEvents(tx *gorm.DB, tenantID string, drafts []domain.EventDraft) ([]domain.OutboxEvent, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	rows := make([]domain.OutboxEvent, 0, len(drafts))
	for _, d := range drafts {
		payload, err := domain.EncodePayload(d.Payload)
		if err != nil {
			return nil, err
		}
		eventID := strings.TrimSpace(d.EventID)
		if eventID == "" {
			eventID = domain.NewEventID()
		}
		rows = append(rows, domain.OutboxEvent{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			EventType: d.EventType,
			EventID:   eventID,
			Payload:   payload,
			CreatedAt: now,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// PendingOutboxBatch returns up to limit unpublished rows, oldest first.
// Ordering is approximate only: concurrent relay workers and partial batch
// failures mean consumers must not rely on strict per-tenant order.
func PendingOutboxBatch(ctx context.Context, db *gorm.DB, limit int) ([]domain.OutboxEvent, error) {
	var out []domain.OutboxEvent
	q := db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// MarkOutboxPublished records delivery by setting published_at, guarding on
// published_at IS NULL so the NULL -> timestamp transition happens at most
// once even with competing relay workers. Returns ErrNotFound when the row is
// missing or already published.
func MarkOutboxPublished(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", id).
		Update("published_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOutboxEventByEventID fetches a single outbox row by its globally unique
// event id. Used by the monitor's lag join and by tests.
func GetOutboxEventByEventID(ctx context.Context, db *gorm.DB, eventID string) (*domain.OutboxEvent, error) {
	var ev domain.OutboxEvent
	if err := db.WithContext(ctx).Where("event_id = ?", eventID).First(&ev).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}
