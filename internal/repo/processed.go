// Package repo implements the data persistence layer for the consistency
// backbone, backed by GORM. This file provides the per-consumer
// exactly-once-effect gate over the processed_events table.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-platform-core/internal/domain"
)

// InsertProcessedEvent attempts the gate insert for (eventID, consumerName)
// with ON CONFLICT DO NOTHING. Zero rows affected means another delivery of
// the same event already passed the gate, reported as ErrDuplicate so the
// caller can return an idempotent no-op.
//
// Must be called on the transaction handle of the consumer's processing step:
// rolling that transaction back un-writes the gate and keeps the event
// eligible for redelivery.
func InsertProcessedEvent(tx *gorm.DB, tenantID, eventID, consumerName string) (*domain.ProcessedEvent, error) {
	rec := &domain.ProcessedEvent{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		EventID:      eventID,
		ConsumerName: consumerName,
		ProcessedAt:  time.Now().UTC(),
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "consumer_name"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicate
	}
	return rec, nil
}

// HasProcessedEvent reports whether the consumer already handled the event.
// Read-only variant used by the monitor and tests; the projector itself must
// go through InsertProcessedEvent so the check and the claim are atomic.
func HasProcessedEvent(db *gorm.DB, eventID, consumerName string) (bool, error) {
	var n int64
	err := db.Model(&domain.ProcessedEvent{}).
		Where("event_id = ? AND consumer_name = ?", eventID, consumerName).
		Count(&n).Error
	return n > 0, err
}
