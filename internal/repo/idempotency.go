// Package repo implements the data persistence layer for the consistency
// backbone, backed by GORM. This file provides repository helpers for the
// idempotency ledger used to implement safe-retry semantics for client writes.
package repo

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-platform-core/internal/domain"
)

// CheckIdempotency returns the prior record for the dedup triple, or
// ErrNotFound. It must run on the same transaction handle as the guarded
// mutation; it reads with normal row semantics and takes no extra locks.
func CheckIdempotency(db *gorm.DB, tenantID, clientRequestID, operation string) (*domain.IdempotencyRecord, error) {
	if strings.TrimSpace(clientRequestID) == "" {
		return nil, ErrNotFound
	}
	var rec domain.IdempotencyRecord
	err := db.
		Where("tenant_id = ? AND client_request_id = ? AND operation_name = ?", tenantID, clientRequestID, operation).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveIdempotency inserts the result snapshot under the unique triple and
// returns ErrDuplicate on a unique violation. A duplicate here means a
// concurrent request won the race after both observed no prior record; the
// caller must roll back its own effects and re-fetch the winner's result.
func SaveIdempotency(db *gorm.DB, tenantID, clientRequestID, operation, resultSnapshot string) (*domain.IdempotencyRecord, error) {
	rec := &domain.IdempotencyRecord{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		ClientRequestID: clientRequestID,
		OperationName:   operation,
		ResultSnapshot:  resultSnapshot,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.Create(rec).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
