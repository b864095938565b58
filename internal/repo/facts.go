// Package repo implements the data persistence layer for the consistency
// backbone, backed by GORM. This file provides repository functions for
// upstream fact rows: the last applied absolute values per aggregated source
// transaction, which delta computation diffs against.
package repo

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-platform-core/internal/domain"
)

// GetRevenueFact returns the fact row for (tenantID, sourceID) or ErrNotFound.
func GetRevenueFact(tx *gorm.DB, tenantID, sourceID string) (*domain.RevenueFact, error) {
	var f domain.RevenueFact
	err := tx.Where("tenant_id = ? AND source_id = ?", tenantID, sourceID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// UpsertRevenueFact writes the new absolute values (and version) for the
// source transaction, inserting the row when it does not exist yet. The next
// correction for the same source computes its deltas against these values,
// not the original ones.
func UpsertRevenueFact(tx *gorm.DB, tenantID string, p domain.RevenuePostedPayload) error {
	now := time.Now().UTC()
	f := &domain.RevenueFact{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		SourceID:  p.SourceID,
		AccountID: p.AccountID,
		Day:       p.Day,
		Amount:    p.Amount,
		Fee:       p.Fee,
		Version:   p.Version,
		UpdatedAt: now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "source_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"account_id": p.AccountID,
			"day":        p.Day,
			"amount":     p.Amount,
			"fee":        p.Fee,
			"version":    p.Version,
			"updated_at": now,
		}),
	}).Create(f).Error
}
