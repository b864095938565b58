// Package repo implements the data persistence layer for the consistency
// backbone, backed by GORM. This file centralizes delta application to the
// projected aggregates: an atomic upsert-with-increment per aggregate table.
// Aggregates are never overwritten with absolute values; only deltas are
// added, so replays and corrections converge.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-platform-core/internal/domain"
)

// RevenueDelta is the change applied to one or more aggregate rows.
// TxCount is 1 when the source transaction is first seen, 0 on corrections.
type RevenueDelta struct {
	Revenue int64
	Fee     int64
	TxCount int64
}

// IsZero reports whether applying the delta would be a no-op.
func (d RevenueDelta) IsZero() bool {
	return d.Revenue == 0 && d.Fee == 0 && d.TxCount == 0
}

// ApplyAccountDailyDelta increments the (tenant, account, day) aggregate by
// the delta, inserting the row with the delta as initial value when absent.
func ApplyAccountDailyDelta(tx *gorm.DB, tenantID, accountID, day string, d RevenueDelta) error {
	now := time.Now().UTC()
	row := &domain.AccountDailyRevenue{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AccountID: accountID,
		Day:       day,
		Revenue:   d.Revenue,
		Fee:       d.Fee,
		TxCount:   d.TxCount,
		UpdatedAt: now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "account_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"revenue":    gorm.Expr("revenue + ?", d.Revenue),
			"fee":        gorm.Expr("fee + ?", d.Fee),
			"tx_count":   gorm.Expr("tx_count + ?", d.TxCount),
			"updated_at": now,
		}),
	}).Create(row).Error
}

// ApplyTenantDailyDelta fans the same delta out to the (tenant, day) rollup.
func ApplyTenantDailyDelta(tx *gorm.DB, tenantID, day string, d RevenueDelta) error {
	now := time.Now().UTC()
	row := &domain.TenantDailyRevenue{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Day:       day,
		Revenue:   d.Revenue,
		Fee:       d.Fee,
		TxCount:   d.TxCount,
		UpdatedAt: now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"revenue":    gorm.Expr("revenue + ?", d.Revenue),
			"fee":        gorm.Expr("fee + ?", d.Fee),
			"tx_count":   gorm.Expr("tx_count + ?", d.TxCount),
			"updated_at": now,
		}),
	}).Create(row).Error
}

// GetAccountDailyRevenue fetches one primary aggregate row, or ErrNotFound.
func GetAccountDailyRevenue(db *gorm.DB, tenantID, accountID, day string) (*domain.AccountDailyRevenue, error) {
	var row domain.AccountDailyRevenue
	err := db.Where("tenant_id = ? AND account_id = ? AND day = ?", tenantID, accountID, day).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetTenantDailyRevenue fetches one rollup aggregate row, or ErrNotFound.
func GetTenantDailyRevenue(db *gorm.DB, tenantID, day string) (*domain.TenantDailyRevenue, error) {
	var row domain.TenantDailyRevenue
	err := db.Where("tenant_id = ? AND day = ?", tenantID, day).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
