package repo

import (
	"errors"
	"testing"
)

func TestApplyAccountDailyDelta_InsertAndIncrement(t *testing.T) {
	db := newTestDB(t)

	if err := ApplyAccountDailyDelta(db, "t1", "acc-1", "2026-08-30", RevenueDelta{Revenue: 500, Fee: 50, TxCount: 1}); err != nil {
		t.Fatalf("first delta: %v", err)
	}

	row, err := GetAccountDailyRevenue(db, "t1", "acc-1", "2026-08-30")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Revenue != 500 || row.Fee != 50 || row.TxCount != 1 {
		t.Fatalf("row = %+v", row)
	}

	// Deltas accumulate; absolute values are never written.
	if err := ApplyAccountDailyDelta(db, "t1", "acc-1", "2026-08-30", RevenueDelta{Revenue: 150}); err != nil {
		t.Fatalf("second delta: %v", err)
	}
	if err := ApplyAccountDailyDelta(db, "t1", "acc-1", "2026-08-30", RevenueDelta{Revenue: -100, Fee: -10}); err != nil {
		t.Fatalf("negative delta: %v", err)
	}

	row, err = GetAccountDailyRevenue(db, "t1", "acc-1", "2026-08-30")
	if err != nil {
		t.Fatalf("get after deltas: %v", err)
	}
	if row.Revenue != 550 || row.Fee != 40 || row.TxCount != 1 {
		t.Fatalf("row after deltas = %+v", row)
	}
}

func TestApplyTenantDailyDelta_RollsUpAcrossAccounts(t *testing.T) {
	db := newTestDB(t)

	if err := ApplyTenantDailyDelta(db, "t1", "2026-08-30", RevenueDelta{Revenue: 500, Fee: 50, TxCount: 1}); err != nil {
		t.Fatalf("delta acc-1: %v", err)
	}
	if err := ApplyTenantDailyDelta(db, "t1", "2026-08-30", RevenueDelta{Revenue: 250, TxCount: 1}); err != nil {
		t.Fatalf("delta acc-2: %v", err)
	}

	row, err := GetTenantDailyRevenue(db, "t1", "2026-08-30")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Revenue != 750 || row.Fee != 50 || row.TxCount != 2 {
		t.Fatalf("rollup = %+v", row)
	}

	if _, err := GetTenantDailyRevenue(db, "t1", "2026-08-31"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other day, got %v", err)
	}
}

func TestRevenueDelta_IsZero(t *testing.T) {
	if !(RevenueDelta{}).IsZero() {
		t.Fatalf("zero delta not detected")
	}
	if (RevenueDelta{Fee: -1}).IsZero() {
		t.Fatalf("non-zero delta reported zero")
	}
}
