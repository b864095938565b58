package repo

import (
	"errors"
	"testing"

	"github.com/tbourn/go-platform-core/internal/domain"
)

func TestUpsertRevenueFact_InsertThenAdvance(t *testing.T) {
	db := newTestDB(t)

	if _, err := GetRevenueFact(db, "t1", "src-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before insert, got %v", err)
	}

	posted := domain.RevenuePostedPayload{
		SourceID: "src-1", AccountID: "acc-1", Day: "2026-08-30",
		Amount: 500, Fee: 50, Version: 1,
	}
	if err := UpsertRevenueFact(db, "t1", posted); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := GetRevenueFact(db, "t1", "src-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 500 || got.Fee != 50 || got.Version != 1 {
		t.Fatalf("fact = %+v", got)
	}

	// A correction moves the row to the new absolute values and version.
	corrected := posted
	corrected.Amount = 650
	corrected.Version = 2
	if err := UpsertRevenueFact(db, "t1", corrected); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err = GetRevenueFact(db, "t1", "src-1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Amount != 650 || got.Version != 2 {
		t.Fatalf("fact not advanced: %+v", got)
	}

	var n int64
	if err := db.Model(&domain.RevenueFact{}).Count(&n).Error; err != nil || n != 1 {
		t.Fatalf("expected single fact row, got n=%d err=%v", n, err)
	}
}

func TestGetRevenueFact_TenantScoped(t *testing.T) {
	db := newTestDB(t)

	p := domain.RevenuePostedPayload{
		SourceID: "src-1", AccountID: "acc-1", Day: "2026-08-30",
		Amount: 100, Fee: 0, Version: 1,
	}
	if err := UpsertRevenueFact(db, "t1", p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := GetRevenueFact(db, "t2", "src-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fact leaked across tenants: %v", err)
	}
}
