package repo

import (
	"errors"
	"testing"
)

func TestInsertProcessedEvent_GateConflict(t *testing.T) {
	db := newTestDB(t)

	if _, err := InsertProcessedEvent(db, "t1", "ev-1", "revenue-projector"); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// Second delivery of the same event to the same consumer loses the gate.
	if _, err := InsertProcessedEvent(db, "t1", "ev-1", "revenue-projector"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// A different consumer holds its own gate for the same event.
	if _, err := InsertProcessedEvent(db, "t1", "ev-1", "audit-trail"); err != nil {
		t.Fatalf("other consumer: %v", err)
	}
	// And the same consumer passes for a different event.
	if _, err := InsertProcessedEvent(db, "t1", "ev-2", "revenue-projector"); err != nil {
		t.Fatalf("other event: %v", err)
	}
}

func TestHasProcessedEvent(t *testing.T) {
	db := newTestDB(t)

	ok, err := HasProcessedEvent(db, "ev-1", "revenue-projector")
	if err != nil || ok {
		t.Fatalf("expected not processed, got ok=%v err=%v", ok, err)
	}

	if _, err := InsertProcessedEvent(db, "t1", "ev-1", "revenue-projector"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err = HasProcessedEvent(db, "ev-1", "revenue-projector")
	if err != nil || !ok {
		t.Fatalf("expected processed, got ok=%v err=%v", ok, err)
	}
}
