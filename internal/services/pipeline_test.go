package services

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-platform-core/internal/domain"
	"github.com/tbourn/go-platform-core/internal/repo"
)

// End to end: a client mutation commits its write together with a staged
// event, the relay hands the event to the transport, and the projector folds
// it into the aggregates exactly once.
func TestPipeline_MutationToAggregate(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	projector := NewRevenueProjector(db, zerolog.Nop())
	consumer := NewConsumer(pubsub, projector, zerolog.Nop())
	go func() { _ = consumer.Run(ctx) }()

	runner := NewMutationRunner(db)
	out, err := runner.Execute(ctx, MutationRequest{
		TenantID: "t1", ClientRequestID: "req-1", Operation: "invoice.post",
	}, func(tx *gorm.DB) (any, []domain.EventDraft, error) {
		return invoiceResult{InvoiceID: "inv-1", Total: 500}, []domain.EventDraft{{
			EventType: domain.EventRevenuePosted,
			Payload: domain.RevenuePostedPayload{
				SourceID: "src-1", AccountID: "acc-1", Day: "2026-08-30",
				Amount: 500, Fee: 50, Version: 1,
			},
		}}, nil
	})
	if err != nil || out.Replayed {
		t.Fatalf("execute: out=%+v err=%v", out, err)
	}

	relay := NewRelay(db, pubsub, RelayConfig{BatchSize: 10}, zerolog.Nop())
	if got := relay.RelayPending(ctx); got != 1 {
		t.Fatalf("relay published %d rows, want 1", got)
	}

	// The projector runs asynchronously behind the transport.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := repo.GetAccountDailyRevenue(db, "t1", "acc-1", "2026-08-30"); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	acct, err := repo.GetAccountDailyRevenue(db, "t1", "acc-1", "2026-08-30")
	if err != nil {
		t.Fatalf("aggregate never materialized: %v", err)
	}
	if acct.Revenue != 500 || acct.Fee != 50 || acct.TxCount != 1 {
		t.Fatalf("aggregate = %+v", acct)
	}

	// A client retry replays the ledger without staging a second event.
	retry, err := runner.Execute(ctx, MutationRequest{
		TenantID: "t1", ClientRequestID: "req-1", Operation: "invoice.post",
	}, func(tx *gorm.DB) (any, []domain.EventDraft, error) {
		t.Fatalf("body must not run on replay")
		return nil, nil, nil
	})
	if err != nil || !retry.Replayed {
		t.Fatalf("retry: out=%+v err=%v", retry, err)
	}
	pending, err := repo.PendingOutboxBatch(ctx, db, 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending after retry = %d err=%v", len(pending), err)
	}

	// A duplicate relay pass cannot double-apply either: the rows are
	// stamped and the consumer gate holds.
	if got := relay.RelayPending(ctx); got != 0 {
		t.Fatalf("second relay pass published %d rows", got)
	}
	acct, err = repo.GetAccountDailyRevenue(db, "t1", "acc-1", "2026-08-30")
	if err != nil || acct.Revenue != 500 || acct.TxCount != 1 {
		t.Fatalf("aggregate drifted: %+v err=%v", acct, err)
	}
}
