// Package services – RevenueProjector
//
// This file implements the consumer-side exactly-once-effect pipeline: per
// event, one transaction that claims the (event_id, consumer) gate, validates
// the payload, diffs the new absolute values against the upstream fact row,
// writes the fact row forward, and applies the resulting deltas to the
// projected aggregates. A failure anywhere rolls back everything including
// the gate claim, so the event stays eligible for redelivery.
package services

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-platform-core/internal/domain"
	"github.com/tbourn/go-platform-core/internal/repo"
)

// RevenueConsumerName identifies the revenue projector in processed_events.
const RevenueConsumerName = "revenue-projector"

var projectorEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "projector_events_total",
		Help: "Events seen by consumers, by consumer name and outcome.",
	},
	[]string{"consumer", "outcome"},
)

func init() {
	prometheus.MustRegister(projectorEvents)
}

// InboundEvent is one delivered event as seen by a consumer, decoupled from
// the transport's message type.
type InboundEvent struct {
	EventID   string
	TenantID  string
	EventType string
	Payload   []byte
}

// RevenueProjector folds revenue.posted / revenue.corrected events into the
// account-daily and tenant-daily aggregates. It is safe under concurrent and
// duplicate delivery: correctness rests on the processed-events gate insert,
// not on any external lock.
type RevenueProjector struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// NewRevenueProjector returns a projector bound to db.
func NewRevenueProjector(db *gorm.DB, log zerolog.Logger) *RevenueProjector {
	return &RevenueProjector{
		DB:  db,
		Log: log.With().Str("component", "revenue-projector").Logger(),
	}
}

// ConsumerName returns the name recorded in processed_events.
func (p *RevenueProjector) ConsumerName() string { return RevenueConsumerName }

// Topics lists the event types this consumer subscribes to.
func (p *RevenueProjector) Topics() []string {
	return []string{domain.EventRevenuePosted, domain.EventRevenueCorrected}
}

// Handle processes one delivery.
//
// Outcomes:
//   - nil on success, on duplicate delivery (gate conflict), and on
//     permanently malformed payloads; all three must be Acked by the
//     transport and never redelivered.
//   - a non-nil error only for transient failures; the transaction has been
//     rolled back (gate included) and the event should be redelivered.
func (p *RevenueProjector) Handle(ctx context.Context, ev InboundEvent) error {
	switch ev.EventType {
	case domain.EventRevenuePosted, domain.EventRevenueCorrected:
	default:
		// Not ours; tell the transport to stop redelivering.
		p.Log.Warn().Str("event_type", ev.EventType).Str("event_id", ev.EventID).Msg("unknown event type")
		projectorEvents.WithLabelValues(RevenueConsumerName, "unknown_type").Inc()
		return nil
	}

	outcome := "applied"
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) Gate: claim (event_id, consumer) atomically.
		if _, err := repo.InsertProcessedEvent(tx, ev.TenantID, ev.EventID, RevenueConsumerName); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return errAlreadyProcessed
			}
			return err
		}

		// 2) Validate. Malformed events commit the gate with no effects:
		// they are permanent, and redelivering them would only log again.
		payload, err := domain.DecodeRevenuePayload(ev.Payload)
		if err != nil {
			p.Log.Warn().Err(err).
				Str("event_id", ev.EventID).
				Str("event_type", ev.EventType).
				Msg("malformed payload; event skipped")
			outcome = "malformed"
			return nil
		}

		// 3) Last applied absolute values for this source transaction.
		var last domain.RevenueFact
		if prior, err := repo.GetRevenueFact(tx, ev.TenantID, payload.SourceID); err == nil {
			last = *prior
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		// A stale event (lower version than already applied) has nothing to
		// contribute; the fact row already reflects a newer correction.
		if last.Version >= payload.Version {
			p.Log.Debug().
				Str("event_id", ev.EventID).
				Int64("event_version", payload.Version).
				Int64("applied_version", last.Version).
				Msg("stale version; event skipped")
			outcome = "stale"
			return nil
		}

		// 4) Deltas against the last applied values, never the raw amounts.
		delta := repo.RevenueDelta{
			Revenue: payload.Amount - last.Amount,
			Fee:     payload.Fee - last.Fee,
		}
		if last.Version == 0 {
			delta.TxCount = 1
		}

		// 5) Move the fact row forward so the next correction diffs against
		// these values.
		if err := repo.UpsertRevenueFact(tx, ev.TenantID, payload); err != nil {
			return err
		}

		if delta.IsZero() {
			outcome = "noop"
			return nil
		}

		// 6) Apply deltas to the primary aggregate.
		if err := repo.ApplyAccountDailyDelta(tx, ev.TenantID, payload.AccountID, payload.Day, delta); err != nil {
			return err
		}

		// 7) Fan the same deltas out to the tenant rollup.
		return repo.ApplyTenantDailyDelta(tx, ev.TenantID, payload.Day, delta)
	})

	if errors.Is(err, errAlreadyProcessed) {
		projectorEvents.WithLabelValues(RevenueConsumerName, "duplicate").Inc()
		p.Log.Debug().Str("event_id", ev.EventID).Msg("duplicate delivery; no-op")
		return nil
	}
	if err != nil {
		projectorEvents.WithLabelValues(RevenueConsumerName, "error").Inc()
		p.Log.Error().Err(err).Str("event_id", ev.EventID).Msg("projection failed; will retry on redelivery")
		return err
	}
	projectorEvents.WithLabelValues(RevenueConsumerName, outcome).Inc()
	return nil
}
