// Package services – Relay
//
// This file implements the outbox relay: a polling loop, decoupled from
// request handling, that selects bounded batches of unpublished outbox rows
// (oldest first), hands them to the event transport, and stamps published_at
// on success. Failed deliveries simply stay pending for the next pass, which
// gives at-least-once delivery; consumers own deduplication.
package services

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-platform-core/internal/domain"
	"github.com/tbourn/go-platform-core/internal/repo"
)

// Metadata keys set on every relayed message.
const (
	MetaTenantID  = "tenant_id"
	MetaEventType = "event_type"
	MetaOutboxID  = "outbox_id"
)

var (
	// relayPublished counts successfully delivered outbox rows by event type.
	relayPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_relay_published_total",
			Help: "Total number of outbox events delivered to the transport.",
		},
		[]string{"event_type"},
	)

	// relayFailures counts delivery attempts that left the row pending.
	relayFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_relay_failures_total",
			Help: "Total number of failed outbox delivery attempts.",
		},
		[]string{"event_type"},
	)
)

func init() {
	prometheus.MustRegister(relayPublished, relayFailures)
}

// RelayConfig holds the relay's polling and throughput settings.
type RelayConfig struct {
	// PollInterval is how often pending rows are selected. Independent of
	// request latency; request handlers never block on the relay.
	PollInterval time.Duration
	// BatchSize bounds how many rows one pass may select.
	BatchSize int
	// PublishRPS throttles transport publishes (tokens per second).
	// Zero or negative disables throttling.
	PublishRPS float64
	// PublishBurst is the limiter bucket size; values < 1 default to 1.
	PublishBurst int
}

// Relay publishes staged outbox events to a watermill transport.
//
// Multiple relay instances may run concurrently: the guarded published_at
// update makes the NULL -> timestamp transition single-winner, at the cost of
// occasional duplicate deliveries (accepted; consumers gate on event id).
// Ordering is approximate oldest-first only; no per-tenant ordering is
// promised.
type Relay struct {
	db        *gorm.DB
	publisher message.Publisher
	cfg       RelayConfig
	limiter   *rate.Limiter
	log       zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRelay builds a relay. Defaults: 1s poll interval, batch size 100.
func NewRelay(db *gorm.DB, publisher message.Publisher, cfg RelayConfig, log zerolog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	var limiter *rate.Limiter
	if cfg.PublishRPS > 0 {
		burst := cfg.PublishBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.PublishRPS), burst)
	}
	return &Relay{
		db:        db,
		publisher: publisher,
		cfg:       cfg,
		limiter:   limiter,
		log:       log.With().Str("component", "outbox-relay").Logger(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the polling loop. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	go r.loop(ctx)
	r.log.Info().
		Dur("poll_interval", r.cfg.PollInterval).
		Int("batch_size", r.cfg.BatchSize).
		Msg("relay started")
}

// Stop shuts the loop down and waits for the in-flight pass to finish.
func (r *Relay) Stop() {
	close(r.stopCh)
	<-r.doneCh
	r.log.Info().Msg("relay stopped")
}

func (r *Relay) loop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RelayPending(ctx)
		}
	}
}

// RelayPending performs one pass: select a pending batch and deliver each row.
// Exported so tests and operational tooling can drive passes directly.
// Returns the number of rows successfully published.
func (r *Relay) RelayPending(ctx context.Context) int {
	batch, err := repo.PendingOutboxBatch(ctx, r.db, r.cfg.BatchSize)
	if err != nil {
		r.log.Error().Err(err).Msg("select pending outbox batch")
		return 0
	}
	published := 0
	for i := range batch {
		if err := r.deliver(ctx, &batch[i]); err != nil {
			relayFailures.WithLabelValues(batch[i].EventType).Inc()
			r.log.Warn().Err(err).
				Str("event_id", batch[i].EventID).
				Str("event_type", batch[i].EventType).
				Msg("delivery failed; row stays pending")
			continue
		}
		relayPublished.WithLabelValues(batch[i].EventType).Inc()
		published++
	}
	if published > 0 {
		r.log.Debug().Int("published", published).Int("batch", len(batch)).Msg("relay pass")
	}
	return published
}

// deliver publishes one row (topic = event type) and stamps published_at.
func (r *Relay) deliver(ctx context.Context, ev *domain.OutboxEvent) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	msg := message.NewMessage(ev.EventID, []byte(ev.Payload))
	msg.Metadata.Set(MetaTenantID, ev.TenantID)
	msg.Metadata.Set(MetaEventType, ev.EventType)
	msg.Metadata.Set(MetaOutboxID, ev.ID)

	if err := r.publisher.Publish(ev.EventType, msg); err != nil {
		return err
	}

	// Losing this race to a concurrent relay worker only means the event was
	// delivered twice; the consumer gate absorbs it.
	if err := repo.MarkOutboxPublished(ctx, r.db, ev.ID, time.Now().UTC()); err != nil && err != repo.ErrNotFound {
		return err
	}
	return nil
}
