// Package monitor implements the backlog/health monitor: a periodic probe
// over the outbox and processed-events state. A stalled relay or failing
// consumers show up here first, as growing pending counts or an aging oldest
// row, long before anyone notices stale aggregates, so both thresholds raise
// a high-severity alert independently.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-platform-core/internal/repo"
)

// Status values reported by the health probe.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
)

var (
	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_pending_events",
		Help: "Number of outbox rows not yet published.",
	})
	oldestAgeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest unpublished outbox row.",
	})
	published24hGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_published_24h",
		Help: "Outbox rows published in the last 24 hours.",
	})
	consumerLagGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "consumer_lag_seconds",
		Help: "Worst recent processing lag per consumer (processed_at - created_at).",
	}, []string{"consumer"})
)

func init() {
	prometheus.MustRegister(pendingGauge, oldestAgeGauge, published24hGauge, consumerLagGauge)
}

// Config holds probe cadence and alert thresholds.
type Config struct {
	// Interval is how often the probe runs.
	Interval time.Duration
	// PendingThreshold raises a warning when the pending count exceeds it.
	PendingThreshold int64
	// OldestAgeThreshold raises a warning when the oldest unpublished row is
	// older than it.
	OldestAgeThreshold time.Duration
	// Consumers lists consumer names to compute lag for.
	Consumers []string
}

// Health is the probe snapshot served to load balancers and ops tooling.
type Health struct {
	PendingCount         int64                  `json:"pendingCount"`
	OldestPendingAgeSecs float64                `json:"oldestPendingAgeSecs"`
	Published24h         int64                  `json:"published24h"`
	ByType               []repo.OutboxTypeStats `json:"byType,omitempty"`
	ConsumerLagSecs      map[string]float64     `json:"consumerLagSecs,omitempty"`
	Status               string                 `json:"status"`
	Alerts               []string               `json:"alerts,omitempty"`
	CheckedAt            time.Time              `json:"checkedAt"`
}

// Monitor runs the periodic probe and caches the latest snapshot.
type Monitor struct {
	db  *gorm.DB
	cfg Config
	log zerolog.Logger

	mu   sync.RWMutex
	last Health

	stopCh chan struct{}
	doneCh chan struct{}

	// now is swapped in tests.
	now func() time.Time
}

// New builds a monitor. Defaults: 30s interval, pending threshold 500,
// oldest-age threshold 10m.
func New(db *gorm.DB, cfg Config, log zerolog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.PendingThreshold <= 0 {
		cfg.PendingThreshold = 500
	}
	if cfg.OldestAgeThreshold <= 0 {
		cfg.OldestAgeThreshold = 10 * time.Minute
	}
	return &Monitor{
		db:     db,
		cfg:    cfg,
		log:    log.With().Str("component", "backlog-monitor").Logger(),
		last:   Health{Status: StatusOK},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start launches the probe loop; an immediate first probe runs before the
// first tick so /healthz is meaningful right after boot.
func (m *Monitor) Start(ctx context.Context) {
	go m.loop(ctx)
	m.log.Info().Dur("interval", m.cfg.Interval).Msg("monitor started")
}

// Stop shuts the loop down and waits for the in-flight probe.
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
	m.log.Info().Msg("monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.doneCh)

	m.Probe(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe computes one snapshot, updates metrics, and logs alerts when a
// threshold is crossed. Exported so tests and ops endpoints can force a run.
func (m *Monitor) Probe(ctx context.Context) Health {
	now := m.now()
	stats, err := repo.CollectOutboxStats(ctx, m.db, now)
	if err != nil {
		m.log.Error().Err(err).Msg("outbox stats probe failed")
		h := Health{Status: StatusWarning, Alerts: []string{"probe failed: " + err.Error()}, CheckedAt: now}
		m.setLast(h)
		return h
	}

	h := Health{
		PendingCount:         stats.PendingCount,
		OldestPendingAgeSecs: stats.OldestPendingAge.Seconds(),
		Published24h:         stats.Published24h,
		ByType:               stats.ByType,
		ConsumerLagSecs:      map[string]float64{},
		Status:               StatusOK,
		CheckedAt:            now,
	}

	for _, consumer := range m.cfg.Consumers {
		lag, err := repo.ConsumerLag(ctx, m.db, consumer, 100)
		if err != nil {
			m.log.Error().Err(err).Str("consumer", consumer).Msg("consumer lag probe failed")
			continue
		}
		h.ConsumerLagSecs[consumer] = lag.Seconds()
		consumerLagGauge.WithLabelValues(consumer).Set(lag.Seconds())
	}

	pendingGauge.Set(float64(stats.PendingCount))
	oldestAgeGauge.Set(stats.OldestPendingAge.Seconds())
	published24hGauge.Set(float64(stats.Published24h))

	// The two predicates alert independently: a large backlog with young
	// rows and a tiny backlog with one ancient row are both relay stalls.
	if stats.PendingCount > m.cfg.PendingThreshold {
		h.Alerts = append(h.Alerts, fmt.Sprintf(
			"pending outbox count %d exceeds threshold %d", stats.PendingCount, m.cfg.PendingThreshold))
	}
	if stats.OldestPendingAge > m.cfg.OldestAgeThreshold {
		h.Alerts = append(h.Alerts, fmt.Sprintf(
			"oldest pending outbox event is %s old, exceeds threshold %s",
			stats.OldestPendingAge.Round(time.Second), m.cfg.OldestAgeThreshold))
	}
	if len(h.Alerts) > 0 {
		h.Status = StatusWarning
		m.log.Error().
			Int64("pending", stats.PendingCount).
			Dur("oldest_age", stats.OldestPendingAge).
			Strs("alerts", h.Alerts).
			Msg("outbox backlog alert")
	}

	m.setLast(h)
	return h
}

// Health returns the most recent snapshot without touching the database.
func (m *Monitor) Health() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Monitor) setLast(h Health) {
	m.mu.Lock()
	m.last = h
	m.mu.Unlock()
}
