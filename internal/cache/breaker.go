// Package cache – circuit breaker wiring.
//
// The engine only consumes the BreakerProbe interface; this file provides the
// concrete gobreaker-backed implementation that origin-health monitoring
// feeds. Executing origin probes through the breaker is what opens and closes
// it; the engine just reads the state.
package cache

import (
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string
	// MaxRequests is the number of probes allowed through while half-open.
	MaxRequests uint32
	// Interval is the cyclic period for clearing failure counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// FailureThreshold opens the breaker after this many consecutive
	// failures. Values < 1 default to 5.
	FailureThreshold uint32
}

// Breaker adapts a gobreaker circuit breaker to the engine's BreakerProbe
// and exposes Execute for the origin-health path that trips it.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

// NewBreaker creates a breaker with the given configuration.
func NewBreaker(cfg BreakerConfig, log zerolog.Logger) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold < 1 {
		threshold = 5
	}
	lg := log.With().Str("component", "cache-breaker").Str("breaker", cfg.Name).Logger()
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("breaker state change")
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// Open reports whether the breaker currently rejects new work.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State returns the breaker state as a string for monitoring.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Execute runs fn through the breaker, feeding its success/failure counts.
// Origin-health probes and the actual origin calls both go through here.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}
