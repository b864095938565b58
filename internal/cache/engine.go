// Package cache implements the derived-state cache engine that sits in front
// of expensive reads (per-tenant entitlement and access configuration being
// the canonical callers). It protects a bounded connection pool from
// thundering-herd reloads via per-key single-flight coalescing, bounds each
// origin load with its own timeout, and degrades to a longer-lived stale copy
// when the origin is failing or its circuit breaker is open.
//
// Coalescing is strictly in-process: it collapses concurrent identical loads
// within one instance but does not coordinate across instances.
package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrLoadTimeout reports a load abandoned after exceeding the engine's
// dedicated load timeout. Waiters receive it only when no stale entry exists.
var ErrLoadTimeout = errors.New("cache load timed out")

var cacheRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Cache engine lookups by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(cacheRequests)
}

// Loader fetches the authoritative value for a key. The context carries the
// engine's load timeout; implementations must honor cancellation, because a
// load that overruns is abandoned and its result discarded.
type Loader func(ctx context.Context) (any, error)

// BreakerProbe is the origin-health input fed by a separate monitoring
// component. When it reports open, the engine prefers stale data over
// issuing new loads.
type BreakerProbe interface {
	Open() bool
}

// Config holds the engine's freshness and protection settings.
type Config struct {
	// TTL is the fresh lifetime of a stored value.
	TTL time.Duration
	// TTLJitter is the maximum random addition to TTL, spreading out the
	// expiry of keys written at the same moment.
	TTLJitter time.Duration
	// StaleTTL is the lifetime of the fallback copy; it outlives TTL so a
	// failing origin still has something to serve. Clamped to >= TTL.
	StaleTTL time.Duration
	// LoadTimeout bounds one origin load. It should be shorter than the
	// general request timeout and sized to protect the connection pool from
	// a stuck load.
	LoadTimeout time.Duration
}

type entry struct {
	value      any
	expiresAt  time.Time
	staleUntil time.Time
}

// Engine is the cache. All methods are safe for concurrent use.
type Engine struct {
	cfg     Config
	breaker BreakerProbe
	log     zerolog.Logger

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group

	// now is swapped in tests to control expiry.
	now func() time.Time
}

// New builds an engine. breaker may be nil when no origin-health signal is
// wired. Defaults: TTL 60s, StaleTTL 10m, LoadTimeout 2s.
func New(cfg Config, breaker BreakerProbe, log zerolog.Logger) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.StaleTTL < cfg.TTL {
		cfg.StaleTTL = 10 * time.Minute
		if cfg.StaleTTL < cfg.TTL {
			cfg.StaleTTL = cfg.TTL
		}
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 2 * time.Second
	}
	return &Engine{
		cfg:     cfg,
		breaker: breaker,
		log:     log.With().Str("component", "cache-engine").Logger(),
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the fresh value for key, if any.
func (e *Engine) Get(key string) (any, bool) {
	e.mu.RLock()
	ent, ok := e.entries[key]
	e.mu.RUnlock()
	if !ok || e.now().After(ent.expiresAt) {
		return nil, false
	}
	return ent.value, true
}

// GetStale returns the value for key as long as the stale copy is still
// alive, even when the fresh TTL has lapsed. Nothing staler than the stale
// deadline is ever served.
func (e *Engine) GetStale(key string) (any, bool) {
	e.mu.RLock()
	ent, ok := e.entries[key]
	e.mu.RUnlock()
	if !ok || e.now().After(ent.staleUntil) {
		return nil, false
	}
	return ent.value, true
}

// Set stores value with the given fresh TTL (the engine default when ttl <= 0)
// and refreshes the stale deadline.
func (e *Engine) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = e.cfg.TTL
	}
	now := e.now()
	e.mu.Lock()
	e.entries[key] = entry{
		value:      value,
		expiresAt:  now.Add(ttl),
		staleUntil: now.Add(e.cfg.StaleTTL),
	}
	e.mu.Unlock()
}

// Delete removes both the fresh and the stale copy. Write paths call this to
// bust derived state they have just invalidated.
func (e *Engine) Delete(key string) {
	e.mu.Lock()
	delete(e.entries, key)
	e.mu.Unlock()
	e.group.Forget(key)
}

// Len returns the number of stored entries (fresh or stale).
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}

// GetOrLoad returns the value for key, loading it at most once across all
// concurrent callers of this instance.
//
// Order of preference:
//  1. fresh cached value;
//  2. stale value when the breaker is open (degraded mode, logged); a load
//     is attempted only if no stale copy exists;
//  3. single-flight load with a dedicated timeout, re-checking the cache
//     after entering the flight;
//  4. on load failure or timeout, stale fallback; otherwise the error goes
//     to every waiter.
//
// Successful loads are stored with TTL plus random jitter and also refresh
// the stale copy. Nothing is cached for a failed or abandoned load.
func (e *Engine) GetOrLoad(ctx context.Context, key string, loader Loader) (any, error) {
	if v, ok := e.Get(key); ok {
		cacheRequests.WithLabelValues("fresh").Inc()
		return v, nil
	}

	if e.breaker != nil && e.breaker.Open() {
		if v, ok := e.GetStale(key); ok {
			cacheRequests.WithLabelValues("stale_breaker").Inc()
			e.log.Warn().Str("key", key).Msg("breaker open; serving stale cache entry")
			return v, nil
		}
		// No fallback available: a fresh load is the only option left.
		e.log.Warn().Str("key", key).Msg("breaker open and no stale entry; attempting load")
	}

	v, err, _ := e.group.Do(key, func() (any, error) {
		// Another flight may have populated the cache while this caller
		// waited to enter.
		if v, ok := e.Get(key); ok {
			return v, nil
		}
		v, err := e.load(ctx, key, loader)
		if err != nil {
			return nil, err
		}
		e.store(key, v)
		return v, nil
	})
	if err != nil {
		if v, ok := e.GetStale(key); ok {
			cacheRequests.WithLabelValues("stale_fallback").Inc()
			e.log.Warn().Err(err).Str("key", key).Msg("load failed; serving stale cache entry")
			return v, nil
		}
		cacheRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	cacheRequests.WithLabelValues("loaded").Inc()
	return v, nil
}

// load runs the loader under the engine's dedicated timeout. The timeout is
// detached from the caller's context: the result is shared by every waiter
// in the flight, so no single caller's cancellation may abort it.
func (e *Engine) load(ctx context.Context, key string, loader Loader) (any, error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.LoadTimeout)
	defer cancel()

	type result struct {
		v   any
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := loader(lctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-lctx.Done():
		// Abandon the load; a late result is discarded, never cached.
		return nil, fmt.Errorf("%w: %s", ErrLoadTimeout, key)
	}
}

// store writes a freshly loaded value with jittered TTL.
func (e *Engine) store(key string, value any) {
	ttl := e.cfg.TTL
	if e.cfg.TTLJitter > 0 {
		ttl += rand.N(e.cfg.TTLJitter)
	}
	e.Set(key, value, ttl)
}
