package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeProbe struct{ open bool }

func (p *fakeProbe) Open() bool { return p.open }

// newTestEngine returns an engine with a controllable clock.
func newTestEngine(t *testing.T, cfg Config, probe BreakerProbe) (*Engine, *time.Time) {
	t.Helper()
	e := New(cfg, probe, zerolog.Nop())
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return e, &now
}

func TestGetSet_FreshnessAndStaleWindow(t *testing.T) {
	e, now := newTestEngine(t, Config{TTL: time.Minute, StaleTTL: 10 * time.Minute}, nil)

	e.Set("tenant:t1:entitlements", "v1", 0)

	if v, ok := e.Get("tenant:t1:entitlements"); !ok || v != "v1" {
		t.Fatalf("fresh get = %v, %v", v, ok)
	}

	// Past the fresh TTL the value is gone for Get but alive for GetStale.
	*now = now.Add(2 * time.Minute)
	if _, ok := e.Get("tenant:t1:entitlements"); ok {
		t.Fatalf("expired entry served as fresh")
	}
	if v, ok := e.GetStale("tenant:t1:entitlements"); !ok || v != "v1" {
		t.Fatalf("stale get = %v, %v", v, ok)
	}

	// Nothing staler than the stale deadline is ever served.
	*now = now.Add(10 * time.Minute)
	if _, ok := e.GetStale("tenant:t1:entitlements"); ok {
		t.Fatalf("entry served beyond stale deadline")
	}
}

func TestDelete_RemovesBothCopies(t *testing.T) {
	e, _ := newTestEngine(t, Config{TTL: time.Minute}, nil)

	e.Set("k", "v", 0)
	if e.Len() != 1 {
		t.Fatalf("len = %d", e.Len())
	}
	e.Delete("k")
	if e.Len() != 0 {
		t.Fatalf("len after delete = %d", e.Len())
	}
	if _, ok := e.GetStale("k"); ok {
		t.Fatalf("stale copy survived delete")
	}
}

func TestGetOrLoad_CoalescesConcurrentCallers(t *testing.T) {
	e := New(Config{TTL: time.Minute, LoadTimeout: 2 * time.Second}, nil, zerolog.Nop())

	var loads int64
	release := make(chan struct{})
	loader := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&loads, 1)
		<-release
		return "loaded", nil
	}

	const callers = 50
	var wg sync.WaitGroup
	results := make([]any, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.GetOrLoad(context.Background(), "k", loader)
		}(i)
	}

	// Let every caller pile into the flight before the load finishes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt64(&loads); n != 1 {
		t.Fatalf("loader ran %d times for %d callers, want 1", n, callers)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil || results[i] != "loaded" {
			t.Fatalf("caller %d: %v, %v", i, results[i], errs[i])
		}
	}

	// The flight's result is cached; the next caller gets a fresh hit.
	v, err := e.GetOrLoad(context.Background(), "k", loader)
	if err != nil || v != "loaded" {
		t.Fatalf("after flight: %v, %v", v, err)
	}
	if n := atomic.LoadInt64(&loads); n != 1 {
		t.Fatalf("fresh hit triggered a load")
	}
}

func TestGetOrLoad_BreakerOpenServesStale(t *testing.T) {
	probe := &fakeProbe{}
	e, now := newTestEngine(t, Config{TTL: time.Minute, StaleTTL: 10 * time.Minute}, probe)

	e.Set("k", "cached", 0)
	*now = now.Add(2 * time.Minute) // fresh copy expired, stale alive
	probe.open = true

	loader := func(ctx context.Context) (any, error) {
		t.Fatalf("loader must not run while breaker is open and stale data exists")
		return nil, nil
	}
	v, err := e.GetOrLoad(context.Background(), "k", loader)
	if err != nil || v != "cached" {
		t.Fatalf("got %v, %v; want stale value", v, err)
	}
}

func TestGetOrLoad_BreakerOpenWithoutStaleAttemptsLoad(t *testing.T) {
	probe := &fakeProbe{open: true}
	e, _ := newTestEngine(t, Config{TTL: time.Minute, LoadTimeout: time.Second}, probe)

	var loads int64
	v, err := e.GetOrLoad(context.Background(), "k", func(ctx context.Context) (any, error) {
		atomic.AddInt64(&loads, 1)
		return "fresh", nil
	})
	if err != nil || v != "fresh" {
		t.Fatalf("got %v, %v", v, err)
	}
	if loads != 1 {
		t.Fatalf("loads = %d", loads)
	}
}

func TestGetOrLoad_TimeoutFallsBackToStale(t *testing.T) {
	e, now := newTestEngine(t, Config{TTL: time.Minute, StaleTTL: 10 * time.Minute, LoadTimeout: 20 * time.Millisecond}, nil)

	e.Set("k", "cached", 0)
	*now = now.Add(2 * time.Minute)

	slow := func(ctx context.Context) (any, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	v, err := e.GetOrLoad(context.Background(), "k", slow)
	if err != nil || v != "cached" {
		t.Fatalf("got %v, %v; want stale fallback", v, err)
	}

	// The abandoned result must never surface as a fresh value.
	if _, ok := e.Get("k"); ok {
		t.Fatalf("abandoned load was cached")
	}
}

func TestGetOrLoad_TimeoutWithoutStaleIsAnError(t *testing.T) {
	e, _ := newTestEngine(t, Config{TTL: time.Minute, LoadTimeout: 20 * time.Millisecond}, nil)

	_, err := e.GetOrLoad(context.Background(), "k", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, ErrLoadTimeout) {
		t.Fatalf("expected ErrLoadTimeout, got %v", err)
	}
	if e.Len() != 0 {
		t.Fatalf("failed load left an entry behind")
	}
}

func TestGetOrLoad_LoadErrorFallsBackToStaleOrPropagates(t *testing.T) {
	e, now := newTestEngine(t, Config{TTL: time.Minute, StaleTTL: 10 * time.Minute, LoadTimeout: time.Second}, nil)

	boom := errors.New("origin down")
	failing := func(ctx context.Context) (any, error) { return nil, boom }

	// No stale copy: the error reaches the caller.
	if _, err := e.GetOrLoad(context.Background(), "k", failing); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}

	// With a stale copy the same failure degrades instead.
	e.Set("k", "cached", 0)
	*now = now.Add(2 * time.Minute)
	v, err := e.GetOrLoad(context.Background(), "k", failing)
	if err != nil || v != "cached" {
		t.Fatalf("got %v, %v; want stale fallback", v, err)
	}
}

func TestStore_JitterStaysWithinBounds(t *testing.T) {
	e, now := newTestEngine(t, Config{TTL: time.Minute, TTLJitter: 10 * time.Second, StaleTTL: 10 * time.Minute}, nil)

	for i := 0; i < 20; i++ {
		e.store("k", "v")
		e.mu.RLock()
		ent := e.entries["k"]
		e.mu.RUnlock()

		ttl := ent.expiresAt.Sub(*now)
		if ttl < time.Minute || ttl > time.Minute+10*time.Second {
			t.Fatalf("jittered ttl %s out of bounds", ttl)
		}
	}
}
