// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// database, the outbox relay, the cache engine, the backlog monitor, logging,
// and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// RelayConfig defines outbox relay polling and throughput settings.
type RelayConfig struct {
	PollInterval time.Duration // RELAY_POLL_INTERVAL
	BatchSize    int           // RELAY_BATCH_SIZE
	PublishRPS   float64       // RELAY_PUBLISH_RPS (0 disables throttling)
	PublishBurst int           // RELAY_PUBLISH_BURST
}

// CacheConfig defines derived-state cache engine settings.
type CacheConfig struct {
	TTL         time.Duration // CACHE_TTL
	TTLJitter   time.Duration // CACHE_TTL_JITTER
	StaleTTL    time.Duration // CACHE_STALE_TTL
	LoadTimeout time.Duration // CACHE_LOAD_TIMEOUT
}

// BreakerConfig defines the cache origin circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold uint32        // BREAKER_FAILURE_THRESHOLD
	OpenTimeout      time.Duration // BREAKER_OPEN_TIMEOUT
	HalfOpenRequests uint32        // BREAKER_HALF_OPEN_REQUESTS
}

// MonitorConfig defines backlog/health monitor cadence and alert thresholds.
type MonitorConfig struct {
	Interval           time.Duration // MONITOR_INTERVAL
	PendingThreshold   int64         // MONITOR_PENDING_THRESHOLD
	OldestAgeThreshold time.Duration // MONITOR_OLDEST_AGE_THRESHOLD
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-platform-core")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server (operational surface)
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Storage
	DBPath       string // SQLite path
	MaxOpenConns int    // DB pool bound; the cache load timeout protects it

	// Backbone
	Relay   RelayConfig
	Cache   CacheConfig
	Breaker BreakerConfig
	Monitor MonitorConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Storage
		DBPath:       getenv("DB_PATH", "platform.db"),
		MaxOpenConns: getint("DB_MAX_OPEN_CONNS", 10),

		// Relay
		Relay: RelayConfig{
			PollInterval: getdur("RELAY_POLL_INTERVAL", time.Second),
			BatchSize:    getint("RELAY_BATCH_SIZE", 100),
			PublishRPS:   getfloat("RELAY_PUBLISH_RPS", 0),
			PublishBurst: getint("RELAY_PUBLISH_BURST", 1),
		},

		// Cache
		Cache: CacheConfig{
			TTL:         getdur("CACHE_TTL", time.Minute),
			TTLJitter:   getdur("CACHE_TTL_JITTER", 10*time.Second),
			StaleTTL:    getdur("CACHE_STALE_TTL", 10*time.Minute),
			LoadTimeout: getdur("CACHE_LOAD_TIMEOUT", 2*time.Second),
		},

		// Breaker
		Breaker: BreakerConfig{
			FailureThreshold: uint32(getint("BREAKER_FAILURE_THRESHOLD", 5)),
			OpenTimeout:      getdur("BREAKER_OPEN_TIMEOUT", 30*time.Second),
			HalfOpenRequests: uint32(getint("BREAKER_HALF_OPEN_REQUESTS", 1)),
		},

		// Monitor
		Monitor: MonitorConfig{
			Interval:           getdur("MONITOR_INTERVAL", 30*time.Second),
			PendingThreshold:   int64(getint("MONITOR_PENDING_THRESHOLD", 500)),
			OldestAgeThreshold: getdur("MONITOR_OLDEST_AGE_THRESHOLD", 10*time.Minute),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-platform-core"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MaxOpenConns < 1 {
		return cfg, errors.New("DB_MAX_OPEN_CONNS must be >= 1")
	}
	if cfg.Relay.PollInterval <= 0 {
		return cfg, errors.New("RELAY_POLL_INTERVAL must be > 0")
	}
	if cfg.Relay.BatchSize < 1 {
		return cfg, errors.New("RELAY_BATCH_SIZE must be >= 1")
	}
	if cfg.Relay.PublishRPS < 0 {
		return cfg, errors.New("RELAY_PUBLISH_RPS must be >= 0")
	}
	if cfg.Cache.TTL <= 0 || cfg.Cache.LoadTimeout <= 0 {
		return cfg, errors.New("CACHE_TTL and CACHE_LOAD_TIMEOUT must be > 0")
	}
	if cfg.Cache.TTLJitter < 0 {
		return cfg, errors.New("CACHE_TTL_JITTER must be >= 0")
	}
	if cfg.Cache.StaleTTL < cfg.Cache.TTL {
		return cfg, errors.New("CACHE_STALE_TTL must be >= CACHE_TTL")
	}
	if cfg.Monitor.Interval <= 0 {
		return cfg, errors.New("MONITOR_INTERVAL must be > 0")
	}
	if cfg.Monitor.PendingThreshold < 1 {
		return cfg, errors.New("MONITOR_PENDING_THRESHOLD must be >= 1")
	}
	if cfg.Monitor.OldestAgeThreshold <= 0 {
		return cfg, errors.New("MONITOR_OLDEST_AGE_THRESHOLD must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
