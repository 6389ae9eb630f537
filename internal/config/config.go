// Package config defines the broutes configuration and its loading layers.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// RoutesFile is the default route catalog path.
	RoutesFile string `koanf:"routes_file"`

	// BaseURL overrides the catalog base URL when set.
	BaseURL string `koanf:"base_url"`

	// TimeoutMS is the default per-request timeout.
	TimeoutMS int `koanf:"timeout_ms"`

	// UserAgent is sent when a request sets none.
	UserAgent string `koanf:"user_agent"`

	// MaxIdleConns sizes the transport connection pool.
	MaxIdleConns int `koanf:"max_idle_conns"`

	// RateLimitRPS and RateLimitBurst throttle outgoing requests. Zero disables.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// BreakerThreshold opens the circuit after that many consecutive failures.
	// Zero disables the breaker.
	BreakerThreshold int `koanf:"breaker_threshold"`
	BreakerResetMS   int `koanf:"breaker_reset_ms"`

	// WorkerCount sets the number of plan workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets the size of the job id deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MetricsAddr serves health, metrics and run stats when set, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`

	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	TracingEndpoint   string  `koanf:"tracing_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
}

// New returns a Config with defaults. The context is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		RoutesFile:        "routes.yaml",
		TimeoutMS:         30_000,
		UserAgent:         "broutes",
		MaxIdleConns:      64,
		RateLimitBurst:    1,
		BreakerResetMS:    30_000,
		WorkerCount:       runtime.NumCPU(),
		QueueSize:         1_000,
		DedupeSize:        10_000,
		TracingExporter:   "otlp",
		TracingEndpoint:   "localhost:4318",
		TracingSampleRate: 1.0,
	}
}

// Timeout returns TimeoutMS as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// BreakerReset returns BreakerResetMS as a duration.
func (c *Config) BreakerReset() time.Duration {
	return time.Duration(c.BreakerResetMS) * time.Millisecond
}
