package transport

import (
	"net/http"
	"time"

	"github.com/okian/broutes/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithName sets the name used for breaker metrics and logs.
func WithName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// WithTimeout sets the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent sent when a request has none.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxIdleConns sets the idle connection pool size.
func WithMaxIdleConns(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxIdleConns = n
		}
	}
}

// WithRateLimit limits outgoing requests to rps with the given burst. A zero
// rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.rateRPS = rps
			c.rateBurst = max(burst, 1)
		}
	}
}

// WithCircuitBreaker opens the breaker after threshold consecutive failures
// and probes again after reset. A zero threshold disables the breaker.
func WithCircuitBreaker(threshold int, reset time.Duration) Option {
	return func(c *Client) {
		if threshold > 0 {
			c.breakerThreshold = threshold
			c.breakerReset = reset
		}
	}
}

// WithTracing wraps the transport with OpenTelemetry instrumentation.
func WithTracing(enabled bool) Option {
	return func(c *Client) {
		c.tracing = enabled
	}
}

// WithBaseTransport replaces the hardened default transport.
func WithBaseTransport(t *http.Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.base = t
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}
