// Package transport sends prepared requests over a hardened HTTP client with
// optional rate limiting, circuit breaking and tracing. It never retries.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/meta"
	"github.com/okian/broutes/pkg/metrics"
	"github.com/okian/broutes/pkg/response"
)

const (
	defaultName                  = "transport"
	defaultClientTimeout         = 30 * time.Second
	defaultDialTimeout           = 5 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 64
	defaultMaxIdleConnsPerHost   = 16
	defaultUserAgent             = "broutes"
)

// Client sends meta.Prepared requests.
type Client struct {
	name             string
	timeout          time.Duration
	userAgent        string
	maxIdleConns     int
	rateRPS          float64
	rateBurst        int
	breakerThreshold int
	breakerReset     time.Duration
	tracing          bool
	log              logger.Logger

	base    *http.Transport
	http    *http.Client
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

// New returns a Client.
func New(opts ...Option) *Client {
	c := &Client{
		name:         defaultName,
		timeout:      defaultClientTimeout,
		userAgent:    defaultUserAgent,
		maxIdleConns: defaultMaxIdleConns,
		log:          logger.Named("transport"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.base == nil {
		c.base = hardenedTransport(c.timeout, c.maxIdleConns)
	}
	c.http = &http.Client{Transport: c.wrap(c.base)}
	if c.rateRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(c.rateRPS), c.rateBurst)
	}
	if c.breakerThreshold > 0 {
		c.breaker = NewCircuitBreaker(c.name, c.breakerThreshold, c.breakerReset)
	}
	return c
}

func hardenedTransport(timeout time.Duration, maxIdle int) *http.Transport {
	dialTimeout := min(timeout, defaultDialTimeout)
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   min(maxIdle, defaultMaxIdleConnsPerHost),
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
}

func (c *Client) wrap(rt http.RoundTripper) http.RoundTripper {
	if !c.tracing {
		return rt
	}
	return otelhttp.NewTransport(rt,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
}

// Breaker returns the circuit breaker, or nil when disabled.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// Close releases idle connections.
func (c *Client) Close() {
	c.base.CloseIdleConnections()
}

// Send performs p. A response with any status is returned without error;
// 5xx statuses only count against the circuit breaker.
func (c *Client) Send(ctx context.Context, p *meta.Prepared) (*response.Response, error) {
	if c.limiter != nil {
		start := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		metrics.RecordRateLimitWait(float64(time.Since(start).Milliseconds()))
	}

	ctx, cancel, stopHeaderTimer := c.requestContext(ctx, p)
	defer stopHeaderTimer()

	req, err := p.NewRequest(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	client, custom, err := c.clientFor(p)
	if err != nil {
		cancel()
		return nil, err
	}
	if custom != nil && !p.Stream {
		defer custom.CloseIdleConnections()
	}

	var resp *http.Response
	do := func() error {
		r, err := client.Do(req)
		if err != nil {
			return err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return errServerStatus
		}
		return nil
	}

	start := time.Now()
	if c.breaker != nil {
		err = c.breaker.Execute(do)
	} else {
		err = do()
	}
	elapsed := time.Since(start)

	if err != nil && !errors.Is(err, errServerStatus) {
		cancel()
		if errors.Is(err, ErrCircuitOpen) {
			return nil, err
		}
		c.log.Debug(ctx, "request failed",
			logger.String("method", p.Method),
			logger.String("url", p.URL),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrSend, err)
	}

	if p.Stream {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return response.FromHTTP(resp, elapsed, true)
	}
	defer cancel()
	return response.FromHTTP(resp, elapsed, false)
}

// requestContext bounds one request with the per-request timeout, or the
// client timeout when the request sets none. Buffered requests get a deadline
// covering the body. Streamed requests are only bounded until the headers
// arrive; stop disarms that timer once Send returns.
func (c *Client) requestContext(ctx context.Context, p *meta.Prepared) (
	reqCtx context.Context, cancel context.CancelFunc, stop func(),
) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	switch {
	case timeout <= 0:
		reqCtx, cancel = context.WithCancel(ctx)
		return reqCtx, cancel, func() {}
	case p.Stream:
		reqCtx, cancel = context.WithCancel(ctx)
		timer := time.AfterFunc(timeout, cancel)
		return reqCtx, cancel, func() { timer.Stop() }
	default:
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		return reqCtx, cancel, func() {}
	}
}

// clientFor returns the shared client unless p needs its own TLS, proxy or
// redirect policy. The returned transport is non-nil when one was cloned.
func (c *Client) clientFor(p *meta.Prepared) (*http.Client, *http.Transport, error) {
	noRedirect := p.FollowRedirects != nil && !*p.FollowRedirects
	if !p.NeedsCustomTransport() && !noRedirect {
		return c.http, nil, nil
	}

	client := &http.Client{Transport: c.http.Transport}
	if noRedirect {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	if !p.NeedsCustomTransport() {
		return client, nil, nil
	}

	t := c.base.Clone()
	if err := configureTLS(t, p); err != nil {
		return nil, nil, err
	}
	if len(p.Proxies) > 0 {
		proxy, err := proxyFunc(p.Proxies)
		if err != nil {
			return nil, nil, err
		}
		t.Proxy = proxy
	}
	metrics.RecordTransportClone()
	client.Transport = c.wrap(t)
	return client, t, nil
}

func configureTLS(t *http.Transport, p *meta.Prepared) error {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if t.TLSClientConfig != nil {
		cfg = t.TLSClientConfig.Clone()
	}
	if p.Verify != nil && !*p.Verify {
		cfg.InsecureSkipVerify = true // #nosec G402 -- requested per call with verify=false
	}
	if p.CAFile != "" {
		pem, err := os.ReadFile(p.CAFile)
		if err != nil {
			return fmt.Errorf("%w: read ca bundle: %w", ErrTLSConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("%w: no certificates in %s", ErrTLSConfig, p.CAFile)
		}
		cfg.RootCAs = pool
	}
	if p.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(p.CertFile, p.KeyFile)
		if err != nil {
			return fmt.Errorf("%w: load client cert: %w", ErrTLSConfig, err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	t.TLSClientConfig = cfg
	return nil
}

func proxyFunc(proxies map[string]string) (func(*http.Request) (*url.URL, error), error) {
	parsed := make(map[string]*url.URL, len(proxies))
	for scheme, raw := range proxies {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrProxy, scheme, err)
		}
		parsed[scheme] = u
	}
	return func(r *http.Request) (*url.URL, error) {
		if u, ok := parsed[r.URL.Scheme]; ok {
			return u, nil
		}
		return parsed["all"], nil
	}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
