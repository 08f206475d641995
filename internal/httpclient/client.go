// Package httpclient is the shared HTTP transport every venue adapter uses
// to reach the outside world: proxy rotation, a correlation id per request,
// and a process-wide cap on concurrent outbound sockets.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	"candlecore/internal/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultMaxConcurrent = 32
	defaultRatePerSecond = 10
)

// Client wraps http.Client with round-robin proxy rotation, a bounded
// concurrency gate, and a token-bucket rate limit, so a burst of poller
// wakeups sharing one proxy never opens an unbounded number of sockets or
// exceeds a venue's stated rate limit through a single egress IP.
type Client struct {
	base    *http.Client
	proxies []*url.URL
	next    atomic.Uint64
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	log     logger.Logger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithProxies sets the round-robin proxy list. An empty list disables
// proxying entirely; requests go out directly.
func WithProxies(proxies []*url.URL) Option {
	return func(c *Client) { c.proxies = proxies }
}

// WithMaxConcurrent overrides the default outbound-request concurrency cap.
func WithMaxConcurrent(n int64) Option {
	return func(c *Client) { c.sem = semaphore.NewWeighted(n) }
}

// WithRateLimit overrides the default sustained-requests-per-second cap
// and its burst allowance.
func WithRateLimit(ratePerSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst) }
}

// New builds a Client ready to make requests.
func New(log logger.Logger, opts ...Option) *Client {
	c := &Client{
		base: &http.Client{},
		log:  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sem == nil {
		n := int64(len(c.proxies))
		if n == 0 {
			n = defaultMaxConcurrent
		}
		c.sem = semaphore.NewWeighted(n)
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultRatePerSecond)
	}
	return c
}

// Get issues a GET request against rawURL, rotating to the next configured
// proxy and tagging the request with a correlation id logged at Debug
// level alongside status/latency.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, int, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, 0, fmt.Errorf("httpclient: acquire slot: %w", err)
	}
	defer c.sem.Release(1)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("httpclient: rate limit wait: %w", err)
	}

	reqID := uuid.New().String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("User-Agent", "candlewatch/1.0")

	client := c.clientFor(reqID)

	c.log.Debug("http request", "id", reqID, "url", rawURL)
	resp, err := client.Do(req)
	if err != nil {
		c.log.Debug("http request failed", "id", reqID, "error", err)
		return nil, 0, fmt.Errorf("httpclient: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("httpclient: read body: %w", err)
	}

	c.log.Debug("http response", "id", reqID, "status", resp.StatusCode, "bytes", len(body))
	return body, resp.StatusCode, nil
}

// clientFor returns the shared client, or a one-off client pinned to the
// next proxy in rotation if any are configured.
func (c *Client) clientFor(reqID string) *http.Client {
	if len(c.proxies) == 0 {
		return c.base
	}
	idx := c.next.Add(1) % uint64(len(c.proxies))
	proxy := c.proxies[idx]
	return &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxy)},
	}
}
