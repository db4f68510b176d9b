// Package fetch implements the HTTP retrieval client used by every part
// of the crawl pipeline. It wraps a Colly collector with per-host rate
// limiting and retry with exponential backoff.
package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"webshop/crawler/internal/metrics"
)

// Config controls client behavior.
type Config struct {
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	BackoffMultiplier float64
}

// Limiter gates requests before they hit the network. Satisfied by
// ratelimit.Limiter.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Client fetches single URLs. It carries no crawl logic; callers decide
// what to fetch and in which order.
type Client struct {
	cfg           Config
	limiter       Limiter
	logger        *zap.Logger
	baseCollector *colly.Collector
}

// New builds a Client. limiter may be nil, in which case requests are
// not throttled.
func New(cfg Config, limiter Limiter, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Client{
		cfg:           cfg,
		limiter:       limiter,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch retrieves rawURL, retrying transient failures with exponential
// backoff and jitter. Non-transient client errors fail immediately. The
// returned error is always a *Error on failure.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme != "http" && parsed.Scheme != "https" {
		if err == nil {
			err = fmt.Errorf("unsupported scheme %q", parsed.Scheme)
		}
		return nil, &Error{Kind: KindPermanent, URL: rawURL, Attempts: 0, Err: err}
	}

	attempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, rawURL); err != nil {
				return nil, &Error{Kind: KindTransient, URL: rawURL, Attempts: attempt, Err: err}
			}
		}

		body, status, err := c.do(ctx, rawURL)
		metrics.PagesFetched.Inc()
		if err == nil {
			return body, nil
		}
		metrics.FetchErrors.Inc()
		lastErr = err

		kind := classify(status)
		if kind == KindPermanent {
			return nil, &Error{Kind: KindPermanent, URL: rawURL, Attempts: attempt + 1, Err: err}
		}
		if attempt == attempts-1 {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Warn("transient fetch failure, backing off",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Int("status", status),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, &Error{Kind: KindTransient, URL: rawURL, Attempts: attempt + 1, Err: err}
		}
	}

	return nil, &Error{Kind: KindTransient, URL: rawURL, Attempts: attempts, Err: lastErr}
}

// do executes a single HTTP GET using a cloned collector.
func (c *Client) do(ctx context.Context, rawURL string) (body []byte, status int, fetchErr error) {
	collector := c.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(c.cfg.Timeout)
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}

	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, status, fetchErr
		}
		if err != nil {
			return nil, status, fmt.Errorf("visit failed: %w", err)
		}
		return body, status, nil
	}
}

// backoff computes the delay before retry number attempt+1, with ±50%
// jitter so concurrent workers do not re-hit the site in lockstep.
func (c *Client) backoff(attempt int) time.Duration {
	d := float64(c.cfg.BackoffBase)
	for i := 0; i < attempt; i++ {
		d *= c.cfg.BackoffMultiplier
	}
	if d > float64(c.cfg.BackoffMax) {
		d = float64(c.cfg.BackoffMax)
	}
	jittered := d/2 + rand.Float64()*d/2 //nolint:gosec // jitter, not crypto
	return time.Duration(jittered)
}

// classify maps an HTTP status onto a retry kind. 429 and 5xx are
// transient; other 4xx are permanent. Failures that never produced a
// status (timeouts, connection resets, DNS) are transient.
func classify(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 500:
		return KindTransient
	case status >= 400:
		return KindPermanent
	default:
		return KindTransient
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
