package httpx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
	"github.com/custodia-labs/vulnbrief/internal/logger"
)

const (
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default retry budget (attempts = retries+1).
	DefaultMaxRetries = 3

	// DefaultBackoff is the initial retry delay before exponential growth.
	DefaultBackoff = time.Second

	// MaxBackoff caps the computed backoff delay.
	MaxBackoff = 30 * time.Second

	// DefaultRate is the proactive per-client throttle (requests/second).
	DefaultRate = 5.0

	// HeaderRetryAfter is the rate-limit hint header (seconds).
	HeaderRetryAfter = "Retry-After"

	// maxBodyBytes bounds response bodies read into memory.
	maxBodyBytes = 32 << 20
)

// Request describes one outbound call.
type Request struct {
	// Method defaults to GET when empty.
	Method string

	// URL is the full endpoint URL without query parameters.
	URL string

	// Query parameters, sorted deterministically for the cache key.
	Query url.Values

	// Headers are added to the outgoing request.
	Headers map[string]string

	// NoCache disables the response cache for this request. Only
	// idempotent GETs are ever cached, regardless of this flag.
	NoCache bool
}

// Payload is a successfully fetched response body.
type Payload struct {
	// Body is the raw response body.
	Body []byte

	// StatusCode is the HTTP status of the winning attempt (always 2xx).
	StatusCode int

	// FromCache is true when the body was served from the TTL cache.
	FromCache bool
}

// Config tunes a Client. Zero values fall back to package defaults.
type Config struct {
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	CacheTTL      time.Duration
	RatePerSec    float64
	RequestRate   *rate.Limiter // overrides RatePerSec when set
	HTTPClient    *http.Client  // overrides Timeout when set
	Cache         driven.CacheStore
	Metrics       driven.MetricsSink
	UserAgent     string
	DisableJitter bool // deterministic backoff, for tests
}

// Client is the resilient HTTP client shared by all fetchers. It is safe
// for concurrent use; backoff waits are context-aware suspension points
// that never block sibling fetches.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	cache      driven.CacheStore
	cacheTTL   time.Duration
	metrics    driven.MetricsSink
	maxRetries int
	backoff    time.Duration
	userAgent  string
	jitter     bool
}

// NewClient creates a resilient client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = domain.DefaultCacheTTL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := cfg.RequestRate
	if limiter == nil {
		ratePerSec := cfg.RatePerSec
		if ratePerSec == 0 {
			ratePerSec = DefaultRate
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}

	return &Client{
		http:       httpClient,
		limiter:    limiter,
		cache:      cfg.Cache,
		cacheTTL:   cfg.CacheTTL,
		metrics:    metrics,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		userAgent:  cfg.UserAgent,
		jitter:     !cfg.DisableJitter,
	}
}

// CacheKey returns the deterministic hash identifying a request in the
// response cache: sha256 over method, URL and sorted query parameters.
func CacheKey(req Request) string {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var b strings.Builder
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(req.URL)

	if len(req.Query) > 0 {
		keys := make([]string, 0, len(req.Query))
		for k := range req.Query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('?')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			values := append([]string(nil), req.Query[k]...)
			sort.Strings(values)
			for j, v := range values {
				if j > 0 {
					b.WriteByte('&')
				}
				b.WriteString(k)
				b.WriteByte('=')
				b.WriteString(v)
			}
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Do performs the request with caching, throttling and bounded retry.
// After exhausting retries it returns the typed error of the last attempt;
// callers must treat that as "source unavailable", never as fatal.
func (c *Client) Do(ctx context.Context, req Request) (*Payload, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	cacheable := method == http.MethodGet && !req.NoCache && c.cache != nil
	key := ""
	if cacheable {
		key = CacheKey(req)
		if entry, err := c.cache.Get(ctx, key, c.cacheTTL); err == nil {
			logger.Debug("httpx: cache hit for %s", req.URL)
			c.emit(req, http.StatusOK, 0, true, false)
			return &Payload{Body: entry.Payload, StatusCode: http.StatusOK, FromCache: true}, nil
		}
	}

	fullURL := req.URL
	if len(req.Query) > 0 {
		fullURL = req.URL + "?" + req.Query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		payload, retryAfter, err := c.attempt(ctx, method, fullURL, req, attempt > 0)
		if err == nil {
			if cacheable {
				if putErr := c.cache.Put(ctx, key, payload.Body); putErr != nil {
					logger.Warn("httpx: cache write failed for %s: %v", req.URL, putErr)
				}
			}
			return payload, nil
		}
		lastErr = err

		if !c.shouldRetry(err) || attempt == c.maxRetries {
			break
		}

		delay := c.nextDelay(attempt)
		if retryAfter > 0 {
			// A provider hint overrides the computed backoff.
			delay = retryAfter
		}
		logger.Debug("httpx: attempt %d for %s failed (%v), retrying in %s",
			attempt+1, req.URL, err, delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// attempt performs one network call and classifies the outcome.
func (c *Client) attempt(
	ctx context.Context, method, fullURL string, req Request, isRetry bool,
) (*Payload, time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		c.emitAttempt(req, 0, duration, isRetry)
		return nil, 0, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	c.emitAttempt(req, resp.StatusCode, duration, isRetry)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get(HeaderRetryAfter))
		return nil, retryAfter, &RateLimitError{URL: req.URL, RetryAfter: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, 0, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        req.URL,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read body: %w", domain.ErrSourceUnavailable, err)
	}

	return &Payload{Body: body, StatusCode: resp.StatusCode}, 0, nil
}

// shouldRetry reports whether an attempt error is worth another try.
func (c *Client) shouldRetry(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}
	if IsRateLimited(err) {
		return true
	}
	// Transport-level failures are retryable.
	return errors.Is(err, domain.ErrSourceUnavailable)
}

// nextDelay computes the exponential backoff with jitter for an attempt.
func (c *Client) nextDelay(attempt int) time.Duration {
	delay := c.backoff << uint(attempt)
	if delay > MaxBackoff {
		delay = MaxBackoff
	}
	if c.jitter {
		// Up to 25% random jitter to spread synchronized retries.
		delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
	}
	return delay
}

// emitAttempt records one network attempt.
func (c *Client) emitAttempt(req Request, status int, duration time.Duration, isRetry bool) {
	kind := driven.MetricFetch
	if isRetry {
		kind = driven.MetricRetry
	}
	c.metrics.Emit(driven.MetricEvent{
		Timestamp: time.Now(),
		Kind:      kind,
		Endpoint:  hostOf(req.URL),
		Status:    status,
		Duration:  duration,
	})
}

// emit records a non-network outcome such as a cache hit.
func (c *Client) emit(req Request, status int, duration time.Duration, cached, isRetry bool) {
	kind := driven.MetricFetch
	if isRetry {
		kind = driven.MetricRetry
	}
	c.metrics.Emit(driven.MetricEvent{
		Timestamp: time.Now(),
		Kind:      kind,
		Endpoint:  hostOf(req.URL),
		Status:    status,
		Duration:  duration,
		Cached:    cached,
	})
}

// parseRetryAfter interprets a Retry-After header as delay seconds or an
// HTTP date. Returns 0 when the header is absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// hostOf extracts the host from a URL for metric labelling.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
