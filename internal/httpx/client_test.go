package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
)

// recordingSink captures metric events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []driven.MetricEvent
}

func (r *recordingSink) Emit(event driven.MetricEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) byKind(kind driven.MetricKind) []driven.MetricEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []driven.MetricEvent
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestClient(cache driven.CacheStore, metrics driven.MetricsSink, retries int) *Client {
	return NewClient(Config{
		MaxRetries:    retries,
		Backoff:       time.Millisecond,
		Cache:         cache,
		Metrics:       metrics,
		RequestRate:   rate.NewLimiter(rate.Inf, 1),
		DisableJitter: true,
	})
}

func TestClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestClient(nil, nil, 3)
	payload, err := client.Do(context.Background(), Request{URL: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ok":true}`), payload.Body)
	assert.False(t, payload.FromCache)
}

func TestClient_CacheIdempotence(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	client := newTestClient(memory.NewCacheStore(), sink, 3)
	req := Request{URL: srv.URL, Query: url.Values{"id": {"CVE-2024-1"}}}

	first, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	second, err := client.Do(context.Background(), req)
	require.NoError(t, err)

	// Identical payloads, and the second call made zero network requests.
	assert.Equal(t, first.Body, second.Body)
	assert.True(t, second.FromCache)
	assert.Equal(t, int32(1), calls.Load())

	fetches := sink.byKind(driven.MetricFetch)
	require.Len(t, fetches, 2)
	assert.False(t, fetches[0].Cached)
	assert.True(t, fetches[1].Cached)
}

func TestClient_RetryBoundOn503(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(nil, nil, 3)
	_, err := client.Do(context.Background(), Request{URL: srv.URL})

	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	// maxRetries + 1 attempts, then give up.
	assert.Equal(t, int32(4), attempts.Load())
}

func TestClient_NoRetryOn404(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(nil, nil, 3)
	_, err := client.Do(context.Background(), Request{URL: srv.URL})

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_RetryAfterOverridesBackoff(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set(HeaderRetryAfter, "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	client := newTestClient(nil, nil, 3)
	payload, err := client.Do(context.Background(), Request{URL: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, []byte("recovered"), payload.Body)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClient_RateLimitExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderRetryAfter, "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(nil, nil, 1)
	_, err := client.Do(context.Background(), Request{URL: srv.URL})

	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestClient_RetryEmitsRetryMetrics(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	client := newTestClient(nil, sink, 3)
	_, err := client.Do(context.Background(), Request{URL: srv.URL})

	require.NoError(t, err)
	assert.Len(t, sink.byKind(driven.MetricFetch), 1)
	assert.Len(t, sink.byKind(driven.MetricRetry), 2)
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Config{
		MaxRetries:    3,
		Backoff:       time.Hour, // force a long wait so cancellation wins
		RequestRate:   rate.NewLimiter(rate.Inf, 1),
		DisableJitter: true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Do(ctx, Request{URL: srv.URL})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCacheKey_Deterministic(t *testing.T) {
	a := Request{URL: "https://api.example/v1", Query: url.Values{"b": {"2"}, "a": {"1"}}}
	b := Request{URL: "https://api.example/v1", Query: url.Values{"a": {"1"}, "b": {"2"}}}

	assert.Equal(t, CacheKey(a), CacheKey(b))
}

func TestCacheKey_DistinguishesRequests(t *testing.T) {
	base := Request{URL: "https://api.example/v1"}
	withQuery := Request{URL: "https://api.example/v1", Query: url.Values{"a": {"1"}}}
	post := Request{URL: "https://api.example/v1", Method: http.MethodPost}

	assert.NotEqual(t, CacheKey(base), CacheKey(withQuery))
	assert.NotEqual(t, CacheKey(base), CacheKey(post))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 7*time.Second, parseRetryAfter("7"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	parsed := parseRetryAfter(future)
	assert.Greater(t, parsed, 20*time.Second)
}
