package httpx

import (
	"errors"
	"fmt"
	"time"
)

// StatusError represents a non-success HTTP response that exhausted the
// retry budget (5xx) or is not retryable at all (4xx other than 429).
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: unexpected status %d from %s", e.StatusCode, e.URL)
}

// RateLimitError represents a 429 response that survived all retries.
// RetryAfter carries the provider's hint when one was supplied.
type RateLimitError struct {
	URL        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("httpx: rate limited by %s, retry after %s", e.URL, e.RetryAfter)
	}
	return fmt.Sprintf("httpx: rate limited by %s", e.URL)
}

// IsNotFound checks if the error is a 404 response.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == 404
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// retryableStatus reports whether a status code should trigger a retry.
func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
