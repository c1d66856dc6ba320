package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSourceUnavailable indicates a fetcher could not reach its provider
	// after exhausting retries. Aggregation treats this as "no data from
	// this source", never as fatal.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRateLimited indicates the provider rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrParse indicates a provider payload could not be decoded.
	// Recovered at the fetcher boundary, surfaced as "no data".
	ErrParse = errors.New("malformed provider payload")

	// ErrSourceDisabled indicates the fetcher is switched off in settings.
	ErrSourceDisabled = errors.New("source disabled")

	// ErrAuthInvalid indicates missing or rejected backend credentials.
	// Triggers backend fallback in the dispatcher.
	ErrAuthInvalid = errors.New("authentication invalid")

	// ErrBackendUnavailable indicates a generation backend is unreachable.
	// Triggers backend fallback in the dispatcher.
	ErrBackendUnavailable = errors.New("generation backend unavailable")

	// ErrBackendsExhausted indicates every backend in the preference list
	// failed. This is the only pipeline error that propagates to callers.
	ErrBackendsExhausted = errors.New("all generation backends failed")
)
