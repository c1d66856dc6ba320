// Package httpx provides the resilient HTTP client shared by all source
// fetchers. It wraps outbound calls with timeouts, bounded retry with
// exponential backoff and jitter, rate-limit-aware delays, and a TTL-keyed
// response cache. Every attempt emits a structured metric event.
package httpx
