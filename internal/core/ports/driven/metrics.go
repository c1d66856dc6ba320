package driven

import "time"

// MetricKind classifies a metric event.
type MetricKind string

const (
	// MetricFetch is one outbound HTTP attempt (success or failure).
	MetricFetch MetricKind = "fetch"

	// MetricRetry is a retried HTTP attempt.
	MetricRetry MetricKind = "retry"

	// MetricGeneration is one generation backend call.
	MetricGeneration MetricKind = "generation"

	// MetricFallback is a backend substitution during generation.
	MetricFallback MetricKind = "fallback"
)

// MetricEvent is one structured observation emitted to the metrics
// collaborator. The core only emits events, never reads them back.
type MetricEvent struct {
	Timestamp time.Time
	Kind      MetricKind

	// Endpoint is the provider host for fetch events.
	Endpoint string

	// Backend and Model identify the provider for generation events.
	Backend string
	Model   string

	// Status is the HTTP status code (0 for transport errors) or a
	// backend outcome string mapped to 200/0.
	Status int

	// Duration is the attempt wall time.
	Duration time.Duration

	// Cached is true when a fetch was served from cache.
	Cached bool

	// TokensIn/TokensOut carry generation usage accounting.
	TokensIn  int
	TokensOut int

	// Estimated is true when token counts are character-length estimates.
	Estimated bool

	// RunID correlates events belonging to one pipeline run.
	RunID string
}

// MetricsSink receives metric events. Implementations must be safe for
// concurrent use and must never block the pipeline on slow consumers.
type MetricsSink interface {
	Emit(event MetricEvent)
}

// NopMetrics is a MetricsSink that discards all events.
type NopMetrics struct{}

// Emit discards the event.
func (NopMetrics) Emit(MetricEvent) {}
