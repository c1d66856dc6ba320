package services

import "context"

type runIDKey struct{}

// WithRunID attaches a pipeline run correlation id to the context. Metric
// events emitted downstream carry it so one run's events can be grouped.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom extracts the run correlation id, or "" when absent.
func RunIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}
