package driven

import (
	"context"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

// GenerationBackend is one interchangeable text-generation provider.
//
// Implementations wrap a provider API (Anthropic, OpenAI, Ollama) and must
// surface credential rejection as domain.ErrAuthInvalid and unreachable
// services as domain.ErrBackendUnavailable so the dispatcher can fall back
// along its preference list.
type GenerationBackend interface {
	// ID returns the backend identifier used in the preference list.
	ID() string

	// ModelFor returns the model this backend uses for a phase.
	ModelFor(phase domain.Phase) string

	// Complete sends a prompt and returns the generated text plus usage.
	// CompletionResult.Usage.Estimated must be false only when the
	// provider reported exact token counts.
	Complete(ctx context.Context, phase domain.Phase, prompt string) (*CompletionResult, error)

	// Ping validates the backend is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// CompletionResult is one backend call's output.
type CompletionResult struct {
	// Text is the generated completion.
	Text string

	// Model is the model that actually served the request.
	Model string

	// Usage is the token accounting for this call.
	Usage domain.TokenUsage
}
