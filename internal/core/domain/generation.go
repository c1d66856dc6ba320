package domain

// Phase identifies one of the two generation phases.
type Phase string

const (
	// PhaseExtract is the low-cost digest pass over the raw facts.
	PhaseExtract Phase = "extract"

	// PhaseSynthesize is the premium pass that produces the final text.
	PhaseSynthesize Phase = "synthesize"
)

// TokenUsage is the input/output token accounting for one backend call.
type TokenUsage struct {
	// InputTokens is the prompt token count.
	InputTokens int

	// OutputTokens is the completion token count.
	OutputTokens int

	// Estimated is true when the backend did not report counts and the
	// values are derived from character lengths.
	Estimated bool
}

// Add returns the element-wise sum of two usages. The result is marked
// estimated if either side is.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		Estimated:    u.Estimated || other.Estimated,
	}
}

// GenerationResponse carries the generated text plus the backend and model
// that actually served the request, which may differ from the ones
// requested after fallback. Ephemeral.
type GenerationResponse struct {
	Text    string
	Backend string
	Model   string
	Usage   TokenUsage
}
