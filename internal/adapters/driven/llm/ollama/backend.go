// Package ollama provides a generation backend using a local Ollama
// instance. Being local and free, it is the usual tail of the backend
// preference list.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
)

// Ensure Backend implements the interface.
var _ driven.GenerationBackend = (*Backend)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the Ollama backend.
type Config struct {
	// ID is the backend identifier used in the preference list.
	ID string

	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// ExtractModel serves the digest phase (default: llama3.2).
	ExtractModel string

	// SynthesizeModel serves the premium phase (default: llama3.2).
	SynthesizeModel string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Backend generates text via the Ollama /api/generate endpoint.
type Backend struct {
	client          *http.Client
	id              string
	baseURL         string
	extractModel    string
	synthesizeModel string
}

// generateRequest is the Ollama /api/generate request format.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the Ollama /api/generate response format.
type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// New creates an Ollama backend.
func New(cfg Config) *Backend {
	if cfg.ID == "" {
		cfg.ID = "ollama"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ExtractModel == "" {
		cfg.ExtractModel = DefaultModel
	}
	if cfg.SynthesizeModel == "" {
		cfg.SynthesizeModel = cfg.ExtractModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Backend{
		client:          &http.Client{Timeout: cfg.Timeout},
		id:              cfg.ID,
		baseURL:         cfg.BaseURL,
		extractModel:    cfg.ExtractModel,
		synthesizeModel: cfg.SynthesizeModel,
	}
}

// ID returns the backend identifier.
func (b *Backend) ID() string { return b.id }

// ModelFor returns the model serving a phase.
func (b *Backend) ModelFor(phase domain.Phase) string {
	if phase == domain.PhaseSynthesize {
		return b.synthesizeModel
	}
	return b.extractModel
}

// Complete sends a prompt and returns the generated text plus usage.
// Ollama reports exact token counts in its response.
func (b *Backend) Complete(ctx context.Context, phase domain.Phase, prompt string) (*driven.CompletionResult, error) {
	model := b.ModelFor(phase)

	jsonBody, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: ollama status %d: %s", domain.ErrBackendUnavailable, resp.StatusCode, body)
		}
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, body)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	usage := domain.TokenUsage{
		InputTokens:  genResp.PromptEvalCount,
		OutputTokens: genResp.EvalCount,
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage = domain.TokenUsage{
			InputTokens:  estimateTokens(prompt),
			OutputTokens: estimateTokens(genResp.Response),
			Estimated:    true,
		}
	}

	return &driven.CompletionResult{Text: genResp.Response, Model: model, Usage: usage}, nil
}

// Ping validates the instance is reachable via the /api/tags endpoint.
func (b *Backend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: create ping request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama status %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

// Close releases resources.
func (b *Backend) Close() error {
	return nil
}

// estimateTokens approximates a token count as 4 chars per token.
func estimateTokens(s string) int {
	return len(s) / 4
}
