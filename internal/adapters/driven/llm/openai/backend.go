// Package openai provides a generation backend using the OpenAI chat
// completions API.
package openai

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
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultExtractModel    = "gpt-4o-mini"
	DefaultSynthesizeModel = "gpt-4o"
	DefaultTimeout         = 120 * time.Second
)

// Config holds configuration for the OpenAI backend.
type Config struct {
	// ID is the backend identifier used in the preference list.
	ID string

	// APIKey is the OpenAI API key. Required.
	APIKey string

	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL string

	// ExtractModel serves the digest phase (default: gpt-4o-mini).
	ExtractModel string

	// SynthesizeModel serves the premium phase (default: gpt-4o).
	SynthesizeModel string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Backend generates text via the OpenAI /chat/completions endpoint.
type Backend struct {
	client          *http.Client
	id              string
	apiKey          string
	baseURL         string
	extractModel    string
	synthesizeModel string
}

// chatRequest is the chat completions request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatMessage is one conversation turn.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the chat completions response format.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// New creates an OpenAI backend.
func New(cfg Config) *Backend {
	if cfg.ID == "" {
		cfg.ID = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ExtractModel == "" {
		cfg.ExtractModel = DefaultExtractModel
	}
	if cfg.SynthesizeModel == "" {
		cfg.SynthesizeModel = DefaultSynthesizeModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Backend{
		client:          &http.Client{Timeout: cfg.Timeout},
		id:              cfg.ID,
		apiKey:          cfg.APIKey,
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
func (b *Backend) Complete(ctx context.Context, phase domain.Phase, prompt string) (*driven.CompletionResult, error) {
	model := b.ModelFor(phase)

	jsonBody, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response has no choices")
	}

	servedModel := chatResp.Model
	if servedModel == "" {
		servedModel = model
	}
	text := chatResp.Choices[0].Message.Content

	usage := domain.TokenUsage{
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage = domain.TokenUsage{
			InputTokens:  estimateTokens(prompt),
			OutputTokens: estimateTokens(text),
			Estimated:    true,
		}
	}

	return &driven.CompletionResult{Text: text, Model: servedModel, Usage: usage}, nil
}

// Ping validates the key by listing models.
func (b *Backend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("openai: create ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: openai: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// Close releases resources.
func (b *Backend) Close() error {
	return nil
}

// statusError maps an API status to the dispatcher's error taxonomy.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: openai status %d: %s", domain.ErrAuthInvalid, resp.StatusCode, body)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: openai status %d: %s", domain.ErrBackendUnavailable, resp.StatusCode, body)
	default:
		return fmt.Errorf("openai error (status %d): %s", resp.StatusCode, body)
	}
}

// estimateTokens approximates a token count as 4 chars per token.
func estimateTokens(s string) int {
	return len(s) / 4
}
