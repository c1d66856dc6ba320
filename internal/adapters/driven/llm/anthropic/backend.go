// Package anthropic provides a generation backend using the Anthropic
// messages API.
package anthropic

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
	DefaultBaseURL         = "https://api.anthropic.com/v1"
	DefaultExtractModel    = "claude-3-5-haiku-latest"
	DefaultSynthesizeModel = "claude-sonnet-4-5"
	DefaultTimeout         = 120 * time.Second

	apiVersion    = "2023-06-01"
	maxOutputSize = 2048
)

// Config holds configuration for the Anthropic backend.
type Config struct {
	// ID is the backend identifier used in the preference list.
	ID string

	// APIKey is the Anthropic API key. Required.
	APIKey string

	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL string

	// ExtractModel serves the digest phase (default: claude-3-5-haiku-latest).
	ExtractModel string

	// SynthesizeModel serves the premium phase (default: claude-sonnet-4-5).
	SynthesizeModel string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Backend generates text via the Anthropic /messages endpoint.
type Backend struct {
	client          *http.Client
	id              string
	apiKey          string
	baseURL         string
	extractModel    string
	synthesizeModel string
}

// messagesRequest is the messages API request format.
type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

// chatMessage is one conversation turn.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the messages API response format.
type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// New creates an Anthropic backend.
func New(cfg Config) *Backend {
	if cfg.ID == "" {
		cfg.ID = "anthropic"
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
// The messages API always reports exact token counts.
func (b *Backend) Complete(ctx context.Context, phase domain.Phase, prompt string) (*driven.CompletionResult, error) {
	model := b.ModelFor(phase)

	jsonBody, err := json.Marshal(messagesRequest{
		Model:     model,
		MaxTokens: maxOutputSize,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: anthropic: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var text string
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	servedModel := msgResp.Model
	if servedModel == "" {
		servedModel = model
	}

	usage := domain.TokenUsage{
		InputTokens:  msgResp.Usage.InputTokens,
		OutputTokens: msgResp.Usage.OutputTokens,
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
		return fmt.Errorf("anthropic: create ping request: %w", err)
	}
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: anthropic: %v", domain.ErrBackendUnavailable, err)
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
		return fmt.Errorf("%w: anthropic status %d: %s", domain.ErrAuthInvalid, resp.StatusCode, body)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: anthropic status %d: %s", domain.ErrBackendUnavailable, resp.StatusCode, body)
	default:
		return fmt.Errorf("anthropic error (status %d): %s", resp.StatusCode, body)
	}
}

// estimateTokens approximates a token count as 4 chars per token.
func estimateTokens(s string) int {
	return len(s) / 4
}
