// Package llm builds generation backends from configuration.
package llm

import (
	"fmt"

	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/llm/anthropic"
	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/llm/ollama"
	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
	"github.com/custodia-labs/vulnbrief/internal/logger"
)

// Build constructs the generation backends named by the preference order,
// best first. Backends missing required credentials are skipped with a
// warning rather than failing the whole list; an empty result is left to
// the dispatcher, which reports backend exhaustion.
func Build(settings *domain.Settings) ([]driven.GenerationBackend, error) {
	var backends []driven.GenerationBackend

	for _, id := range settings.Pipeline.BackendOrder {
		cfg := settings.Backend(id)
		if cfg == nil {
			return nil, fmt.Errorf("%w: unknown backend %q", domain.ErrInvalidInput, id)
		}
		if !cfg.IsConfigured() {
			logger.Warn("backend %s missing credentials, skipping", id)
			continue
		}

		backend, err := newBackend(cfg)
		if err != nil {
			return nil, err
		}
		backends = append(backends, backend)
	}

	return backends, nil
}

// newBackend constructs one provider adapter.
func newBackend(cfg *domain.BackendSettings) (driven.GenerationBackend, error) {
	switch cfg.Provider {
	case domain.AIProviderOllama:
		return ollama.New(ollama.Config{
			ID:              cfg.ID,
			BaseURL:         cfg.BaseURL,
			ExtractModel:    cfg.ExtractModel,
			SynthesizeModel: cfg.SynthesizeModel,
		}), nil
	case domain.AIProviderOpenAI:
		return openai.New(openai.Config{
			ID:              cfg.ID,
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			ExtractModel:    cfg.ExtractModel,
			SynthesizeModel: cfg.SynthesizeModel,
		}), nil
	case domain.AIProviderAnthropic:
		return anthropic.New(anthropic.Config{
			ID:              cfg.ID,
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			ExtractModel:    cfg.ExtractModel,
			SynthesizeModel: cfg.SynthesizeModel,
		}), nil
	default:
		return nil, fmt.Errorf("%w: provider %q", domain.ErrInvalidInput, cfg.Provider)
	}
}
