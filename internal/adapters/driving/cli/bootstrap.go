package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/config/file"
	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/llm"
	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/metrics"
	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/report"
	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
	"github.com/custodia-labs/vulnbrief/internal/core/services"
	"github.com/custodia-labs/vulnbrief/internal/fetchers/feed"
	"github.com/custodia-labs/vulnbrief/internal/fetchers/ghsa"
	"github.com/custodia-labs/vulnbrief/internal/fetchers/kev"
	"github.com/custodia-labs/vulnbrief/internal/fetchers/mirror"
	"github.com/custodia-labs/vulnbrief/internal/fetchers/nvd"
	"github.com/custodia-labs/vulnbrief/internal/fetchers/osv"
	"github.com/custodia-labs/vulnbrief/internal/httpx"
	"github.com/custodia-labs/vulnbrief/internal/logger"
)

// closers are resources released when the command finishes.
var closers []io.Closer

// ensureServices wires the full stack on first use. Tests that inject
// service stubs directly bypass it.
func ensureServices(ctx context.Context) error {
	if pipelineService != nil {
		return nil
	}

	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	settings, err = configStore.Settings()
	if err != nil {
		return err
	}

	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	closers = append(closers, store)

	sink, err := metrics.NewZapSink(filepath.Join(filepath.Dir(store.Path()), "metrics.jsonl"))
	if err != nil {
		return fmt.Errorf("opening metrics sink: %w", err)
	}
	closers = append(closers, sink)

	client := httpx.NewClient(httpx.Config{
		MaxRetries: settings.Pipeline.MaxRetries,
		CacheTTL:   settings.Pipeline.CacheTTL,
		Cache:      store.CacheStore(),
		Metrics:    sink,
	})

	fetchers, err := buildFetchers(ctx, client, settings)
	if err != nil {
		return err
	}

	retriever, err := services.NewRetrievalService(ctx, store.IndexStore(), settings.Pipeline.RetrievalCap)
	if err != nil {
		return fmt.Errorf("loading index: %w", err)
	}

	backends, err := llm.Build(settings)
	if err != nil {
		return fmt.Errorf("building backends: %w", err)
	}
	for _, backend := range backends {
		closers = append(closers, backend)
	}

	reportsDir := ""
	if dataDir != "" {
		reportsDir = filepath.Join(dataDir, "reports")
	}
	reports, err := report.NewMarkdownWriter(reportsDir)
	if err != nil {
		return fmt.Errorf("preparing reports directory: %w", err)
	}

	aggregatorService = services.NewAggregatorService(fetchers, settings.Pipeline)
	retrieverService = retriever
	dispatcher := services.NewDispatcherService(backends, sink)
	pipelineService = services.NewPipelineService(aggregatorService, retriever, dispatcher, reports)
	return nil
}

// buildFetchers constructs one fetcher per enabled source.
func buildFetchers(ctx context.Context, client *httpx.Client, settings *domain.Settings) ([]driven.Fetcher, error) {
	var fetchers []driven.Fetcher

	for _, src := range settings.Sources {
		if !src.Enabled {
			logger.Debug("source %s disabled", src.Name)
			continue
		}

		switch src.Name {
		case nvd.SourceName:
			fetchers = append(fetchers, nvd.New(client, nvd.Config{
				BaseURL: src.BaseURL,
				APIKey:  src.APIKey,
			}))
		case osv.SourceName:
			fetchers = append(fetchers, osv.New(client, osv.Config{BaseURL: src.BaseURL}))
		case ghsa.SourceName:
			fetcher, err := ghsa.New(ctx, ghsa.Config{
				Token:   src.APIKey,
				Timeout: src.Timeout,
				BaseURL: src.BaseURL,
			})
			if err != nil {
				return nil, fmt.Errorf("source ghsa: %w", err)
			}
			fetchers = append(fetchers, fetcher)
		case kev.SourceName:
			fetchers = append(fetchers, kev.New(client, kev.Config{CatalogURL: src.BaseURL}))
		case feed.SourceName:
			if src.BaseURL == "" {
				return nil, fmt.Errorf("%w: source feed needs base_url", domain.ErrInvalidInput)
			}
			fetchers = append(fetchers, feed.New(client, feed.Config{FeedURL: src.BaseURL}))
		case mirror.SourceName:
			if src.BaseURL == "" {
				return nil, fmt.Errorf("%w: source mirror needs base_url (directory path)", domain.ErrInvalidInput)
			}
			fetcher, err := mirror.New(mirror.Config{Dir: src.BaseURL, Watch: true})
			if err != nil {
				return nil, fmt.Errorf("source mirror: %w", err)
			}
			closers = append(closers, fetcher)
			fetchers = append(fetchers, fetcher)
		default:
			return nil, fmt.Errorf("%w: unknown source %q", domain.ErrInvalidInput, src.Name)
		}
	}

	return fetchers, nil
}

// closeServices releases everything the bootstrap opened.
func closeServices() {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	closers = nil
	if err := errors.Join(errs...); err != nil {
		logger.Warn("shutdown: %v", err)
	}
}
