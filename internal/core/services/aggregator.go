package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driving"
	"github.com/custodia-labs/vulnbrief/internal/logger"
)

// Ensure AggregatorService implements the interface.
var _ driving.Aggregator = (*AggregatorService)(nil)

// fanOutLimit bounds concurrent secondary and enrichment fetches.
const fanOutLimit = 4

// AggregatorService resolves an advisory id against all enabled fetchers
// and folds the results into one canonical record. Primary sources run
// first and sequentially; everything else fans out concurrently, with
// precedence restored at merge time.
type AggregatorService struct {
	fetchers []driven.Fetcher
	settings domain.PipelineSettings
}

// NewAggregatorService creates an aggregator over the given fetchers. The
// fetcher slice is re-sorted by tier (stable, so intra-tier registration
// order is preserved) and never mutated afterwards.
func NewAggregatorService(fetchers []driven.Fetcher, settings domain.PipelineSettings) *AggregatorService {
	sorted := append([]driven.Fetcher(nil), fetchers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tier() < sorted[j].Tier()
	})
	return &AggregatorService{fetchers: sorted, settings: settings}
}

// Aggregate fetches and merges all source views of one advisory. A failing
// or empty source never fails the whole aggregation; when every source
// comes back empty the synthetic minimal record is returned instead.
func (s *AggregatorService) Aggregate(ctx context.Context, advisoryID string) (*domain.Advisory, error) {
	advisoryID = strings.TrimSpace(advisoryID)
	if advisoryID == "" {
		return nil, fmt.Errorf("%w: empty advisory id", domain.ErrInvalidInput)
	}

	// The caller's context is kept so its cancellation can be told apart
	// from expiry of the aggregation deadline below.
	callerCtx := ctx
	if s.settings.RequestDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.RequestDeadline)
		defer cancel()
	}

	logger.Section("Aggregation")
	logger.Info("Resolving %s across %d sources", advisoryID, len(s.fetchers))

	// Results are written per index so the later merge sees records in
	// tier order without any cross-goroutine coordination.
	records := make([]*domain.PartialRecord, len(s.fetchers))

	var primary, rest []int
	for i, f := range s.fetchers {
		if f.Tier() == domain.TierPrimary {
			primary = append(primary, i)
		} else {
			rest = append(rest, i)
		}
	}

	expired := false
	for _, i := range primary {
		if err := ctx.Err(); err != nil {
			if callerCtx.Err() != nil {
				return nil, err
			}
			// Only the aggregation deadline expired: skip the remaining
			// fetches and merge whatever arrived in time.
			logger.Warn("aggregation cut short: %v", err)
			expired = true
			break
		}
		records[i] = s.fetchOne(ctx, s.fetchers[i], advisoryID)
	}

	if !expired {
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(fanOutLimit)
		for _, i := range rest {
			group.Go(func() error {
				records[i] = s.fetchOne(groupCtx, s.fetchers[i], advisoryID)
				// Fetch failures are absorbed; only cancellation stops siblings.
				return groupCtx.Err()
			})
		}
		if err := group.Wait(); err != nil {
			if callerCtx.Err() != nil {
				return nil, err
			}
			// Past the deadline, merge whatever arrived in time.
			logger.Warn("aggregation cut short: %v", err)
		}
	}

	advisory := domain.Merge(advisoryID, records, s.settings.ReferenceCap)
	if len(advisory.Provenance) == 0 {
		logger.Warn("no source had data for %s, emitting minimal record", advisoryID)
		return domain.NewFallbackAdvisory(advisoryID), nil
	}

	logger.Info("Merged %s from %s", advisoryID, strings.Join(advisory.Provenance, ", "))
	return advisory, nil
}

// fetchOne runs a single fetcher, logging and absorbing its failure.
func (s *AggregatorService) fetchOne(ctx context.Context, fetcher driven.Fetcher, advisoryID string) *domain.PartialRecord {
	started := time.Now()
	record, err := fetcher.Fetch(ctx, advisoryID)
	if err != nil {
		logger.Warn("source %s failed for %s: %v", fetcher.Name(), advisoryID, err)
		return nil
	}
	if record == nil {
		logger.Debug("source %s: no data for %s", fetcher.Name(), advisoryID)
		return nil
	}
	logger.Debug("source %s answered in %s", fetcher.Name(), time.Since(started).Round(time.Millisecond))
	return record
}
