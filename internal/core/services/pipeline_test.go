package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
)

// stubReportWriter records what it was asked to persist.
type stubReportWriter struct {
	advisory *domain.Advisory
	text     string
	err      error
}

func (w *stubReportWriter) Write(ctx context.Context, advisory *domain.Advisory, text string) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	w.advisory = advisory
	w.text = text
	return "/reports/" + advisory.ID + ".md", nil
}

// newTestPipeline wires real services around stub fetchers and backends.
func newTestPipeline(t *testing.T, fetcherList []*stubFetcher, reports *stubReportWriter) (*PipelineService, *RetrievalService) {
	t.Helper()

	retriever, err := NewRetrievalService(context.Background(), memory.NewIndexStore(), 5)
	require.NoError(t, err)

	dispatcher := NewDispatcherService(backends(newStubBackend("local")), nil)
	aggregator := NewAggregatorService(asFetchers(fetcherList), defaultSettings())

	var pipeline *PipelineService
	if reports == nil {
		pipeline = NewPipelineService(aggregator, retriever, dispatcher, nil)
	} else {
		pipeline = NewPipelineService(aggregator, retriever, dispatcher, reports)
	}
	return pipeline, retriever
}

func asFetchers(fs []*stubFetcher) []driven.Fetcher {
	out := make([]driven.Fetcher, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}

func TestEnrich_FullRun(t *testing.T) {
	reports := &stubReportWriter{}
	pipeline, retriever := newTestPipeline(t, []*stubFetcher{
		{
			name: "nvd",
			tier: domain.TierPrimary,
			record: &domain.PartialRecord{
				SourceName:    "nvd",
				Description:   "Session token disclosure in Widget Server.",
				SeverityScore: scorePtr(8.1),
				SeverityLabel: domain.SeverityHigh,
				CWEIDs:        []string{"CWE-613"},
				Affected:      []domain.AffectedPackage{{Vendor: "Acme", Product: "Widget Server"}},
			},
		},
	}, reports)

	result, err := pipeline.Enrich(context.Background(), "CVE-2024-1")
	require.NoError(t, err)

	assert.Equal(t, "CVE-2024-1", result.Advisory.ID)
	assert.Equal(t, []string{"nvd"}, result.Advisory.Provenance)
	assert.Equal(t, "synthesize text from local", result.Generation.Text)
	assert.Equal(t, "/reports/CVE-2024-1.md", result.ReportPath)
	assert.Equal(t, result.Generation.Text, reports.text)

	// The advisory was indexed for future runs.
	assert.Equal(t, 1, retriever.Size())
}

func TestEnrich_FirstRunNeverCitesItself(t *testing.T) {
	pipeline, _ := newTestPipeline(t, []*stubFetcher{
		{
			name: "nvd",
			tier: domain.TierPrimary,
			record: &domain.PartialRecord{
				SourceName:  "nvd",
				Description: "d",
				CWEIDs:      []string{"CWE-79"},
			},
		},
	}, nil)

	first, err := pipeline.Enrich(context.Background(), "CVE-2024-1")
	require.NoError(t, err)
	assert.True(t, first.Retrieved.Empty())

	// Second run finds the first run's index entry: an exact match.
	second, err := pipeline.Enrich(context.Background(), "CVE-2024-1")
	require.NoError(t, err)
	require.Len(t, second.Retrieved.Refs, 1)
	assert.Equal(t, domain.MatchExact, second.Retrieved.Refs[0].Reason)
}

func TestEnrich_RelatedAdvisoriesAccumulate(t *testing.T) {
	source := &stubFetcher{
		name: "nvd",
		tier: domain.TierPrimary,
		record: &domain.PartialRecord{
			SourceName:  "nvd",
			Description: "d",
			CWEIDs:      []string{"CWE-89"},
		},
	}
	pipeline, _ := newTestPipeline(t, []*stubFetcher{source}, nil)

	_, err := pipeline.Enrich(context.Background(), "CVE-2024-1")
	require.NoError(t, err)

	second, err := pipeline.Enrich(context.Background(), "CVE-2024-2")
	require.NoError(t, err)

	require.Len(t, second.Retrieved.Refs, 1)
	assert.Equal(t, "CVE-2024-1", second.Retrieved.Refs[0].Entry.ID)
	assert.Equal(t, domain.MatchTaxonomy, second.Retrieved.Refs[0].Reason)
}

func TestEnrich_FallbackAdvisoryStillGenerates(t *testing.T) {
	pipeline, _ := newTestPipeline(t, []*stubFetcher{
		{name: "nvd", tier: domain.TierPrimary},
		{name: "osv", tier: domain.TierSecondary, err: errors.New("down")},
	}, nil)

	result, err := pipeline.Enrich(context.Background(), "CVE-2024-1")
	require.NoError(t, err)

	assert.Equal(t, domain.FallbackDescription, result.Advisory.Description)
	assert.NotEmpty(t, result.Generation.Text)
}

func TestEnrich_ReportFailurePropagates(t *testing.T) {
	reports := &stubReportWriter{err: errors.New("disk full")}
	pipeline, _ := newTestPipeline(t, []*stubFetcher{
		{name: "nvd", tier: domain.TierPrimary, record: &domain.PartialRecord{SourceName: "nvd", Description: "d"}},
	}, reports)

	_, err := pipeline.Enrich(context.Background(), "CVE-2024-1")
	assert.ErrorContains(t, err, "disk full")
}

func TestEnrich_NoReportWriter(t *testing.T) {
	pipeline, _ := newTestPipeline(t, []*stubFetcher{
		{name: "nvd", tier: domain.TierPrimary, record: &domain.PartialRecord{SourceName: "nvd", Description: "d"}},
	}, nil)

	result, err := pipeline.Enrich(context.Background(), "CVE-2024-1")
	require.NoError(t, err)
	assert.Empty(t, result.ReportPath)
}
