package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driving"
	"github.com/custodia-labs/vulnbrief/internal/core/services"
)

// stubPipeline returns a canned enrich result.
type stubPipeline struct {
	result *driving.EnrichResult
	err    error
}

func (p *stubPipeline) Enrich(ctx context.Context, advisoryID string) (*driving.EnrichResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

// stubAggregator returns a canned advisory.
type stubAggregator struct {
	advisory *domain.Advisory
}

func (a *stubAggregator) Aggregate(ctx context.Context, advisoryID string) (*domain.Advisory, error) {
	adv := *a.advisory
	adv.ID = advisoryID
	return &adv, nil
}

func sampleResult() *driving.EnrichResult {
	score := 8.1
	return &driving.EnrichResult{
		Advisory: &domain.Advisory{
			ID:            "CVE-2024-1",
			Description:   "Session token disclosure.",
			SeverityScore: &score,
			SeverityLabel: domain.SeverityHigh,
			CWEIDs:        []string{"CWE-613"},
			Provenance:    []string{"nvd", "kev"},
		},
		Retrieved: &domain.RetrievalResult{Refs: []domain.RetrievedRef{
			{Entry: domain.IndexEntry{ID: "CVE-2023-9"}, Reason: domain.MatchTaxonomy},
		}},
		Generation: &domain.GenerationResponse{
			Text:    "The brief text.",
			Backend: "local",
			Model:   "llama3.2",
			Usage:   domain.TokenUsage{InputTokens: 100, OutputTokens: 40},
		},
		ReportPath: "/reports/CVE-2024-1.md",
	}
}

// setupTestServices injects stub services and returns a cleanup func.
func setupTestServices(t *testing.T) func() {
	t.Helper()

	retriever, err := services.NewRetrievalService(context.Background(), memory.NewIndexStore(), 5)
	require.NoError(t, err)

	pipelineService = &stubPipeline{result: sampleResult()}
	aggregatorService = &stubAggregator{advisory: &domain.Advisory{
		Description: "d",
		CWEIDs:      []string{"CWE-79"},
		Provenance:  []string{"nvd"},
	}}
	retrieverService = retriever
	settings = &domain.Settings{
		Sources: []domain.SourceSettings{
			{Name: "nvd", Enabled: true, Tier: domain.TierPrimary},
			{Name: "ghsa", Enabled: false, Tier: domain.TierEnrichment},
		},
		Pipeline: domain.DefaultPipelineSettings(),
	}

	return func() {
		pipelineService = nil
		aggregatorService = nil
		retrieverService = nil
		settings = nil
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCmd_Executes(t *testing.T) {
	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	out, err := execute(t, "version")
	assert.NoError(t, err)
	assert.Contains(t, out, "vulnbrief version test-version-1.0.0")
}

func TestEnrichCmd_Use(t *testing.T) {
	assert.Equal(t, "enrich [advisory-id]", enrichCmd.Use)
}

func TestEnrichCmd_RequiresExactlyOneArg(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	_, err := execute(t, "enrich")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestEnrichCmd_Executes(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	out, err := execute(t, "enrich", "CVE-2024-1")
	require.NoError(t, err)

	assert.Contains(t, out, "CVE-2024-1")
	assert.Contains(t, out, "8.1 (high)")
	assert.Contains(t, out, "nvd, kev")
	assert.Contains(t, out, "CVE-2023-9 (taxonomy)")
	assert.Contains(t, out, "The brief text.")
	assert.Contains(t, out, "Tokens: 100 in / 40 out")
	assert.Contains(t, out, "/reports/CVE-2024-1.md")
}

func TestEnrichCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()
	defer func() { enrichJSON = false }()

	out, err := execute(t, "enrich", "--json", "CVE-2024-1")
	require.NoError(t, err)

	assert.Contains(t, out, `"ID": "CVE-2024-1"`)
	assert.Contains(t, out, `"Backend": "local"`)
}

func TestRelatedCmd_EmptyIndex(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	out, err := execute(t, "related", "CVE-2024-1")
	require.NoError(t, err)
	assert.Contains(t, out, "No related advisories indexed.")
}

func TestRelatedCmd_ShowsMatches(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	require.NoError(t, retrieverService.Upsert(context.Background(), domain.IndexEntry{
		ID:            "CVE-2023-9",
		CWEIDs:        []string{"CWE-79"},
		SeverityLabel: domain.SeverityHigh,
		Description:   "Prior bug.",
	}))

	out, err := execute(t, "related", "CVE-2024-1")
	require.NoError(t, err)

	assert.Contains(t, out, "Related to CVE-2024-1:")
	assert.Contains(t, out, "CVE-2023-9 (taxonomy) [high]")
	assert.Contains(t, out, "Prior bug.")
}

func TestIndexStatsCmd(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	out, err := execute(t, "index", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed advisories: 0")
}

func TestIndexRebuildCmd_EmptyIndex(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	out, err := execute(t, "index", "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "Index is empty")
}

func TestIndexRebuildCmd_ReaggregatesEntries(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	require.NoError(t, retrieverService.Upsert(context.Background(), domain.IndexEntry{
		ID:          "CVE-2024-1",
		Description: "stale description",
	}))

	out, err := execute(t, "index", "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "Rebuilt index with 1 advisories.")

	// The stale entry was replaced with a fresh aggregation.
	entries := retrieverService.(*services.RetrievalService).Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "d", entries[0].Description)
}

func TestSourcesCmd(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	out, err := execute(t, "sources")
	require.NoError(t, err)

	assert.Contains(t, out, "nvd")
	assert.Contains(t, out, "enabled")
	assert.Contains(t, out, "ghsa")
	assert.Contains(t, out, "disabled")
}
