package driving

import (
	"context"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

// Aggregator resolves one advisory id into a canonical record by querying
// all enabled fetchers across priority tiers. It never fails outright: when
// every source is empty or unavailable it returns the Tier-4 minimal record.
type Aggregator interface {
	// Aggregate fetches and merges all source views of one advisory.
	Aggregate(ctx context.Context, advisoryID string) (*domain.Advisory, error)
}

// Retriever serves similarity lookups over previously resolved advisories.
type Retriever interface {
	// Retrieve returns up to the configured cap of related prior
	// advisories, most relevant first. An empty index yields an empty
	// result, never an error.
	Retrieve(ctx context.Context, advisory *domain.Advisory) (*domain.RetrievalResult, error)

	// Upsert stores the index projection of an advisory, write-through.
	Upsert(ctx context.Context, entry domain.IndexEntry) error

	// Rebuild replaces the whole index with the supplied entries.
	Rebuild(ctx context.Context, entries []domain.IndexEntry) error

	// Size returns the number of indexed advisories.
	Size() int
}

// Dispatcher runs the two-phase generation protocol against the configured
// backend preference list.
type Dispatcher interface {
	// Generate produces the final advisory text. Only
	// domain.ErrBackendsExhausted is returned as a hard failure.
	Generate(ctx context.Context, advisory *domain.Advisory, retrieved *domain.RetrievalResult) (*domain.GenerationResponse, error)
}

// EnrichResult is the outcome of one full pipeline run.
type EnrichResult struct {
	Advisory   *domain.Advisory
	Retrieved  *domain.RetrievalResult
	Generation *domain.GenerationResponse

	// ReportPath is where the output collaborator persisted the artifact
	// (empty when no report writer is configured).
	ReportPath string
}

// Pipeline wires aggregation, retrieval, generation and output into one
// operation.
type Pipeline interface {
	// Enrich runs the full pipeline for one advisory id.
	Enrich(ctx context.Context, advisoryID string) (*EnrichResult, error)
}
