package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driving"
	"github.com/custodia-labs/vulnbrief/internal/logger"
)

// Ensure PipelineService implements the interface.
var _ driving.Pipeline = (*PipelineService)(nil)

// PipelineService wires aggregation, retrieval, generation and output into
// the single enrichment operation the CLI exposes.
type PipelineService struct {
	aggregator driving.Aggregator
	retriever  driving.Retriever
	dispatcher driving.Dispatcher
	reports    driven.ReportWriter
}

// NewPipelineService assembles the pipeline. The report writer is optional;
// without one the generated text is only returned, not persisted.
func NewPipelineService(
	aggregator driving.Aggregator,
	retriever driving.Retriever,
	dispatcher driving.Dispatcher,
	reports driven.ReportWriter,
) *PipelineService {
	return &PipelineService{
		aggregator: aggregator,
		retriever:  retriever,
		dispatcher: dispatcher,
		reports:    reports,
	}
}

// Enrich runs the full pipeline for one advisory id: resolve the canonical
// record, pull related prior advisories, generate the brief, then index
// the advisory so future runs can retrieve it. Retrieval happens before
// indexing so an advisory never cites itself on its first run.
func (s *PipelineService) Enrich(ctx context.Context, advisoryID string) (*driving.EnrichResult, error) {
	runID := uuid.NewString()
	ctx = WithRunID(ctx, runID)
	logger.Debug("pipeline run %s: %s", runID, advisoryID)

	advisory, err := s.aggregator.Aggregate(ctx, advisoryID)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", advisoryID, err)
	}

	retrieved, err := s.retriever.Retrieve(ctx, advisory)
	if err != nil {
		return nil, fmt.Errorf("retrieve context for %s: %w", advisoryID, err)
	}

	generation, err := s.dispatcher.Generate(ctx, advisory, retrieved)
	if err != nil {
		return nil, err
	}

	if err := s.retriever.Upsert(ctx, domain.NewIndexEntry(advisory)); err != nil {
		// A missed index write degrades future retrieval, not this run.
		logger.Warn("indexing %s failed: %v", advisory.ID, err)
	}

	result := &driving.EnrichResult{
		Advisory:   advisory,
		Retrieved:  retrieved,
		Generation: generation,
	}

	if s.reports != nil {
		path, err := s.reports.Write(ctx, advisory, generation.Text)
		if err != nil {
			return nil, fmt.Errorf("write report for %s: %w", advisory.ID, err)
		}
		result.ReportPath = path
	}

	return result, nil
}
