package driven

import (
	"context"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

// ReportWriter receives the final generated text together with the
// canonical advisory it was derived from. It is solely responsible for
// templating, file naming and persistence of the rendered artifact; the
// core has no knowledge of the output layout.
type ReportWriter interface {
	// Write renders and persists one report. Returns the location of the
	// written artifact for display purposes.
	Write(ctx context.Context, advisory *domain.Advisory, text string) (string, error)
}
