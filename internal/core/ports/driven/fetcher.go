package driven

import (
	"context"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

// Fetcher retrieves advisory data from one external provider.
// Each provider (nvd, osv, ghsa, kev, feed, mirror) implements this interface.
//
// Fetch returns (nil, nil) when the provider has no information about the
// advisory: "no data" is not an error, and is distinct from a transport
// failure. Errors are always recovered by the aggregator; a failing fetcher
// never halts its siblings.
type Fetcher interface {
	// Name returns the fetcher identifier used in provenance and metrics.
	Name() string

	// Tier returns the priority class this fetcher is assigned to.
	Tier() domain.Tier

	// Fetch retrieves and normalises the provider's view of one advisory.
	Fetch(ctx context.Context, advisoryID string) (*domain.PartialRecord, error)
}
