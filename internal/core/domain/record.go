package domain

import "time"

// Tier is the priority class of a data source. Lower tiers are consulted
// first and win scalar-field conflicts during merging.
type Tier int

const (
	// TierPrimary is the authoritative source class.
	TierPrimary Tier = 1

	// TierSecondary is the scalar-field fallback class.
	TierSecondary Tier = 2

	// TierEnrichment sources only ever add fields, never overwrite scalars.
	TierEnrichment Tier = 3

	// TierFallback is the synthetic minimal-record class used when both
	// primary and secondary sources yield nothing.
	TierFallback Tier = 4
)

// String returns a human-readable tier name.
func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierEnrichment:
		return "enrichment"
	case TierFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// AffectedPackage identifies one vendor/product/version-range combination
// an advisory applies to.
type AffectedPackage struct {
	// Vendor is the supplier name (may be empty for ecosystem sources).
	Vendor string

	// Product is the product or package name.
	Product string

	// VersionRange describes the affected versions in source-native form.
	VersionRange string
}

// PartialRecord is the output of a single fetcher for a single advisory.
// Every field except SourceName is optional: a zero value (or nil pointer)
// means the source had no opinion, never that the value is known to be zero.
type PartialRecord struct {
	// SourceName identifies the fetcher that produced this record. Always set.
	SourceName string

	// Description is the advisory summary text, if the source provides one.
	Description string

	// SeverityScore is the CVSS base score, if known.
	SeverityScore *float64

	// SeverityLabel is the source's qualitative rating, if provided.
	SeverityLabel Severity

	// VectorString is the CVSS vector, if provided.
	VectorString string

	// CWEIDs are weakness classification identifiers (e.g. "CWE-79").
	CWEIDs []string

	// Affected lists impacted vendor/product/version combinations in
	// source order.
	Affected []AffectedPackage

	// References are advisory URLs in source order.
	References []string

	// PublishedAt is the original publication time, if known.
	PublishedAt *time.Time
}

// Empty reports whether the record carries no information beyond its
// source attribution. Aggregation treats empty records like "no data".
func (p *PartialRecord) Empty() bool {
	return p.Description == "" &&
		p.SeverityScore == nil &&
		p.SeverityLabel == "" &&
		p.VectorString == "" &&
		len(p.CWEIDs) == 0 &&
		len(p.Affected) == 0 &&
		len(p.References) == 0 &&
		p.PublishedAt == nil
}

// Advisory is the canonical merged view of one advisory identifier after
// folding all partial records in tier order. It is immutable after
// construction and is not persisted directly; only the IndexEntry derived
// from it is.
type Advisory struct {
	// ID is the advisory identifier (e.g. "CVE-2024-12345").
	ID string

	// Description is the merged summary text.
	Description string

	// SeverityScore is the CVSS base score, if any source supplied one.
	SeverityScore *float64

	// SeverityLabel is the qualitative severity rating.
	SeverityLabel Severity

	// VectorString is the CVSS vector.
	VectorString string

	// CWEIDs is the union of weakness ids across sources.
	CWEIDs []string

	// Affected is the deduplicated list of impacted packages.
	Affected []AffectedPackage

	// References is the deduplicated, capped list of advisory URLs.
	References []string

	// PublishedAt is the earliest-tier publication time.
	PublishedAt *time.Time

	// Provenance lists the names of the fetchers that contributed, in tier
	// order. Never empty: a fallback record carries the fallback source name.
	Provenance []string
}

// PrimaryProduct returns the product name of the first affected package,
// used as the entity-overlap retrieval key. Empty when nothing is affected.
func (a *Advisory) PrimaryProduct() string {
	if len(a.Affected) == 0 {
		return ""
	}
	return a.Affected[0].Product
}

// FallbackSourceName is the provenance entry used for Tier-4 minimal records.
const FallbackSourceName = "fallback"

// FallbackDescription is the placeholder description for Tier-4 records.
const FallbackDescription = "No advisory data available from configured sources."

// NewFallbackAdvisory constructs the Tier-4 minimal record for an advisory id.
// Downstream stages never operate on a nil advisory because of this floor.
func NewFallbackAdvisory(id string) *Advisory {
	return &Advisory{
		ID:          id,
		Description: FallbackDescription,
		Provenance:  []string{FallbackSourceName},
	}
}
