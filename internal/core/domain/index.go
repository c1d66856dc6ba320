package domain

import (
	"strings"
	"time"
)

// IndexEntry is the durable, searchable projection of an Advisory. Entries
// are unique by ID; re-indexing the same id replaces the prior entry.
type IndexEntry struct {
	// ID is the advisory identifier. Unique within the index.
	ID string `json:"id"`

	// PublishedAt is the advisory publication time (zero when unknown).
	PublishedAt time.Time `json:"published_at,omitzero"`

	// Description is the merged summary text.
	Description string `json:"description,omitempty"`

	// SeverityLabel is the qualitative rating.
	SeverityLabel Severity `json:"severity_label,omitempty"`

	// SeverityScore is the CVSS base score (0 when unknown).
	SeverityScore float64 `json:"severity_score,omitempty"`

	// CWEIDs are weakness classification ids.
	CWEIDs []string `json:"cwe_ids,omitempty"`

	// Products are the flattened affected product strings.
	Products []string `json:"products,omitempty"`

	// References are advisory URLs.
	References []string `json:"references,omitempty"`
}

// NewIndexEntry projects an advisory into its index form.
func NewIndexEntry(adv *Advisory) IndexEntry {
	entry := IndexEntry{
		ID:            adv.ID,
		Description:   adv.Description,
		SeverityLabel: adv.SeverityLabel,
		CWEIDs:        append([]string(nil), adv.CWEIDs...),
		References:    append([]string(nil), adv.References...),
	}
	if adv.SeverityScore != nil {
		entry.SeverityScore = *adv.SeverityScore
	}
	if adv.PublishedAt != nil {
		entry.PublishedAt = *adv.PublishedAt
	}
	for _, pkg := range adv.Affected {
		if pkg.Product != "" {
			entry.Products = append(entry.Products, pkg.Product)
		}
	}
	return entry
}

// MatchesProduct reports whether any of the entry's product strings
// contains the given substring, case-insensitively.
func (e *IndexEntry) MatchesProduct(product string) bool {
	if product == "" {
		return false
	}
	needle := strings.ToLower(product)
	for _, p := range e.Products {
		if strings.Contains(strings.ToLower(p), needle) {
			return true
		}
	}
	return false
}

// SharesCWE reports whether the entry shares at least one weakness id with
// the given set.
func (e *IndexEntry) SharesCWE(cweIDs []string) bool {
	for _, want := range cweIDs {
		for _, have := range e.CWEIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

// MatchReason tags which retrieval pass produced a reference.
type MatchReason string

const (
	// MatchExact means the advisory itself was already indexed.
	MatchExact MatchReason = "exact"

	// MatchTaxonomy means the entry shares a weakness classification.
	MatchTaxonomy MatchReason = "taxonomy"

	// MatchEntity means the entry affects an overlapping product.
	MatchEntity MatchReason = "entity"

	// MatchRecency means the entry shares the severity label and is recent.
	MatchRecency MatchReason = "recency"
)

// RetrievedRef is one related prior advisory plus the pass that found it.
type RetrievedRef struct {
	Entry  IndexEntry
	Reason MatchReason
}

// RetrievalResult is an ordered most-relevant-first set of related prior
// advisories. Ephemeral: constructed per request, never persisted.
type RetrievalResult struct {
	Refs []RetrievedRef
}

// Empty reports whether retrieval found no related advisories.
func (r *RetrievalResult) Empty() bool {
	return len(r.Refs) == 0
}
