package domain

import "strings"

// DefaultReferenceCap is the default maximum number of references kept on
// a merged advisory.
const DefaultReferenceCap = 10

// Merge folds partial records into a canonical advisory. Records must be
// supplied in tier order (primary first); for scalar fields the first
// non-absent value wins, set-valued fields are unioned in insertion order,
// and affected packages are deduplicated by (vendor, product). References
// are deduplicated by trimmed exact string and truncated to refCap in
// stable insertion order, so earlier-tier references survive truncation
// preferentially.
//
// Merging is deterministic: the same records in the same order always
// produce an identical advisory. Records that are nil or empty contribute
// nothing, including provenance.
func Merge(id string, records []*PartialRecord, refCap int) *Advisory {
	if refCap <= 0 {
		refCap = DefaultReferenceCap
	}

	adv := &Advisory{ID: id}
	seenCWE := make(map[string]struct{})
	seenRef := make(map[string]struct{})
	seenPkg := make(map[string]struct{})

	for _, rec := range records {
		if rec == nil || rec.Empty() {
			continue
		}

		adv.Provenance = append(adv.Provenance, rec.SourceName)

		if adv.Description == "" {
			adv.Description = rec.Description
		}
		if adv.SeverityScore == nil && rec.SeverityScore != nil {
			score := *rec.SeverityScore
			adv.SeverityScore = &score
		}
		if adv.SeverityLabel == "" {
			adv.SeverityLabel = rec.SeverityLabel
		}
		if adv.VectorString == "" {
			adv.VectorString = rec.VectorString
		}
		if adv.PublishedAt == nil && rec.PublishedAt != nil {
			at := *rec.PublishedAt
			adv.PublishedAt = &at
		}

		for _, cwe := range rec.CWEIDs {
			if _, dup := seenCWE[cwe]; dup {
				continue
			}
			seenCWE[cwe] = struct{}{}
			adv.CWEIDs = append(adv.CWEIDs, cwe)
		}

		for _, pkg := range rec.Affected {
			key := strings.ToLower(pkg.Vendor) + "\x00" + strings.ToLower(pkg.Product)
			if _, dup := seenPkg[key]; dup {
				continue
			}
			seenPkg[key] = struct{}{}
			adv.Affected = append(adv.Affected, pkg)
		}

		for _, ref := range rec.References {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				continue
			}
			if _, dup := seenRef[ref]; dup {
				continue
			}
			seenRef[ref] = struct{}{}
			adv.References = append(adv.References, ref)
		}
	}

	// Derive a label when only a score was supplied.
	if adv.SeverityLabel == "" && adv.SeverityScore != nil {
		adv.SeverityLabel = SeverityLabelFromScore(*adv.SeverityScore)
	}

	if len(adv.References) > refCap {
		adv.References = adv.References[:refCap]
	}

	return adv
}
