package domain

import (
	"regexp"
	"strings"
)

// cwePattern matches weakness identifiers in free text, case-insensitively.
var cwePattern = regexp.MustCompile(`(?i)\bCWE[-\s]?(\d{1,5})\b`)

// ExtractCWEIDs finds weakness identifiers embedded in free text and returns
// them in normalised "CWE-<n>" form, deduplicated, in order of first
// appearance. It is a pure function, independent of any source format.
func ExtractCWEIDs(text string) []string {
	matches := cwePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		id := "CWE-" + m[1]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// NormaliseCWEID canonicalises a source-provided weakness id to "CWE-<n>"
// form. Returns the empty string for values that carry no numeric id
// (e.g. "NVD-CWE-noinfo").
func NormaliseCWEID(id string) string {
	m := cwePattern.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return ""
	}
	return "CWE-" + m[1]
}
