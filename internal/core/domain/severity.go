package domain

import "strings"

// Severity is a qualitative severity rating derived from CVSS scoring.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNone     Severity = "none"
)

// severityRank orders severities for comparison. Higher is more severe.
var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityNone:     0,
}

// IsValid reports whether s is a known severity value.
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the comparison rank of the severity. Unknown values rank
// below "none".
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity normalises a source-provided rating string. Unrecognised
// values map to the empty severity, signalling "no opinion".
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high", "important":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "none", "informational":
		return SeverityNone
	default:
		return ""
	}
}

// SeverityLabelFromScore derives a qualitative rating from a CVSS v3 base
// score using the standard boundaries (9.0, 7.0, 4.0, 0.1).
func SeverityLabelFromScore(score float64) Severity {
	switch {
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	case score > 0:
		return SeverityLow
	default:
		return SeverityNone
	}
}
