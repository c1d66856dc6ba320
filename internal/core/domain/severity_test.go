package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityLabelFromScore(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  Severity
	}{
		{name: "critical lower bound", score: 9.0, want: SeverityCritical},
		{name: "maximum", score: 10.0, want: SeverityCritical},
		{name: "high lower bound", score: 7.0, want: SeverityHigh},
		{name: "high upper bound", score: 8.9, want: SeverityHigh},
		{name: "medium lower bound", score: 4.0, want: SeverityMedium},
		{name: "low", score: 0.1, want: SeverityLow},
		{name: "zero is none", score: 0, want: SeverityNone},
		{name: "negative is none", score: -1, want: SeverityNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityLabelFromScore(tt.score))
		})
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input string
		want  Severity
	}{
		{input: "CRITICAL", want: SeverityCritical},
		{input: "High", want: SeverityHigh},
		{input: "important", want: SeverityHigh},
		{input: "moderate", want: SeverityMedium},
		{input: "  low  ", want: SeverityLow},
		{input: "informational", want: SeverityNone},
		{input: "bogus", want: ""},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSeverity(tt.input))
		})
	}
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, SeverityLow.Rank(), SeverityNone.Rank())
	assert.Equal(t, -1, Severity("bogus").Rank())
	assert.False(t, Severity("bogus").IsValid())
	assert.True(t, SeverityMedium.IsValid())
}
