package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIndexEntry(t *testing.T) {
	published := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	adv := &Advisory{
		ID:            "CVE-2024-1111",
		Description:   "heap overflow",
		SeverityScore: floatPtr(8.8),
		SeverityLabel: SeverityHigh,
		CWEIDs:        []string{"CWE-122"},
		Affected: []AffectedPackage{
			{Vendor: "acme", Product: "widget"},
			{Vendor: "acme", Product: ""},
		},
		References:  []string{"https://a.example"},
		PublishedAt: &published,
		Provenance:  []string{"nvd"},
	}

	entry := NewIndexEntry(adv)

	assert.Equal(t, "CVE-2024-1111", entry.ID)
	assert.Equal(t, "heap overflow", entry.Description)
	assert.InDelta(t, 8.8, entry.SeverityScore, 0.001)
	assert.Equal(t, SeverityHigh, entry.SeverityLabel)
	assert.Equal(t, published, entry.PublishedAt)
	// Empty product strings are not flattened into the index.
	assert.Equal(t, []string{"widget"}, entry.Products)
}

func TestIndexEntry_MatchesProduct(t *testing.T) {
	entry := IndexEntry{Products: []string{"OpenSSL", "LibreSSL"}}

	assert.True(t, entry.MatchesProduct("openssl"))
	assert.True(t, entry.MatchesProduct("SSL"))
	assert.False(t, entry.MatchesProduct("nginx"))
	assert.False(t, entry.MatchesProduct(""))
}

func TestIndexEntry_SharesCWE(t *testing.T) {
	entry := IndexEntry{CWEIDs: []string{"CWE-79", "CWE-89"}}

	assert.True(t, entry.SharesCWE([]string{"CWE-89"}))
	assert.False(t, entry.SharesCWE([]string{"CWE-22"}))
	assert.False(t, entry.SharesCWE(nil))
}

func TestAdvisory_PrimaryProduct(t *testing.T) {
	adv := &Advisory{}
	assert.Empty(t, adv.PrimaryProduct())

	adv.Affected = []AffectedPackage{{Product: "widget"}, {Product: "gadget"}}
	assert.Equal(t, "widget", adv.PrimaryProduct())
}

func TestPartialRecord_Empty(t *testing.T) {
	assert.True(t, (&PartialRecord{SourceName: "nvd"}).Empty())
	assert.False(t, (&PartialRecord{SourceName: "nvd", Description: "x"}).Empty())
	assert.False(t, (&PartialRecord{SourceName: "nvd", SeverityScore: floatPtr(0)}).Empty())
}
