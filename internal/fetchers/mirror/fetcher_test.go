package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

const sampleAdvisory = `{
  "id": "CVE-2024-12345",
  "description": "Session token disclosure in Widget Server.",
  "severity_score": 8.1,
  "severity": "high",
  "vector": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:L/A:N",
  "cwe_ids": ["cwe-613"],
  "affected": [{"vendor": "Acme", "product": "Widget Server", "versions": "< 3.2"}],
  "references": ["https://acme.example/bulletins/asb-2024-07"],
  "published": "2024-03-05T10:00:00Z"
}`

func writeAdvisory(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestFetcher(t *testing.T, dir string, watch bool) *Fetcher {
	t.Helper()
	fetcher, err := New(Config{Dir: dir, Watch: watch})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fetcher.Close() })
	return fetcher
}

func TestFetch_Hit(t *testing.T) {
	dir := t.TempDir()
	writeAdvisory(t, dir, "cve-2024-12345.json", sampleAdvisory)
	fetcher := newTestFetcher(t, dir, false)

	record, err := fetcher.Fetch(context.Background(), "CVE-2024-12345")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, "mirror", record.SourceName)
	assert.Equal(t, "Session token disclosure in Widget Server.", record.Description)
	require.NotNil(t, record.SeverityScore)
	assert.InDelta(t, 8.1, *record.SeverityScore, 0.001)
	assert.Equal(t, domain.SeverityHigh, record.SeverityLabel)
	assert.Equal(t, []string{"CWE-613"}, record.CWEIDs)
	require.Len(t, record.Affected, 1)
	assert.Equal(t, "Widget Server", record.Affected[0].Product)
	require.NotNil(t, record.PublishedAt)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), record.PublishedAt.UTC())
}

func TestFetch_CaseInsensitiveID(t *testing.T) {
	dir := t.TempDir()
	writeAdvisory(t, dir, "adv.json", sampleAdvisory)
	fetcher := newTestFetcher(t, dir, false)

	record, err := fetcher.Fetch(context.Background(), "cve-2024-12345")
	require.NoError(t, err)
	assert.NotNil(t, record)
}

func TestFetch_DropsMalformedCWEIDs(t *testing.T) {
	dir := t.TempDir()
	writeAdvisory(t, dir, "adv.json", `{
  "id": "CVE-2024-12345",
  "description": "d",
  "cwe_ids": ["cwe-613", "not-a-cwe", ""]
}`)
	fetcher := newTestFetcher(t, dir, false)

	record, err := fetcher.Fetch(context.Background(), "CVE-2024-12345")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, []string{"CWE-613"}, record.CWEIDs)
}

func TestFetch_Miss(t *testing.T) {
	dir := t.TempDir()
	writeAdvisory(t, dir, "adv.json", sampleAdvisory)
	fetcher := newTestFetcher(t, dir, false)

	record, err := fetcher.Fetch(context.Background(), "CVE-2019-0001")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestLoadDir_SkipsDamagedFiles(t *testing.T) {
	dir := t.TempDir()
	writeAdvisory(t, dir, "good.json", sampleAdvisory)
	writeAdvisory(t, dir, "broken.json", `{"id":`)
	writeAdvisory(t, dir, "anonymous.json", `{"description": "no id"}`)
	writeAdvisory(t, dir, "notes.txt", "not an advisory")

	records, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Contains(t, records, "cve-2024-12345")
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestWatcher_InvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	writeAdvisory(t, dir, "adv.json", sampleAdvisory)
	fetcher := newTestFetcher(t, dir, true)

	record, err := fetcher.Fetch(context.Background(), "CVE-2024-12345")
	require.NoError(t, err)
	require.NotNil(t, record)

	writeAdvisory(t, dir, "second.json", `{"id": "CVE-2019-0001", "description": "Older issue."}`)

	assert.Eventually(t, func() bool {
		rec, err := fetcher.Fetch(context.Background(), "CVE-2019-0001")
		return err == nil && rec != nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFetch_ReturnsClone(t *testing.T) {
	dir := t.TempDir()
	writeAdvisory(t, dir, "adv.json", sampleAdvisory)
	fetcher := newTestFetcher(t, dir, false)

	first, err := fetcher.Fetch(context.Background(), "CVE-2024-12345")
	require.NoError(t, err)
	first.Description = "mutated"

	second, err := fetcher.Fetch(context.Background(), "CVE-2024-12345")
	require.NoError(t, err)
	assert.Equal(t, "Session token disclosure in Widget Server.", second.Description)
}
