// Package kev fetches the CISA Known Exploited Vulnerabilities catalog
// (CSV). KEV is a Tier-3 enrichment source: a catalog hit contributes the
// exploited-in-the-wild context, the vendor/product pair, and the catalog
// reference. The full catalog download is served from the response cache
// between refreshes.
package kev

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/httpx"
)

const (
	// SourceName identifies this fetcher in provenance lists.
	SourceName = "kev"

	// DefaultCatalogURL is the CISA KEV CSV download.
	DefaultCatalogURL = "https://www.cisa.gov/sites/default/files/csv/known_exploited_vulnerabilities.csv"

	// catalogReference is the stable catalog landing page added as a
	// reference on every hit.
	catalogReference = "https://www.cisa.gov/known-exploited-vulnerabilities-catalog"
)

// Config holds configuration for the KEV fetcher.
type Config struct {
	// CatalogURL overrides the CSV download location.
	CatalogURL string
}

// Fetcher looks up advisories in the KEV catalog.
type Fetcher struct {
	client     *httpx.Client
	catalogURL string
}

// New creates a KEV fetcher backed by the shared resilient client.
func New(client *httpx.Client, cfg Config) *Fetcher {
	catalogURL := cfg.CatalogURL
	if catalogURL == "" {
		catalogURL = DefaultCatalogURL
	}
	return &Fetcher{client: client, catalogURL: catalogURL}
}

// Name returns the fetcher identifier.
func (f *Fetcher) Name() string { return SourceName }

// Tier returns the priority class.
func (f *Fetcher) Tier() domain.Tier { return domain.TierEnrichment }

// Fetch downloads the catalog (usually a cache hit) and scans it for the
// advisory id. Returns (nil, nil) when the id is not catalogued.
func (f *Fetcher) Fetch(ctx context.Context, advisoryID string) (*domain.PartialRecord, error) {
	payload, err := f.client.Do(ctx, httpx.Request{URL: f.catalogURL})
	if err != nil {
		return nil, fmt.Errorf("kev: download catalog: %w", err)
	}

	record, err := Lookup(payload.Body, advisoryID)
	if err != nil {
		return nil, fmt.Errorf("kev: %w", err)
	}
	return record, nil
}

// Column headers consumed from the catalog CSV.
const (
	colCVEID       = "cveID"
	colVendor      = "vendorProject"
	colProduct     = "product"
	colDescription = "shortDescription"
	colDateAdded   = "dateAdded"
	colNotes       = "notes"
)

// Lookup scans the catalog CSV for one advisory id. Pure function.
// Returns (nil, nil) when the id is absent.
func Lookup(catalog []byte, advisoryID string) (*domain.PartialRecord, error) {
	reader := csv.NewReader(strings.NewReader(string(catalog)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", domain.ErrParse, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	idCol, ok := columns[colCVEID]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s column", domain.ErrParse, colCVEID)
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			// A damaged row does not invalidate the rest of the catalog.
			continue
		}
		if idCol >= len(row) || !strings.EqualFold(strings.TrimSpace(row[idCol]), advisoryID) {
			continue
		}
		return rowToRecord(columns, row), nil
	}
}

// rowToRecord builds the partial record for one catalog row.
func rowToRecord(columns map[string]int, row []string) *domain.PartialRecord {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	record := &domain.PartialRecord{
		SourceName:  SourceName,
		Description: field(colDescription),
		References:  []string{catalogReference},
		// Catalogued means exploited in the wild: at least high. A label
		// from a scoring source outranks this at merge time.
		SeverityLabel: domain.SeverityHigh,
	}

	if product := field(colProduct); product != "" {
		record.Affected = append(record.Affected, domain.AffectedPackage{
			Vendor:  field(colVendor),
			Product: product,
		})
	}

	// Notes often carry the vendor advisory URL, semicolon-separated.
	for _, note := range strings.Split(field(colNotes), ";") {
		note = strings.TrimSpace(note)
		if strings.HasPrefix(note, "http://") || strings.HasPrefix(note, "https://") {
			record.References = append(record.References, note)
		}
	}

	if added := field(colDateAdded); added != "" {
		if at, err := time.Parse("2006-01-02", added); err == nil {
			record.PublishedAt = &at
		}
	}

	return record
}
