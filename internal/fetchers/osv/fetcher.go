// Package osv fetches advisory data from the OSV.dev API.
// OSV is the Tier-2 secondary source: its scalars fill in whatever the
// primary source left absent.
package osv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/httpx"
)

const (
	// SourceName identifies this fetcher in provenance lists.
	SourceName = "osv"

	// DefaultBaseURL is the OSV API root.
	DefaultBaseURL = "https://api.osv.dev/v1"
)

// Config holds configuration for the OSV fetcher.
type Config struct {
	// BaseURL overrides the API root (default: DefaultBaseURL).
	BaseURL string
}

// Fetcher retrieves vulnerability records from OSV.
type Fetcher struct {
	client  *httpx.Client
	baseURL string
}

// New creates an OSV fetcher backed by the shared resilient client.
func New(client *httpx.Client, cfg Config) *Fetcher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Fetcher{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name returns the fetcher identifier.
func (f *Fetcher) Name() string { return SourceName }

// Tier returns the priority class.
func (f *Fetcher) Tier() domain.Tier { return domain.TierSecondary }

// Fetch retrieves one vulnerability record. OSV answers 404 for unknown
// ids, which maps to (nil, nil).
func (f *Fetcher) Fetch(ctx context.Context, advisoryID string) (*domain.PartialRecord, error) {
	payload, err := f.client.Do(ctx, httpx.Request{
		URL: f.baseURL + "/vulns/" + advisoryID,
	})
	if err != nil {
		if httpx.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("osv: fetch %s: %w", advisoryID, err)
	}

	record, err := Parse(payload.Body)
	if err != nil {
		return nil, fmt.Errorf("osv: %s: %w", advisoryID, err)
	}
	return record, nil
}

// vuln mirrors the OSV schema, limited to the fields this fetcher consumes.
type vuln struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	Details   string `json:"details"`
	Published string `json:"published"`
	Severity  []struct {
		Type  string `json:"type"`
		Score string `json:"score"`
	} `json:"severity"`
	Affected []struct {
		Package struct {
			Ecosystem string `json:"ecosystem"`
			Name      string `json:"name"`
		} `json:"package"`
		Ranges []vulnRange `json:"ranges"`
	} `json:"affected"`
	References []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"references"`
	DatabaseSpecific struct {
		Severity string   `json:"severity"`
		CWEIDs   []string `json:"cwe_ids"`
	} `json:"database_specific"`
}

// Parse converts an OSV vulnerability body into a partial record.
// Pure function.
func Parse(body []byte) (*domain.PartialRecord, error) {
	var v vuln
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrParse, err)
	}
	if v.ID == "" {
		return nil, nil
	}

	record := &domain.PartialRecord{SourceName: SourceName}

	// OSV summaries are short titles; details carry the real narrative.
	if v.Details != "" {
		record.Description = v.Details
	} else {
		record.Description = v.Summary
	}

	for _, sev := range v.Severity {
		if strings.HasPrefix(sev.Type, "CVSS_V3") && sev.Score != "" {
			record.VectorString = sev.Score
			break
		}
	}
	record.SeverityLabel = domain.ParseSeverity(v.DatabaseSpecific.Severity)

	for _, id := range v.DatabaseSpecific.CWEIDs {
		if normalised := domain.NormaliseCWEID(id); normalised != "" {
			record.CWEIDs = append(record.CWEIDs, normalised)
		}
	}

	for _, affected := range v.Affected {
		if affected.Package.Name == "" {
			continue
		}
		record.Affected = append(record.Affected, domain.AffectedPackage{
			Vendor:       affected.Package.Ecosystem,
			Product:      affected.Package.Name,
			VersionRange: rangeSummary(affected.Ranges),
		})
	}

	for _, ref := range v.References {
		record.References = append(record.References, ref.URL)
	}

	if v.Published != "" {
		if at, err := time.Parse(time.RFC3339, v.Published); err == nil {
			record.PublishedAt = &at
		}
	}

	return record, nil
}

// vulnRange is one OSV affected-version range.
type vulnRange struct {
	Type   string              `json:"type"`
	Events []map[string]string `json:"events"`
}

// rangeSummary renders OSV range events ("introduced"/"fixed") compactly.
func rangeSummary(ranges []vulnRange) string {
	for _, r := range ranges {
		var introduced, fixed string
		for _, event := range r.Events {
			if v, ok := event["introduced"]; ok && introduced == "" {
				introduced = v
			}
			if v, ok := event["fixed"]; ok && fixed == "" {
				fixed = v
			}
		}
		switch {
		case introduced != "" && introduced != "0" && fixed != "":
			return fmt.Sprintf(">= %s, < %s", introduced, fixed)
		case fixed != "":
			return "< " + fixed
		case introduced != "" && introduced != "0":
			return ">= " + introduced
		}
	}
	return ""
}
