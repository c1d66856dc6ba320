// Package nvd fetches advisory data from the NVD CVE API (JSON 2.0).
// NVD is the Tier-1 primary source: its scalar fields take precedence over
// every other provider during merging.
package nvd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/httpx"
)

const (
	// SourceName identifies this fetcher in provenance lists.
	SourceName = "nvd"

	// DefaultBaseURL is the NVD CVE API endpoint.
	DefaultBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

	// headerAPIKey is the NVD credential header.
	headerAPIKey = "apiKey"
)

// Config holds configuration for the NVD fetcher.
type Config struct {
	// BaseURL overrides the API endpoint (default: DefaultBaseURL).
	BaseURL string

	// APIKey raises the NVD rate limit when set. Optional.
	APIKey string
}

// Fetcher retrieves CVE records from NVD.
type Fetcher struct {
	client  *httpx.Client
	baseURL string
	apiKey  string
}

// New creates an NVD fetcher backed by the shared resilient client.
func New(client *httpx.Client, cfg Config) *Fetcher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Fetcher{client: client, baseURL: baseURL, apiKey: cfg.APIKey}
}

// Name returns the fetcher identifier.
func (f *Fetcher) Name() string { return SourceName }

// Tier returns the priority class.
func (f *Fetcher) Tier() domain.Tier { return domain.TierPrimary }

// Fetch retrieves one CVE record. Returns (nil, nil) when NVD does not
// know the id.
func (f *Fetcher) Fetch(ctx context.Context, advisoryID string) (*domain.PartialRecord, error) {
	req := httpx.Request{
		URL:   f.baseURL,
		Query: url.Values{"cveId": {advisoryID}},
	}
	if f.apiKey != "" {
		req.Headers = map[string]string{headerAPIKey: f.apiKey}
	}

	payload, err := f.client.Do(ctx, req)
	if err != nil {
		if httpx.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("nvd: fetch %s: %w", advisoryID, err)
	}

	record, err := Parse(payload.Body)
	if err != nil {
		return nil, fmt.Errorf("nvd: %s: %w", advisoryID, err)
	}
	return record, nil
}

// apiResponse mirrors the NVD CVE API 2.0 envelope, limited to the fields
// this fetcher consumes.
type apiResponse struct {
	TotalResults    int `json:"totalResults"`
	Vulnerabilities []struct {
		CVE struct {
			ID           string `json:"id"`
			Published    string `json:"published"`
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
			Metrics struct {
				CVSSMetricV31 []cvssMetric `json:"cvssMetricV31"`
				CVSSMetricV30 []cvssMetric `json:"cvssMetricV30"`
			} `json:"metrics"`
			Weaknesses []struct {
				Description []struct {
					Value string `json:"value"`
				} `json:"description"`
			} `json:"weaknesses"`
			Configurations []struct {
				Nodes []struct {
					CPEMatch []struct {
						Criteria              string `json:"criteria"`
						VersionEndExcluding   string `json:"versionEndExcluding"`
						VersionEndIncluding   string `json:"versionEndIncluding"`
						VersionStartIncluding string `json:"versionStartIncluding"`
					} `json:"cpeMatch"`
				} `json:"nodes"`
			} `json:"configurations"`
			References []struct {
				URL string `json:"url"`
			} `json:"references"`
		} `json:"cve"`
	} `json:"vulnerabilities"`
}

type cvssMetric struct {
	CVSSData struct {
		BaseScore    float64 `json:"baseScore"`
		BaseSeverity string  `json:"baseSeverity"`
		VectorString string  `json:"vectorString"`
	} `json:"cvssData"`
}

// Parse converts an NVD API response body into a partial record. Returns
// (nil, nil) when the response contains no vulnerabilities. Pure function.
func Parse(body []byte) (*domain.PartialRecord, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrParse, err)
	}
	if len(resp.Vulnerabilities) == 0 {
		return nil, nil
	}

	cve := resp.Vulnerabilities[0].CVE
	record := &domain.PartialRecord{SourceName: SourceName}

	for _, desc := range cve.Descriptions {
		if desc.Lang == "en" {
			record.Description = desc.Value
			break
		}
	}

	metrics := cve.Metrics.CVSSMetricV31
	if len(metrics) == 0 {
		metrics = cve.Metrics.CVSSMetricV30
	}
	if len(metrics) > 0 {
		data := metrics[0].CVSSData
		score := data.BaseScore
		record.SeverityScore = &score
		record.SeverityLabel = domain.ParseSeverity(data.BaseSeverity)
		record.VectorString = data.VectorString
	}

	seenCWE := make(map[string]struct{})
	for _, weakness := range cve.Weaknesses {
		for _, desc := range weakness.Description {
			id := domain.NormaliseCWEID(desc.Value)
			if id == "" {
				continue
			}
			if _, dup := seenCWE[id]; dup {
				continue
			}
			seenCWE[id] = struct{}{}
			record.CWEIDs = append(record.CWEIDs, id)
		}
	}

	for _, cfg := range cve.Configurations {
		for _, node := range cfg.Nodes {
			for _, match := range node.CPEMatch {
				pkg, ok := parseCPE(match.Criteria)
				if !ok {
					continue
				}
				pkg.VersionRange = versionRange(
					match.VersionStartIncluding,
					match.VersionEndIncluding,
					match.VersionEndExcluding,
				)
				record.Affected = append(record.Affected, pkg)
			}
		}
	}

	for _, ref := range cve.References {
		record.References = append(record.References, ref.URL)
	}

	if cve.Published != "" {
		if at, err := time.Parse("2006-01-02T15:04:05.000", cve.Published); err == nil {
			record.PublishedAt = &at
		} else if at, err := time.Parse(time.RFC3339, cve.Published); err == nil {
			record.PublishedAt = &at
		}
	}

	return record, nil
}

// parseCPE extracts vendor and product from a CPE 2.3 formatted string
// ("cpe:2.3:a:vendor:product:version:..."). Wildcard components map to
// empty strings.
func parseCPE(criteria string) (domain.AffectedPackage, bool) {
	parts := strings.Split(criteria, ":")
	if len(parts) < 5 || parts[0] != "cpe" {
		return domain.AffectedPackage{}, false
	}
	vendor := cpeComponent(parts[3])
	product := cpeComponent(parts[4])
	if product == "" {
		return domain.AffectedPackage{}, false
	}
	return domain.AffectedPackage{Vendor: vendor, Product: product}, true
}

// cpeComponent unescapes one CPE component, treating wildcards as absent.
func cpeComponent(raw string) string {
	if raw == "*" || raw == "-" {
		return ""
	}
	return strings.ReplaceAll(strings.ReplaceAll(raw, `\:`, ":"), "_", " ")
}

// versionRange renders the NVD version bounds in a compact human form.
func versionRange(startIncl, endIncl, endExcl string) string {
	switch {
	case startIncl != "" && endExcl != "":
		return fmt.Sprintf(">= %s, < %s", startIncl, endExcl)
	case startIncl != "" && endIncl != "":
		return fmt.Sprintf(">= %s, <= %s", startIncl, endIncl)
	case endExcl != "":
		return "< " + endExcl
	case endIncl != "":
		return "<= " + endIncl
	case startIncl != "":
		return ">= " + startIncl
	default:
		return ""
	}
}
