// Package ghsa fetches advisory data from the GitHub Security Advisories
// global database. GHSA is a Tier-3 enrichment source: it contributes
// ecosystem package names, weakness ids and references, never overwriting
// primary/secondary scalars.
package ghsa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

const (
	// SourceName identifies this fetcher in provenance lists.
	SourceName = "ghsa"

	// DefaultTimeout is the GitHub API request timeout.
	DefaultTimeout = 30 * time.Second
)

// Config holds configuration for the GHSA fetcher.
type Config struct {
	// Token is a GitHub token. Optional: the global advisory database is
	// public, a token only raises the rate limit.
	Token string

	// Timeout is the API request timeout (default: DefaultTimeout).
	Timeout time.Duration

	// HTTPClient overrides the underlying transport. Useful for tests.
	HTTPClient *http.Client

	// BaseURL points the client at a test server when set.
	BaseURL string
}

// Fetcher retrieves global security advisories from GitHub.
type Fetcher struct {
	gh *gh.Client
}

// New creates a GHSA fetcher.
func New(ctx context.Context, cfg Config) (*Fetcher, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		if cfg.Token != "" {
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
			httpClient = oauth2.NewClient(ctx, ts)
		} else {
			httpClient = &http.Client{}
		}
	}
	if httpClient.Timeout == 0 {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient.Timeout = timeout
	}

	client := gh.NewClient(httpClient)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("ghsa: base URL: %w", err)
		}
	}

	return &Fetcher{gh: client}, nil
}

// Name returns the fetcher identifier.
func (f *Fetcher) Name() string { return SourceName }

// Tier returns the priority class.
func (f *Fetcher) Tier() domain.Tier { return domain.TierEnrichment }

// Fetch looks up global advisories by CVE id. Returns (nil, nil) when no
// advisory references the id.
func (f *Fetcher) Fetch(ctx context.Context, advisoryID string) (*domain.PartialRecord, error) {
	opts := &gh.ListGlobalSecurityAdvisoriesOptions{CVEID: gh.Ptr(advisoryID)}

	advisories, _, err := f.gh.SecurityAdvisories.ListGlobalSecurityAdvisories(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("ghsa: %w", wrapError(err))
	}
	if len(advisories) == 0 {
		return nil, nil
	}

	return Convert(advisories[0]), nil
}

// Convert normalises a GitHub global advisory into a partial record.
// Pure function, unit-testable without network access.
func Convert(adv *gh.GlobalSecurityAdvisory) *domain.PartialRecord {
	record := &domain.PartialRecord{SourceName: SourceName}

	if adv.Description != nil && *adv.Description != "" {
		record.Description = *adv.Description
	} else if adv.Summary != nil {
		record.Description = *adv.Summary
	}

	record.SeverityLabel = domain.ParseSeverity(adv.GetSeverity())

	if cvss := adv.GetCVSS(); cvss != nil {
		if cvss.Score != nil && *cvss.Score > 0 {
			score := *cvss.Score
			record.SeverityScore = &score
		}
		record.VectorString = cvss.GetVectorString()
	}

	for _, cwe := range adv.CWEs {
		if id := domain.NormaliseCWEID(cwe.GetCWEID()); id != "" {
			record.CWEIDs = append(record.CWEIDs, id)
		}
	}

	for _, vuln := range adv.Vulnerabilities {
		pkg := vuln.GetPackage()
		if pkg == nil || pkg.GetName() == "" {
			continue
		}
		record.Affected = append(record.Affected, domain.AffectedPackage{
			Vendor:       pkg.GetEcosystem(),
			Product:      pkg.GetName(),
			VersionRange: vuln.GetVulnerableVersionRange(),
		})
	}

	record.References = append(record.References, adv.References...)

	if at := adv.GetPublishedAt(); !at.IsZero() {
		published := at.Time
		record.PublishedAt = &published
	}

	return record
}

// wrapError maps go-github failures onto the domain error taxonomy.
func wrapError(err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		if ghErr.Response.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", domain.ErrAuthInvalid, err)
		}
	}

	return fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
}
