// Package report persists generated advisory briefs as markdown files.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
)

// Ensure MarkdownWriter implements the interface.
var _ driven.ReportWriter = (*MarkdownWriter)(nil)

// MarkdownWriter writes one advisory brief per file, named after the
// advisory id. An existing report for the same id is overwritten.
type MarkdownWriter struct {
	dir string
	now func() time.Time
}

// NewMarkdownWriter creates a writer rooted at dir.
// If dir is empty, defaults to ~/.vulnbrief/reports.
func NewMarkdownWriter(dir string) (*MarkdownWriter, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".vulnbrief", "reports")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating reports directory: %w", err)
	}
	return &MarkdownWriter{dir: dir, now: time.Now}, nil
}

// Write renders and persists one report, returning its path.
func (w *MarkdownWriter) Write(ctx context.Context, advisory *domain.Advisory, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if advisory == nil || advisory.ID == "" {
		return "", fmt.Errorf("%w: advisory without id", domain.ErrInvalidInput)
	}

	path := filepath.Join(w.dir, fileName(advisory.ID))
	if err := os.WriteFile(path, []byte(w.render(advisory, text)), 0600); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// render produces the markdown document.
func (w *MarkdownWriter) render(advisory *domain.Advisory, text string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", advisory.ID)

	if advisory.SeverityScore != nil {
		fmt.Fprintf(&b, "**Severity:** %.1f", *advisory.SeverityScore)
		if advisory.SeverityLabel != "" {
			fmt.Fprintf(&b, " (%s)", advisory.SeverityLabel)
		}
		b.WriteString("  \n")
	} else if advisory.SeverityLabel != "" {
		fmt.Fprintf(&b, "**Severity:** %s  \n", advisory.SeverityLabel)
	}
	if advisory.VectorString != "" {
		fmt.Fprintf(&b, "**Vector:** `%s`  \n", advisory.VectorString)
	}
	if len(advisory.CWEIDs) > 0 {
		fmt.Fprintf(&b, "**Weaknesses:** %s  \n", strings.Join(advisory.CWEIDs, ", "))
	}
	if advisory.PublishedAt != nil {
		fmt.Fprintf(&b, "**Published:** %s  \n", advisory.PublishedAt.UTC().Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "**Sources:** %s  \n", strings.Join(advisory.Provenance, ", "))

	b.WriteString("\n## Brief\n\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n")

	if len(advisory.Affected) > 0 {
		b.WriteString("\n## Affected\n\n")
		b.WriteString("| Vendor | Product | Versions |\n")
		b.WriteString("|---|---|---|\n")
		for _, pkg := range advisory.Affected {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", pkg.Vendor, pkg.Product, pkg.VersionRange)
		}
	}

	if len(advisory.References) > 0 {
		b.WriteString("\n## References\n\n")
		for _, ref := range advisory.References {
			fmt.Fprintf(&b, "- %s\n", ref)
		}
	}

	fmt.Fprintf(&b, "\n---\nGenerated %s\n", w.now().UTC().Format(time.RFC3339))
	return b.String()
}

// fileName sanitises an advisory id into a file name.
func fileName(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, id)
	return safe + ".md"
}
