// Package mirror serves advisories from a local directory of JSON files,
// typically a synced copy of an internal advisory database. The directory
// is parsed once and kept in memory; an fsnotify watcher invalidates the
// parsed set whenever a file changes, so edits are picked up on the next
// lookup without restarting.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/logger"
)

// SourceName identifies this fetcher in provenance lists.
const SourceName = "mirror"

// Config holds configuration for the mirror fetcher.
type Config struct {
	// Dir is the advisory mirror directory. Required.
	Dir string

	// Watch disables the change watcher when false, falling back to a
	// one-time load. Defaults to true.
	Watch bool
}

// Fetcher reads advisories from a watched local mirror directory.
type Fetcher struct {
	dir     string
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	records map[string]*domain.PartialRecord
	loaded  bool
}

// New creates a mirror fetcher. When watching is enabled, the directory
// must exist so the watcher can be registered.
func New(cfg Config) (*Fetcher, error) {
	f := &Fetcher{dir: cfg.Dir}

	if cfg.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("mirror: create watcher: %w", err)
		}
		if err := watcher.Add(cfg.Dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("mirror: watch %s: %w", cfg.Dir, err)
		}
		f.watcher = watcher
		go f.watchLoop()
	}

	return f, nil
}

// Name returns the fetcher identifier.
func (f *Fetcher) Name() string { return SourceName }

// Tier returns the priority class.
func (f *Fetcher) Tier() domain.Tier { return domain.TierEnrichment }

// Fetch returns the mirrored record for the advisory id, or (nil, nil)
// when the mirror has no file for it.
func (f *Fetcher) Fetch(ctx context.Context, advisoryID string) (*domain.PartialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.ensureLoaded(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	record, ok := f.records[strings.ToLower(advisoryID)]
	f.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	// Callers may mutate the record during merging.
	clone := *record
	return &clone, nil
}

// Close stops the change watcher.
func (f *Fetcher) Close() error {
	if f.watcher == nil {
		return nil
	}
	return f.watcher.Close()
}

// Invalidate drops the parsed set, forcing a reload on the next lookup.
func (f *Fetcher) Invalidate() {
	f.mu.Lock()
	f.loaded = false
	f.mu.Unlock()
}

// watchLoop invalidates the parsed set on any change to a JSON file.
func (f *Fetcher) watchLoop() {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if strings.EqualFold(filepath.Ext(event.Name), ".json") {
				logger.Debug("mirror: %s changed, invalidating", filepath.Base(event.Name))
				f.Invalidate()
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("mirror: watcher error: %v", err)
		}
	}
}

// ensureLoaded parses the directory if the cached set is stale.
func (f *Fetcher) ensureLoaded() error {
	f.mu.RLock()
	loaded := f.loaded
	f.mu.RUnlock()
	if loaded {
		return nil
	}

	records, err := LoadDir(f.dir)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.records = records
	f.loaded = true
	f.mu.Unlock()
	return nil
}

// mirrorRecord is the on-disk advisory schema.
type mirrorRecord struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	SeverityScore *float64 `json:"severity_score"`
	Severity      string   `json:"severity"`
	Vector        string   `json:"vector"`
	CWEIDs        []string `json:"cwe_ids"`
	Affected      []struct {
		Vendor   string `json:"vendor"`
		Product  string `json:"product"`
		Versions string `json:"versions"`
	} `json:"affected"`
	References []string `json:"references"`
	Published  string   `json:"published"`
}

// LoadDir parses every JSON file in the mirror directory, keyed by
// lowercased advisory id. Damaged files are skipped with a warning so a
// single bad sync does not take the whole mirror offline.
func LoadDir(dir string) (map[string]*domain.PartialRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("mirror: %w: %v", domain.ErrSourceUnavailable, err)
	}

	records := make(map[string]*domain.PartialRecord)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		record, id, err := parseFile(path)
		if err != nil {
			logger.Warn("mirror: skipping %s: %v", entry.Name(), err)
			continue
		}
		records[strings.ToLower(id)] = record
	}
	return records, nil
}

// parseFile reads one mirror file into a partial record.
func parseFile(path string) (*domain.PartialRecord, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	var raw mirrorRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if raw.ID == "" {
		return nil, "", fmt.Errorf("%w: missing id", domain.ErrParse)
	}

	record := &domain.PartialRecord{
		SourceName:    SourceName,
		Description:   raw.Description,
		SeverityScore: raw.SeverityScore,
		SeverityLabel: domain.ParseSeverity(raw.Severity),
		VectorString:  raw.Vector,
		References:    raw.References,
	}
	for _, cwe := range raw.CWEIDs {
		if id := domain.NormaliseCWEID(cwe); id != "" {
			record.CWEIDs = append(record.CWEIDs, id)
		}
	}
	for _, pkg := range raw.Affected {
		record.Affected = append(record.Affected, domain.AffectedPackage{
			Vendor:       pkg.Vendor,
			Product:      pkg.Product,
			VersionRange: pkg.Versions,
		})
	}
	if raw.Published != "" {
		if at, err := time.Parse(time.RFC3339, raw.Published); err == nil {
			record.PublishedAt = &at
		}
	}
	return record, raw.ID, nil
}
