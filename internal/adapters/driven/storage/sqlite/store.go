package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/vulnbrief/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
	"github.com/custodia-labs/vulnbrief/internal/logger"
)

// Store is the unified SQLite storage backing the HTTP cache and the
// similarity index through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.vulnbrief/data/vulnbrief.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".vulnbrief", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "vulnbrief.db")

	// WAL mode for better concurrency between fetch fan-out and lookups.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// CacheStore returns a CacheStore interface backed by this store.
func (s *Store) CacheStore() driven.CacheStore {
	return &cacheStore{store: s}
}

// IndexStore returns an IndexStore interface backed by this store.
func (s *Store) IndexStore() driven.IndexStore {
	return &indexStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Cache Store ====================

// cacheStore implements driven.CacheStore.
type cacheStore struct {
	store *Store
}

var _ driven.CacheStore = (*cacheStore)(nil)

// Get returns the cached payload for key when younger than ttl. Expired
// rows are purged on the spot. Any read problem is a cache miss.
func (c *cacheStore) Get(ctx context.Context, key string, ttl time.Duration) (*driven.CacheEntry, error) {
	var payload []byte
	var storedAt time.Time

	row := c.store.db.QueryRowContext(ctx,
		"SELECT payload, stored_at FROM http_cache WHERE key = ?", key)
	if err := row.Scan(&payload, &storedAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Warn("cache: unreadable entry %s treated as miss: %v", key, err)
		}
		return nil, domain.ErrNotFound
	}

	if time.Since(storedAt) > ttl {
		_, _ = c.store.db.ExecContext(ctx, "DELETE FROM http_cache WHERE key = ?", key)
		return nil, domain.ErrNotFound
	}

	return &driven.CacheEntry{Key: key, Payload: payload, StoredAt: storedAt}, nil
}

// Put stores or replaces the payload for key. Last write wins.
func (c *cacheStore) Put(ctx context.Context, key string, payload []byte) error {
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO http_cache (key, payload, stored_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			stored_at = excluded.stored_at
	`, key, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}

// Purge removes entries stored before the cutoff.
func (c *cacheStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := c.store.db.ExecContext(ctx,
		"DELETE FROM http_cache WHERE stored_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged entries: %w", err)
	}
	return int(removed), nil
}

// Close is a no-op; the parent store owns the connection.
func (c *cacheStore) Close() error {
	return nil
}

// ==================== Index Store ====================

// indexStore implements driven.IndexStore.
type indexStore struct {
	store *Store
}

var _ driven.IndexStore = (*indexStore)(nil)

// Load returns every persisted entry in insertion order. Rows that fail
// to decode are skipped with a warning, never surfaced as errors.
func (i *indexStore) Load(ctx context.Context) ([]domain.IndexEntry, error) {
	rows, err := i.store.db.QueryContext(ctx,
		"SELECT id, entry FROM index_entries ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}
	defer rows.Close()

	var entries []domain.IndexEntry
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			logger.Warn("index: skipping unreadable row: %v", err)
			continue
		}
		var entry domain.IndexEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logger.Warn("index: skipping undecodable entry %s: %v", id, err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index rows: %w", err)
	}
	return entries, nil
}

// Upsert stores or replaces the entry with the same id.
func (i *indexStore) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshalling index entry: %w", err)
	}

	_, err = i.store.db.ExecContext(ctx, `
		INSERT INTO index_entries (id, entry, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entry = excluded.entry,
			updated_at = excluded.updated_at
	`, entry.ID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing index entry: %w", err)
	}
	return nil
}

// Replace atomically swaps the full index contents.
func (i *indexStore) Replace(ctx context.Context, entries []domain.IndexEntry) error {
	tx, err := i.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM index_entries"); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshalling index entry %s: %w", entry.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO index_entries (id, entry, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				entry = excluded.entry,
				updated_at = excluded.updated_at
		`, entry.ID, string(raw), now); err != nil {
			return fmt.Errorf("storing index entry %s: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replace: %w", err)
	}
	return nil
}

// Close is a no-op; the parent store owns the connection.
func (i *indexStore) Close() error {
	return nil
}
