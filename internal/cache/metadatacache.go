package cache

import (
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// MetaRow is one rehydration/bulk-load record: a known wallpaper id with
// the category/term it was discovered under (SPEC_FULL.md 4.2).
type MetaRow struct {
	ID        string
	Category  string
	Term      string
	CreatedAt int64
}

// MetadataCache is the on-disk known-id dedup table. It is consulted by
// the Fetcher before ever asking the store, and is rehydrated from the
// store wholesale on a cold start (empty table).
//
// It also owns the single *sql.DB handle this file backs, so
// engine.WriteBudget can be constructed against the same file and keep
// the process at exactly two on-disk SQLite files (SPEC_FULL.md 6).
type MetadataCache struct {
	db      *sql.DB
	mu      sync.Mutex
	maxRows int
}

// NewMetadataCache opens (or creates) the metadata cache at path.
func NewMetadataCache(path string, maxRows int) (*MetadataCache, error) {
	db, err := openPragmatic(path)
	if err != nil {
		return nil, err
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS metadata (
		wallpaper_id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		term TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_used INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_metadata_last_used ON metadata(last_used);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata cache schema: %w", err)
	}

	return &MetadataCache{db: db, maxRows: maxRows}, nil
}

// DB exposes the shared handle for engine.NewWriteBudget to build its
// own table against, per the "exactly two files" constraint.
func (c *MetadataCache) DB() *sql.DB { return c.db }

// Contains reports whether id is already known, refreshing last-used on
// hit.
func (c *MetadataCache) Contains(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exists int
	err := c.db.QueryRow(`SELECT 1 FROM metadata WHERE wallpaper_id = ?`, id).Scan(&exists)
	switch err {
	case nil:
		if _, err := c.db.Exec(`UPDATE metadata SET last_used = ? WHERE wallpaper_id = ?`, time.Now().Unix(), id); err != nil {
			return false, fmt.Errorf("metadata cache touch: %w", err)
		}
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("metadata cache lookup: %w", err)
	}
}

// Insert records a newly-discovered id, then runs Cleanup if above the
// high-water mark.
func (c *MetadataCache) Insert(id, category, term string, createdAt int64) error {
	c.mu.Lock()
	now := time.Now().Unix()
	_, err := c.db.Exec(
		`INSERT INTO metadata (wallpaper_id, category, term, created_at, last_used) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(wallpaper_id) DO UPDATE SET last_used = excluded.last_used`,
		id, category, term, createdAt, now,
	)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("metadata cache insert: %w", err)
	}
	return c.Cleanup()
}

// BulkLoad idempotently insert-or-replaces rows in a single transaction —
// used for cold-start rehydration from the store (SPEC_FULL.md 4.2).
func (c *MetadataCache) BulkLoad(rows []MetaRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("metadata cache bulk load begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO metadata (wallpaper_id, category, term, created_at, last_used) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(wallpaper_id) DO UPDATE SET category = excluded.category, term = excluded.term, created_at = excluded.created_at`,
	)
	if err != nil {
		return fmt.Errorf("metadata cache bulk load prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range rows {
		if _, err := stmt.Exec(r.ID, r.Category, r.Term, r.CreatedAt, now); err != nil {
			return fmt.Errorf("metadata cache bulk load row %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Count returns the number of known rows — zero signals an empty cache
// that must be rehydrated from the store on startup.
func (c *MetadataCache) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM metadata`).Scan(&n); err != nil {
		return 0, fmt.Errorf("metadata cache count: %w", err)
	}
	return n, nil
}

// Cleanup evicts the oldest rows by last_used once row count exceeds 90%
// of maxRows, down to 70% of maxRows.
func (c *MetadataCache) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM metadata`).Scan(&count); err != nil {
		return fmt.Errorf("metadata cache count: %w", err)
	}

	highWater := c.maxRows * 90 / 100
	if count <= highWater {
		return nil
	}
	target := c.maxRows * 70 / 100
	toEvict := count - target

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("metadata cache cleanup begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM metadata WHERE wallpaper_id IN (
			SELECT wallpaper_id FROM metadata ORDER BY last_used ASC LIMIT ?
		)`, toEvict,
	); err != nil {
		return fmt.Errorf("metadata cache evict: %w", err)
	}

	return tx.Commit()
}

// IntegrityCheck runs SQLite's built-in consistency check.
func (c *MetadataCache) IntegrityCheck() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result string
	if err := c.db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("metadata cache integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("metadata cache integrity check failed: %s", result)
	}
	return nil
}

// Close runs ANALYZE and VACUUM, then closes the underlying handle —
// this also closes engine.WriteBudget's table, since they share a file.
func (c *MetadataCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec(`ANALYZE`); err != nil {
		return fmt.Errorf("metadata cache analyze: %w", err)
	}
	if _, err := c.db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("metadata cache vacuum: %w", err)
	}
	return c.db.Close()
}
