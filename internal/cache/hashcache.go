package cache

import (
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// HashCache is the on-disk sha256 → wallpaper_id dedup table (SPEC_FULL.md
// 4.1). It is consulted by the Pipeline before ever asking the store, and
// is the fast path that makes repeated posts of the same content free.
type HashCache struct {
	db      *sql.DB
	mu      sync.Mutex
	maxRows int
}

// NewHashCache opens (or creates) the hash cache at path.
func NewHashCache(path string, maxRows int) (*HashCache, error) {
	db, err := openPragmatic(path)
	if err != nil {
		return nil, err
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS hashes (
		sha256 TEXT PRIMARY KEY,
		wallpaper_id TEXT NOT NULL,
		last_used INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_hashes_last_used ON hashes(last_used);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("hash cache schema: %w", err)
	}

	return &HashCache{db: db, maxRows: maxRows}, nil
}

// Lookup returns the wallpaper id stored under hash, refreshing its
// last-used timestamp on hit, and false if hash is unknown.
func (c *HashCache) Lookup(hash string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var id string
	err := c.db.QueryRow(`SELECT wallpaper_id FROM hashes WHERE sha256 = ?`, hash).Scan(&id)
	switch err {
	case nil:
		if _, err := c.db.Exec(`UPDATE hashes SET last_used = ? WHERE sha256 = ?`, time.Now().Unix(), hash); err != nil {
			return "", false, fmt.Errorf("hash cache touch: %w", err)
		}
		return id, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("hash cache lookup: %w", err)
	}
}

// Insert upserts hash → id with the current timestamp, then runs Cleanup
// if the table has crossed its high-water mark.
func (c *HashCache) Insert(hash, id string) error {
	c.mu.Lock()
	now := time.Now().Unix()
	_, err := c.db.Exec(
		`INSERT INTO hashes (sha256, wallpaper_id, last_used) VALUES (?, ?, ?)
		 ON CONFLICT(sha256) DO UPDATE SET wallpaper_id = excluded.wallpaper_id, last_used = excluded.last_used`,
		hash, id, now,
	)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("hash cache insert: %w", err)
	}
	return c.Cleanup()
}

// Cleanup evicts the oldest rows by last_used once row count exceeds 90%
// of maxRows, down to 70% of maxRows (SPEC_FULL.md 4.1).
func (c *HashCache) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM hashes`).Scan(&count); err != nil {
		return fmt.Errorf("hash cache count: %w", err)
	}

	highWater := c.maxRows * 90 / 100
	if count <= highWater {
		return nil
	}
	target := c.maxRows * 70 / 100
	toEvict := count - target

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("hash cache cleanup begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM hashes WHERE sha256 IN (
			SELECT sha256 FROM hashes ORDER BY last_used ASC LIMIT ?
		)`, toEvict,
	); err != nil {
		return fmt.Errorf("hash cache evict: %w", err)
	}

	return tx.Commit()
}

// IntegrityCheck runs SQLite's built-in consistency check.
func (c *HashCache) IntegrityCheck() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result string
	if err := c.db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("hash cache integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("hash cache integrity check failed: %s", result)
	}
	return nil
}

// Close runs ANALYZE and VACUUM to reclaim space, then closes the
// underlying handle — called once at shutdown (SPEC_FULL.md 4.9).
func (c *HashCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec(`ANALYZE`); err != nil {
		return fmt.Errorf("hash cache analyze: %w", err)
	}
	if _, err := c.db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("hash cache vacuum: %w", err)
	}
	return c.db.Close()
}
