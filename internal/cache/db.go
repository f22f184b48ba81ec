// Package cache implements the two on-disk SQLite caches the engine
// consults before ever reaching the network or the document store:
// HashCache (content-hash dedup) and MetadataCache (known-id dedup,
// rehydrated from the store on cold start). Both follow the same
// LRU-style eviction discipline (SPEC_FULL.md 4.1, 4.2).
package cache

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// openPragmatic opens path with the pragmas spec.md 9 calls for: stability
// over throughput. A long-running daemon that can be killed at any
// moment (SIGKILL, OOM) must never hand back a torn database, so this
// trades the write throughput a WAL/NORMAL-sync configuration would give
// for a journal mode and sync level that survive a hard kill cleanly.
func openPragmatic(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = FULL",
		"PRAGMA cache_size = -2000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	return db, nil
}
