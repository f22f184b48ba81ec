package engine

import (
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// WriteBudget is the sliding-window global governor limiting new
// wallpaper inserts per rolling period (SPEC_FULL.md 3 and 4.3). It
// persists a singleton row in the caller-supplied database — the same
// SQLite handle backing MetadataCache, so the process's two on-disk
// files (section 6) stay at two, not three.
type WriteBudget struct {
	db     *sql.DB
	period time.Duration
	maxAdd int

	mu          sync.Mutex
	periodStart int64
	added       int
}

// NewWriteBudget opens (or creates) the write_budget table and loads its
// singleton row, initializing one if none exists.
func NewWriteBudget(db *sql.DB, period time.Duration, maxAdds int) (*WriteBudget, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS write_budget (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		period_start INTEGER NOT NULL,
		added INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("write_budget schema: %w", err)
	}

	wb := &WriteBudget{db: db, period: period, maxAdd: maxAdds}

	row := db.QueryRow(`SELECT period_start, added FROM write_budget WHERE id = 1`)
	switch err := row.Scan(&wb.periodStart, &wb.added); err {
	case nil:
		// existing singleton row loaded
	case sql.ErrNoRows:
		wb.periodStart = time.Now().Unix()
		wb.added = 0
		if _, err := db.Exec(
			`INSERT INTO write_budget (id, period_start, added) VALUES (1, ?, ?)`,
			wb.periodStart, wb.added,
		); err != nil {
			return nil, fmt.Errorf("write_budget seed row: %w", err)
		}
	default:
		return nil, fmt.Errorf("write_budget load: %w", err)
	}

	return wb, nil
}

// rollIfExpired resets the counters atomically once the rolling period
// has elapsed. Caller must hold wb.mu.
func (wb *WriteBudget) rollIfExpired(now int64) {
	if now-wb.periodStart >= int64(wb.period.Seconds()) {
		wb.periodStart = now
		wb.added = 0
	}
}

// Allow is a pure check: does the budget currently permit another add?
func (wb *WriteBudget) Allow() bool {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	wb.rollIfExpired(time.Now().Unix())
	return wb.added < wb.maxAdd
}

// Commit records one new wallpaper insert and persists the counter
// update within the same critical section.
func (wb *WriteBudget) Commit() error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	wb.rollIfExpired(time.Now().Unix())
	wb.added++

	_, err := wb.db.Exec(
		`UPDATE write_budget SET period_start = ?, added = ? WHERE id = 1`,
		wb.periodStart, wb.added,
	)
	return err
}

// Snapshot returns the current window state for logging/diagnostics.
func (wb *WriteBudget) Snapshot() (periodStart int64, added, maxAdds int) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	wb.rollIfExpired(time.Now().Unix())
	return wb.periodStart, wb.added, wb.maxAdd
}
