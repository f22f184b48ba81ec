// Package store implements StoreGateway, the thin quota-aware contract
// over the document store that both the Fetcher and Pipeline treat as
// the single source of truth (SPEC_FULL.md 4.5).
package store

import (
	"context"
	"math/rand/v2"

	"github.com/nsinhame/wallhaven-engine/internal/types"
)

// Gateway is the contract SPEC_FULL.md 4.5 names. MongoGateway is the
// only implementation; the interface exists so the Fetcher and Pipeline
// depend on behavior, not on the mongo-driver types directly.
type Gateway interface {
	GetWallpaper(ctx context.Context, id string) (*types.Wallpaper, error)
	UpsertNew(ctx context.Context, w *types.Wallpaper) error
	// QueryPending returns link_added records for category. limit=0
	// means unlimited — callers sampling over "the full pending set"
	// (spec.md 4.8) must pass 0, not an arbitrary cap.
	QueryPending(ctx context.Context, category string, limit int) ([]*types.Wallpaper, error)
	UpdateStatus(ctx context.Context, update types.StatusUpdate) error
	GetCursor(ctx context.Context, category, term string) (*types.Cursor, error)
	SetCursor(ctx context.Context, c *types.Cursor) error
	ScanMetadata(ctx context.Context, fn func(id, category, term string, createdAt int64) error) error
	FindByHash(ctx context.Context, sha256 string) (*types.Wallpaper, error)
	Close(ctx context.Context) error
}

// SampleRandom draws up to n elements from rows uniformly at random
// without replacement. It is caller-side sampling over an
// already-bounded result set, per SPEC_FULL.md 4.5 — the store itself
// is never asked to sample.
func SampleRandom[T any](rows []T, n int) []T {
	if n >= len(rows) {
		out := make([]T, len(rows))
		copy(out, rows)
		return out
	}

	shuffled := make([]T, len(rows))
	copy(shuffled, rows)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}
