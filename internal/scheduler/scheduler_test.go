package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nsinhame/wallhaven-engine/internal/cache"
	"github.com/nsinhame/wallhaven-engine/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeScanGateway struct {
	rows []cache.MetaRow
}

func (g *fakeScanGateway) GetWallpaper(ctx context.Context, id string) (*types.Wallpaper, error) {
	return nil, nil
}
func (g *fakeScanGateway) UpsertNew(ctx context.Context, w *types.Wallpaper) error { return nil }
func (g *fakeScanGateway) QueryPending(ctx context.Context, category string, limit int) ([]*types.Wallpaper, error) {
	return nil, nil
}
func (g *fakeScanGateway) UpdateStatus(ctx context.Context, update types.StatusUpdate) error {
	return nil
}
func (g *fakeScanGateway) GetCursor(ctx context.Context, category, term string) (*types.Cursor, error) {
	return nil, nil
}
func (g *fakeScanGateway) SetCursor(ctx context.Context, c *types.Cursor) error { return nil }
func (g *fakeScanGateway) ScanMetadata(ctx context.Context, fn func(id, category, term string, createdAt int64) error) error {
	for _, r := range g.rows {
		if err := fn(r.ID, r.Category, r.Term, r.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}
func (g *fakeScanGateway) FindByHash(ctx context.Context, sha256 string) (*types.Wallpaper, error) {
	return nil, nil
}
func (g *fakeScanGateway) Close(ctx context.Context) error { return nil }

func TestRehydrateMetadataIfEmptyPopulatesFromStore(t *testing.T) {
	meta, err := cache.NewMetadataCache(filepath.Join(t.TempDir(), "meta.db"), 1000)
	if err != nil {
		t.Fatalf("new metadata cache: %v", err)
	}
	defer meta.Close()

	gateway := &fakeScanGateway{rows: []cache.MetaRow{
		{ID: "w1", Category: "nature", Term: "forest", CreatedAt: 1},
		{ID: "w2", Category: "nature", Term: "forest", CreatedAt: 2},
	}}

	if err := RehydrateMetadataIfEmpty(context.Background(), meta, gateway, testLogger); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	count, err := meta.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows after rehydrate, got %d", count)
	}
}

func TestRehydrateMetadataIfEmptySkipsWhenNotEmpty(t *testing.T) {
	meta, err := cache.NewMetadataCache(filepath.Join(t.TempDir(), "meta.db"), 1000)
	if err != nil {
		t.Fatalf("new metadata cache: %v", err)
	}
	defer meta.Close()

	if err := meta.Insert("existing", "nature", "forest", 1); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	gateway := &fakeScanGateway{rows: []cache.MetaRow{{ID: "w1", Category: "nature", Term: "forest", CreatedAt: 1}}}

	if err := RehydrateMetadataIfEmpty(context.Background(), meta, gateway, testLogger); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	count, err := meta.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rehydrate to be skipped, count=%d", count)
	}
}
