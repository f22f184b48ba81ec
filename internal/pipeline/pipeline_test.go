package pipeline

import (
	"context"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/nsinhame/wallhaven-engine/internal/cache"
	"github.com/nsinhame/wallhaven-engine/internal/engine"
	"github.com/nsinhame/wallhaven-engine/internal/telegram"
	"github.com/nsinhame/wallhaven-engine/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeGateway is a minimal in-memory store.Gateway for Pipeline tests.
type fakeGateway struct {
	mu       sync.Mutex
	pending  []*types.Wallpaper
	statuses []types.StatusUpdate
	byHash   map[string]*types.Wallpaper
}

func newFakeGateway(pending []*types.Wallpaper) *fakeGateway {
	return &fakeGateway{pending: pending, byHash: make(map[string]*types.Wallpaper)}
}

func (g *fakeGateway) GetWallpaper(ctx context.Context, id string) (*types.Wallpaper, error) {
	return nil, nil
}
func (g *fakeGateway) UpsertNew(ctx context.Context, w *types.Wallpaper) error { return nil }
func (g *fakeGateway) QueryPending(ctx context.Context, category string, limit int) ([]*types.Wallpaper, error) {
	return g.pending, nil
}
func (g *fakeGateway) UpdateStatus(ctx context.Context, update types.StatusUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses = append(g.statuses, update)
	return nil
}
func (g *fakeGateway) GetCursor(ctx context.Context, category, term string) (*types.Cursor, error) {
	return nil, nil
}
func (g *fakeGateway) SetCursor(ctx context.Context, c *types.Cursor) error { return nil }
func (g *fakeGateway) ScanMetadata(ctx context.Context, fn func(id, category, term string, createdAt int64) error) error {
	return nil
}
func (g *fakeGateway) FindByHash(ctx context.Context, sha256 string) (*types.Wallpaper, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byHash[sha256], nil
}
func (g *fakeGateway) Close(ctx context.Context) error { return nil }

func newTestHashCache(t *testing.T) *cache.HashCache {
	t.Helper()
	hc, err := cache.NewHashCache(t.TempDir()+"/hash.db", 1000)
	if err != nil {
		t.Fatalf("new hash cache: %v", err)
	}
	t.Cleanup(func() { hc.Close() })
	return hc
}

func newFakeImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		w.Header().Set("Content-Type", "image/jpeg")
		jpeg.Encode(w, img, nil)
	}))
}

func newFakeTelegramServer(t *testing.T, ok bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.Write([]byte(`{"ok":false,"description":"boom"}`))
			return
		}
		if len(r.URL.Path) > 0 && r.URL.Path[len(r.URL.Path)-len("sendMediaGroup"):] == "sendMediaGroup" {
			w.Write([]byte(`{"ok":true,"result":[{"message_id":1,"date":100}]}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":2,"date":101}}`))
	}))
}

func TestPipelineRunPostsSingleItem(t *testing.T) {
	imgSrv := newFakeImageServer(t)
	defer imgSrv.Close()
	tgSrv := newFakeTelegramServer(t, true)
	defer tgSrv.Close()

	gateway := newFakeGateway([]*types.Wallpaper{
		types.NewWallpaper("w1", "nature", "forest", "https://example.com/w1", imgSrv.URL+"/w1.jpg", []string{"forest"}, types.PuritySafe, 0),
	})

	hashes := newTestHashCache(t)
	tasks := engine.NewTaskTracker()
	tg := telegram.NewClient("test-token", tgSrv.URL)

	p := New("nature", 555, t.TempDir(), imgSrv.Client(), hashes, gateway, tg, tasks, func() bool { return false }, testLogger)
	p.Run(context.Background())

	if len(gateway.statuses) != 1 {
		t.Fatalf("expected 1 status update, got %d", len(gateway.statuses))
	}
	posted, ok := gateway.statuses[0].(types.PostedUpdate)
	if !ok {
		t.Fatalf("expected PostedUpdate, got %T", gateway.statuses[0])
	}
	if posted.ID != "w1" || posted.SHA256 == "" {
		t.Fatalf("unexpected posted update: %+v", posted)
	}
	if tasks.Count() != 0 {
		t.Fatalf("expected task tracker to be empty after Run, got %d", tasks.Count())
	}
}

func TestPipelineRunSkipsWhenEmptyPending(t *testing.T) {
	gateway := newFakeGateway(nil)
	hashes := newTestHashCache(t)
	tasks := engine.NewTaskTracker()
	tg := telegram.NewClient("test-token", "http://unused.invalid")

	p := New("nature", 555, t.TempDir(), http.DefaultClient, hashes, gateway, tg, tasks, func() bool { return false }, testLogger)
	p.Run(context.Background())

	if len(gateway.statuses) != 0 {
		t.Fatalf("expected no status updates, got %d", len(gateway.statuses))
	}
}

func TestPipelineRunSkipsWhenShutdownRequested(t *testing.T) {
	gateway := newFakeGateway([]*types.Wallpaper{
		types.NewWallpaper("w1", "nature", "forest", "https://example.com/w1", "https://example.com/w1.jpg", nil, types.PuritySafe, 0),
	})
	hashes := newTestHashCache(t)
	tasks := engine.NewTaskTracker()
	tg := telegram.NewClient("test-token", "http://unused.invalid")

	p := New("nature", 555, t.TempDir(), http.DefaultClient, hashes, gateway, tg, tasks, func() bool { return true }, testLogger)
	p.Run(context.Background())

	if len(gateway.statuses) != 0 {
		t.Fatalf("expected no work when shutdown requested, got %d status updates", len(gateway.statuses))
	}
}

func TestPipelineRunFailsOnPreviewUploadError(t *testing.T) {
	imgSrv := newFakeImageServer(t)
	defer imgSrv.Close()
	tgSrv := newFakeTelegramServer(t, false)
	defer tgSrv.Close()

	gateway := newFakeGateway([]*types.Wallpaper{
		types.NewWallpaper("w1", "nature", "forest", "https://example.com/w1", imgSrv.URL+"/w1.jpg", nil, types.PuritySafe, 0),
	})
	hashes := newTestHashCache(t)
	tasks := engine.NewTaskTracker()
	tg := telegram.NewClient("test-token", tgSrv.URL)

	p := New("nature", 555, t.TempDir(), imgSrv.Client(), hashes, gateway, tg, tasks, func() bool { return false }, testLogger)
	p.Run(context.Background())

	if len(gateway.statuses) != 1 {
		t.Fatalf("expected 1 status update, got %d", len(gateway.statuses))
	}
	failed, ok := gateway.statuses[0].(types.FailedUpdate)
	if !ok || failed.Reason != "Telegram upload failed" {
		t.Fatalf("expected preview-failed update, got %+v", gateway.statuses[0])
	}
}
