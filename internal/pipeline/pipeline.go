// Package pipeline implements the per-category posting cycle: select
// pending records, download, validate, hash, dedup, upload, persist
// (SPEC_FULL.md 4.8).
package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/nsinhame/wallhaven-engine/internal/cache"
	"github.com/nsinhame/wallhaven-engine/internal/engine"
	"github.com/nsinhame/wallhaven-engine/internal/store"
	"github.com/nsinhame/wallhaven-engine/internal/telegram"
	"github.com/nsinhame/wallhaven-engine/internal/types"
)

const sampleSize = 3
const sendSpacing = 500 * time.Millisecond
const interPhaseSleep = 3 * time.Second
const noPendingLimit = 0

// Pipeline moves up to 3 randomly-sampled pending records for one
// category from link_added toward a terminal state (SPEC_FULL.md 4.8).
// A single instance is invoked once per scheduler tick for its
// category; max_instances=1 at the Scheduler layer guarantees no
// re-entry while an invocation is still running.
type Pipeline struct {
	category string
	groupID  int64
	cacheDir string
	httpClt  *http.Client
	hashes   *cache.HashCache
	gateway  store.Gateway
	telegram *telegram.Client
	tasks    *engine.TaskTracker
	shutdown func() bool
	logger   *slog.Logger
}

// New builds a Pipeline bound to one category and its Telegram group.
func New(category string, groupID int64, cacheDir string, httpClt *http.Client, hashes *cache.HashCache, gateway store.Gateway, tg *telegram.Client, tasks *engine.TaskTracker, shutdown func() bool, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		category: category,
		groupID:  groupID,
		cacheDir: cacheDir,
		httpClt:  httpClt,
		hashes:   hashes,
		gateway:  gateway,
		telegram: tg,
		tasks:    tasks,
		shutdown: shutdown,
		logger:   logger.With("component", "pipeline", "category", category),
	}
}

type batchItem struct {
	wallpaper *types.Wallpaper
	localPath string
	thumbnail []byte
	sha256    string
}

// Run executes one Pipeline invocation (SPEC_FULL.md 4.8).
func (p *Pipeline) Run(ctx context.Context) {
	if p.shutdown != nil && p.shutdown() {
		return
	}

	done := p.tasks.Start("pipeline:" + p.category)
	defer done()

	var downloadedFiles []string
	defer func() {
		for _, f := range downloadedFiles {
			os.Remove(f)
		}
		runtime.GC()
	}()

	// noPendingLimit: SampleRandom must draw from the full pending set
	// (spec.md 4.8 step 2: "QueryPending(category, *) and sample 3 ...
	// uniformly at random"), not an arbitrary slice of it — a nonzero
	// cap here would bias the sample toward whatever order the store
	// happens to return. MongoGateway.QueryPending treats limit=0 as
	// unlimited (options.Find().SetLimit(0) applies no limit).
	pending, err := p.gateway.QueryPending(ctx, p.category, noPendingLimit)
	if err != nil {
		p.logger.Error("query pending failed", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	sample := store.SampleRandom(pending, sampleSize)
	batch := make([]batchItem, 0, len(sample))

	for _, w := range sample {
		if ctx.Err() != nil {
			return
		}
		item, files, ok := p.processItem(ctx, w)
		downloadedFiles = append(downloadedFiles, files...)
		if ok {
			batch = append(batch, item)
		}
	}

	if len(batch) == 0 {
		p.logger.Info("no deliverable items this invocation")
		return
	}

	p.deliver(ctx, batch)
}

// processItem runs download -> validate -> thumbnail -> hash -> dedup
// for one sampled record, persisting a failed/skipped terminal status
// itself when the item doesn't make it into the delivery batch. It
// returns the accumulated local files for invocation-wide cleanup
// regardless of outcome.
func (p *Pipeline) processItem(ctx context.Context, w *types.Wallpaper) (batchItem, []string, bool) {
	localPath, err := downloadItem(ctx, p.httpClt, p.cacheDir, w.ImageURL)
	if err != nil {
		p.logger.Warn("download failed", "id", w.WallpaperID, "error", err)
		p.fail(ctx, w.WallpaperID, "Download failed", "")
		return batchItem{}, nil, false
	}
	files := []string{localPath}

	if err := validateDimensions(localPath); err != nil {
		p.logger.Warn("dimension validation failed", "id", w.WallpaperID, "error", err)
		p.fail(ctx, w.WallpaperID, "Invalid dimensions for Telegram", "")
		return batchItem{}, files, false
	}

	thumb, _ := maybeThumbnail(localPath)

	sha, err := hashFile(localPath)
	if err != nil {
		p.logger.Warn("hashing failed", "id", w.WallpaperID, "error", err)
		p.fail(ctx, w.WallpaperID, "Hashing failed", "")
		return batchItem{}, files, false
	}

	if matchedID, dup := checkDuplicate(ctx, p.hashes, p.gateway, p.logger, sha); dup {
		update := types.SkippedUpdate{ID: w.WallpaperID, MatchedID: matchedID, Reason: "exact content match"}
		if err := p.gateway.UpdateStatus(ctx, update); err != nil {
			p.logger.Error("persist skipped status failed", "id", w.WallpaperID, "error", err)
		}
		return batchItem{}, files, false
	}

	return batchItem{wallpaper: w, localPath: localPath, thumbnail: thumb, sha256: sha}, files, true
}

// deliver sends the preview album, then the individual HD documents,
// then persists a terminal status per item (SPEC_FULL.md 4.8 steps 5-8).
func (p *Pipeline) deliver(ctx context.Context, batch []batchItem) {
	previewItems := make([]telegram.MediaItem, len(batch))
	for i, b := range batch {
		previewItems[i] = telegram.MediaItem{WallpaperID: b.wallpaper.WallpaperID, Path: b.localPath}
	}

	previewResults, err := p.telegram.SendMediaGroup(ctx, p.groupID, previewItems)
	if err != nil {
		p.logger.Error("preview album send failed", "error", err, "batch_size", len(batch))
		for _, b := range batch {
			p.fail(ctx, b.wallpaper.WallpaperID, "Telegram upload failed", b.sha256)
		}
		return
	}

	sleepOrDone(ctx, interPhaseSleep)

	for i, b := range batch {
		if i > 0 {
			sleepOrDone(ctx, sendSpacing)
		}

		preview := telegram.Result{}
		if i < len(previewResults) {
			preview = previewResults[i]
		}

		hdResult, err := p.telegram.SendDocument(ctx, p.groupID, telegram.MediaItem{
			WallpaperID: b.wallpaper.WallpaperID,
			Path:        b.localPath,
			Thumbnail:   b.thumbnail,
		})

		response := types.TelegramResponse{
			GroupID:   p.groupID,
			AlbumSize: len(batch),
			Preview:   types.TelegramPart{Success: preview.MessageID != 0, MessageID: preview.MessageID, SentAt: time.Now()},
		}

		if err != nil {
			p.logger.Error("HD upload failed", "id", b.wallpaper.WallpaperID, "error", err)
			response.HD = types.TelegramPart{Success: false}
			update := types.FailedUpdate{ID: b.wallpaper.WallpaperID, SHA256: b.sha256, Reason: "HD upload failed", Telegram: &response}
			if err := p.gateway.UpdateStatus(ctx, update); err != nil {
				p.logger.Error("persist failed status failed", "id", b.wallpaper.WallpaperID, "error", err)
			}
			continue
		}

		response.HD = types.TelegramPart{Success: true, MessageID: hdResult.MessageID, SentAt: time.Now()}

		if !response.Preview.Success {
			update := types.FailedUpdate{ID: b.wallpaper.WallpaperID, SHA256: b.sha256, Reason: "preview upload failed", Telegram: &response}
			if err := p.gateway.UpdateStatus(ctx, update); err != nil {
				p.logger.Error("persist failed status failed", "id", b.wallpaper.WallpaperID, "error", err)
			}
			continue
		}

		update := types.PostedUpdate{ID: b.wallpaper.WallpaperID, SHA256: b.sha256, Telegram: response}
		if err := p.gateway.UpdateStatus(ctx, update); err != nil {
			p.logger.Error("persist posted status failed", "id", b.wallpaper.WallpaperID, "error", err)
		}
		rememberHash(p.hashes, p.logger, b.sha256, b.wallpaper.WallpaperID)
	}
}

func (p *Pipeline) fail(ctx context.Context, id, reason, sha string) {
	update := types.FailedUpdate{ID: id, SHA256: sha, Reason: reason}
	if err := p.gateway.UpdateStatus(ctx, update); err != nil {
		p.logger.Error("persist failed status failed", "id", id, "error", err)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
