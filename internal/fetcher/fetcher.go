package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nsinhame/wallhaven-engine/internal/cache"
	"github.com/nsinhame/wallhaven-engine/internal/config"
	"github.com/nsinhame/wallhaven-engine/internal/engine"
	"github.com/nsinhame/wallhaven-engine/internal/store"
	"github.com/nsinhame/wallhaven-engine/internal/types"
)

// exclusions is the fixed deny-list of negative tags appended to every
// query for safety classification (SPEC_FULL.md 4.7 step 3).
const exclusions = "-gore -nsfw -porn -nude"

const defaultPageSize = 24

var shellUnsafe = regexp.MustCompile("[|&;<>$`\"\\\\]")

// Sanitize strips shell-unsafe characters and '#', then collapses
// whitespace in a raw search term (SPEC_FULL.md 4.7 step 3).
func Sanitize(term string) string {
	cleaned := shellUnsafe.ReplaceAllString(term, "")
	cleaned = strings.ReplaceAll(cleaned, "#", "")
	return strings.Join(strings.Fields(cleaned), " ")
}

// Fetcher drives the single, serial crawl across every configured
// category/term pair (SPEC_FULL.md 4.7). It is never invoked
// concurrently with itself — the Scheduler starts exactly one instance.
type Fetcher struct {
	client     *Client
	meta       *cache.MetadataCache
	gateway    store.Gateway
	budget     *engine.WriteBudget
	limiter    *engine.RateLimiter
	categories []config.CategoryConfig
	logger     *slog.Logger

	// pageSizes holds the per-(category,term) page size last observed
	// from a search response's meta.per_page (SPEC_FULL.md 4.7 step 2:
	// "observed dynamically from first response, default 24"). Safe
	// without locking — the Fetcher is never run concurrently with
	// itself.
	pageSizes map[string]int
}

// New builds a Fetcher over the shared metadata cache, store gateway,
// and governors the Scheduler has already constructed.
func New(client *Client, meta *cache.MetadataCache, gateway store.Gateway, budget *engine.WriteBudget, limiter *engine.RateLimiter, categories []config.CategoryConfig, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client:     client,
		meta:       meta,
		gateway:    gateway,
		budget:     budget,
		limiter:    limiter,
		categories: categories,
		logger:     logger.With("component", "fetcher"),
		pageSizes:  make(map[string]int),
	}
}

// pageSizeFor returns the last-observed page size for a (category, term)
// pair, or defaultPageSize if no response has been seen for it yet.
func (f *Fetcher) pageSizeFor(category, term string) int {
	if size, ok := f.pageSizes[types.CursorKey(category, term)]; ok && size > 0 {
		return size
	}
	return defaultPageSize
}

// Run is the infinite outer loop over categories → terms → rounds. It
// returns only when ctx is cancelled (SPEC_FULL.md 4.7, 4.9).
func (f *Fetcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		for _, cat := range f.categories {
			for _, term := range cat.Terms {
				if ctx.Err() != nil {
					return
				}
				f.runRound(ctx, cat.Name, term)
			}
		}
	}
}

// runRound performs one crawl round for a single (category, term) pair.
func (f *Fetcher) runRound(ctx context.Context, category, term string) {
	if !f.budget.Allow() {
		f.logger.Info("write budget exhausted, sleeping", "category", category, "term", term)
		f.sleepOrDone(ctx, time.Hour)
		return
	}

	cursor, err := f.gateway.GetCursor(ctx, category, term)
	if err != nil {
		f.logger.Error("load cursor failed", "category", category, "term", term, "error", err)
		return
	}
	if cursor == nil {
		cursor = types.DefaultCursor(category, term)
	}

	query := Sanitize(term) + " " + exclusions
	pageSize := f.pageSizeFor(category, term)
	page := (cursor.Skip+pageSize-1)/pageSize + 1

	var added, processed, duplicates, errCount int
	target := cursor.Target
	exhausted := false

	for {
		if ctx.Err() != nil {
			return
		}
		if added >= target {
			break
		}
		if processed >= 2*target {
			break
		}
		if !f.budget.Allow() {
			break
		}

		if err := f.limiter.Acquire(ctx); err != nil {
			return
		}

		resp, err := f.client.Search(ctx, query, page)
		if err != nil {
			f.handleSearchError(category, term, err)
			return
		}
		if len(resp.Data) == 0 {
			exhausted = true
			break
		}
		if resp.Meta.PerPage > 0 {
			f.pageSizes[types.CursorKey(category, term)] = resp.Meta.PerPage
		}

		for _, item := range resp.Data {
			if processed >= 2*target || added >= target {
				break
			}
			ok, isErr := f.processCandidate(ctx, category, term, item)
			processed++
			if isErr {
				errCount++
				f.logger.Warn("candidate failed, pausing", "category", category, "term", term, "id", item.ID)
				f.sleepOrDone(ctx, 30*time.Second)
				continue
			}
			if ok {
				added++
			} else {
				duplicates++
			}
		}

		page++
	}

	now := time.Now().Unix()
	switch {
	case added >= target:
		cursor.Advance(now)
	case exhausted:
		cursor.MarkExhausted(now)
	}
	if err := f.gateway.SetCursor(ctx, cursor); err != nil {
		f.logger.Error("persist cursor failed", "category", category, "term", term, "error", err)
	}

	f.logger.Info("round complete", "category", category, "term", term, "added", added, "duplicates", duplicates, "errors", errCount, "processed", processed)
}

// processCandidate handles one search-result item per SPEC_FULL.md 4.7
// step 6. It returns (newlyAdded, isError).
func (f *Fetcher) processCandidate(ctx context.Context, category, term string, item SearchItem) (bool, bool) {
	if item.ID == "" || item.URL == "" || item.Path == "" {
		return false, false
	}

	known, err := f.meta.Contains(item.ID)
	if err != nil {
		f.logger.Error("metadata cache lookup failed", "id", item.ID, "error", err)
		return false, true
	}
	if known {
		return false, false
	}

	existing, err := f.gateway.GetWallpaper(ctx, item.ID)
	if err != nil {
		f.logger.Error("store lookup failed", "id", item.ID, "error", err)
		return false, true
	}
	if existing != nil {
		if err := f.meta.Insert(item.ID, category, term, existing.CreatedAt); err != nil {
			f.logger.Error("metadata cache insert failed", "id", item.ID, "error", err)
		}
		return false, false
	}

	tags := make([]string, 0, len(item.Tags))
	for _, t := range item.Tags {
		tags = append(tags, t.Name)
	}
	purity := types.PuritySketchy
	if item.Purity == "safe" {
		purity = types.PuritySafe
	}

	now := time.Now().Unix()
	record := types.NewWallpaper(item.ID, category, term, item.URL, item.Path, tags, purity, now)

	if err := f.gateway.UpsertNew(ctx, record); err != nil {
		f.logger.Error("store upsert failed", "id", item.ID, "error", err)
		return false, true
	}
	if err := f.meta.Insert(item.ID, category, term, now); err != nil {
		f.logger.Error("metadata cache insert failed", "id", item.ID, "error", err)
	}
	if err := f.budget.Commit(); err != nil {
		f.logger.Error("write budget commit failed", "id", item.ID, "error", err)
	}

	return true, false
}

func (f *Fetcher) handleSearchError(category, term string, err error) {
	var netErr *types.TransientNetworkError
	switch {
	case errors.As(err, &netErr):
		f.logger.Warn("transient search error, aborting term", "category", category, "term", term, "error", err)
	case errors.Is(err, types.ErrAuthFailed):
		f.logger.Error("source API rejected credentials, aborting term", "category", category, "term", term, "error", err)
	default:
		f.logger.Error("search failed, aborting term", "category", category, "term", term, "error", err)
	}
}

func (f *Fetcher) sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
