// Package scheduler wires the cache, store, fetcher, and pipeline
// components into the running daemon and owns its lifecycle: startup
// ordering, per-category periodic jobs, daily/weekly maintenance, and
// graceful shutdown (SPEC_FULL.md 4.9).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nsinhame/wallhaven-engine/internal/cache"
	"github.com/nsinhame/wallhaven-engine/internal/engine"
	"github.com/nsinhame/wallhaven-engine/internal/fetcher"
	"github.com/nsinhame/wallhaven-engine/internal/pipeline"
	"github.com/nsinhame/wallhaven-engine/internal/store"
)

const (
	dailyCleanupInterval = 24 * time.Hour
	weeklyMaintInterval  = 7 * 24 * time.Hour
	shutdownPollInterval = time.Second
)

// Scheduler is the Engine aggregate: it owns every long-lived
// component, starts the Fetcher and per-category Pipeline jobs, and
// drives the cooperative shutdown sequence described in SPEC_FULL.md
// 4.9. Grounded on the teacher's internal/engine/engine.go Start/Wait/
// Stop lifecycle, adapted from a worker-pool crawl engine to a single
// Fetcher plus N periodic Pipeline jobs.
type Scheduler struct {
	hashes   *cache.HashCache
	meta     *cache.MetadataCache
	gateway  store.Gateway
	fetch    *fetcher.Fetcher
	tasks    *engine.TaskTracker
	logger   *slog.Logger

	categoryJobs []*categoryJob

	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

type categoryJob struct {
	name     string
	interval time.Duration
	pipeline *pipeline.Pipeline
}

// New assembles a Scheduler from its already-constructed components.
// Per-category Pipeline jobs are added afterwards with RegisterCategory,
// one per configured category (SPEC_FULL.md 4.9: "register one periodic
// Pipeline job per category at its configured interval").
func New(hashes *cache.HashCache, meta *cache.MetadataCache, gateway store.Gateway, fetch *fetcher.Fetcher, tasks *engine.TaskTracker, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		hashes:  hashes,
		meta:    meta,
		gateway: gateway,
		fetch:   fetch,
		tasks:   tasks,
		logger:  logger.With("component", "scheduler"),
	}
}

// RegisterCategory adds a periodic Pipeline job. max_instances=1 is
// guaranteed by categoryJob.run never overlapping itself — the ticker
// loop waits for the previous invocation to return before sleeping for
// the next interval. A time.Ticker buffers at most one pending tick, so
// a slow invocation coalesces any fires it caused to be missed rather
// than queuing a backlog (SPEC_FULL.md 4.9: "coalesce pending fires",
// "misfire grace 60s").
func (s *Scheduler) RegisterCategory(name string, interval time.Duration, p *pipeline.Pipeline) {
	s.categoryJobs = append(s.categoryJobs, &categoryJob{name: name, interval: interval, pipeline: p})
}

// ShuttingDown reports whether shutdown has been requested. Pipeline
// instances poll this at invocation start; Fetcher's inner loops poll
// the ctx passed to Run instead, which the signal handler cancels.
func (s *Scheduler) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Run starts the Fetcher task, every registered category job, and the
// daily/weekly maintenance jobs, then blocks until ctx is cancelled —
// typically by signal.NotifyContext in cmd/wallhaven-engine. It
// performs the graceful shutdown sequence before returning.
func (s *Scheduler) Run(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fetch.Run(ctx)
	}()

	for _, job := range s.categoryJobs {
		s.wg.Add(1)
		go s.runCategoryJob(ctx, job)
	}

	s.wg.Add(1)
	go s.runMaintenance(ctx, "daily cleanup", dailyCleanupInterval, s.runCleanup)
	s.wg.Add(1)
	go s.runMaintenance(ctx, "weekly maintenance", weeklyMaintInterval, s.runWeeklyMaintenance)

	s.pollShutdown(ctx)
}

// pollShutdown implements SPEC_FULL.md 4.9's shutdown sequence: poll
// the cancellation signal every second, flip the shared flag so new
// Pipeline invocations decline to start, await every task in the
// active-task set with exception tolerance, then close both cache
// databases (each runs ANALYZE + vacuum before close).
func (s *Scheduler) pollShutdown(ctx context.Context) {
	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				s.shutdown()
				return
			}
		}
	}
}

func (s *Scheduler) shutdown() {
	s.shuttingDown.Store(true)
	s.logger.Info("shutdown requested, awaiting active tasks", "active", s.tasks.Names())

	s.wg.Wait()

	if err := s.hashes.Close(); err != nil {
		s.logger.Error("hash cache close failed", "error", err)
	}
	if err := s.meta.Close(); err != nil {
		s.logger.Error("metadata cache close failed", "error", err)
	}
	if err := s.gateway.Close(context.Background()); err != nil {
		s.logger.Error("store gateway close failed", "error", err)
	}

	s.logger.Info("shutdown complete")
}

// runCategoryJob is the per-category ticker loop. It never invokes the
// Pipeline concurrently with itself: the next tick only arms after the
// previous invocation returns, which is what gives max_instances=1 and
// fire-coalescing for free with a plain ticker.
func (s *Scheduler) runCategoryJob(ctx context.Context, job *categoryJob) {
	defer s.wg.Done()

	const misfireGrace = 60 * time.Second

	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			if s.ShuttingDown() {
				return
			}
			if time.Since(tick) > misfireGrace {
				continue
			}
			job.pipeline.Run(ctx)
		}
	}
}

func (s *Scheduler) runMaintenance(ctx context.Context, name string, interval time.Duration, fn func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.ShuttingDown() {
				return
			}
			s.logger.Info("running maintenance job", "job", name)
			fn()
		}
	}
}

func (s *Scheduler) runCleanup() {
	if err := s.hashes.Cleanup(); err != nil {
		s.logger.Error("hash cache cleanup failed", "error", err)
	}
	if err := s.meta.Cleanup(); err != nil {
		s.logger.Error("metadata cache cleanup failed", "error", err)
	}
}

func (s *Scheduler) runWeeklyMaintenance() {
	if err := s.hashes.IntegrityCheck(); err != nil {
		s.logger.Error("hash cache integrity check failed", "error", err)
	}
	if err := s.meta.IntegrityCheck(); err != nil {
		s.logger.Error("metadata cache integrity check failed", "error", err)
	}
}

// RehydrateMetadataIfEmpty implements SPEC_FULL.md 4.9's startup step
// "rehydrate MetadataCache from store if empty": on a fresh cache
// directory the local index is rebuilt from the authoritative store
// via ScanMetadata before the Fetcher starts, so duplicate-detection
// doesn't silently pass through content the store already knows about.
func RehydrateMetadataIfEmpty(ctx context.Context, meta *cache.MetadataCache, gateway store.Gateway, logger *slog.Logger) error {
	count, err := meta.Count()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	logger.Info("metadata cache empty, rehydrating from store")
	var rows []cache.MetaRow
	err = gateway.ScanMetadata(ctx, func(id, category, term string, createdAt int64) error {
		rows = append(rows, cache.MetaRow{ID: id, Category: category, Term: term, CreatedAt: createdAt})
		return nil
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	logger.Info("rehydrating metadata cache", "rows", len(rows))
	return meta.BulkLoad(rows)
}
