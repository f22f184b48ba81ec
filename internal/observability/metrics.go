// Package observability exposes operational metrics in Prometheus
// format, re-expressed from the teacher's hand-rolled text-exposition
// Metrics type onto github.com/prometheus/client_golang.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters/gauges for the Fetcher and Pipeline
// subsystems, matching the teacher's requests/responses/items/workers
// groupings but renamed to this domain's operations.
type Metrics struct {
	SearchRequestsTotal  prometheus.Counter
	SearchErrorsTotal    *prometheus.CounterVec
	WallpapersFoundTotal prometheus.Counter
	DuplicatesSkipped    prometheus.Counter
	WriteBudgetRemaining prometheus.Gauge

	PipelineRunsTotal     *prometheus.CounterVec
	DownloadFailuresTotal prometheus.Counter
	UploadsPostedTotal    prometheus.Counter
	UploadsFailedTotal    *prometheus.CounterVec
	ActiveTasks           prometheus.Gauge

	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewMetrics registers every metric against a dedicated registry (not
// the global default) so tests can construct independent instances.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		SearchRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallhaven_engine_search_requests_total",
			Help: "Total search API requests issued by the Fetcher.",
		}),
		SearchErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallhaven_engine_search_errors_total",
			Help: "Total search API errors by class (auth, transient, other).",
		}, []string{"class"}),
		WallpapersFoundTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallhaven_engine_wallpapers_found_total",
			Help: "Total new wallpaper records committed by the Fetcher.",
		}),
		DuplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallhaven_engine_duplicates_skipped_total",
			Help: "Total candidates skipped as already-known by the Fetcher.",
		}),
		WriteBudgetRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wallhaven_engine_write_budget_remaining",
			Help: "Remaining writes allowed in the current budget period.",
		}),
		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallhaven_engine_pipeline_runs_total",
			Help: "Total Pipeline invocations by category.",
		}, []string{"category"}),
		DownloadFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallhaven_engine_download_failures_total",
			Help: "Total download failures after retry exhaustion.",
		}),
		UploadsPostedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallhaven_engine_uploads_posted_total",
			Help: "Total wallpapers successfully posted to the chat group.",
		}),
		UploadsFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallhaven_engine_uploads_failed_total",
			Help: "Total upload failures by stage (preview, hd).",
		}, []string{"stage"}),
		ActiveTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wallhaven_engine_active_tasks",
			Help: "Current size of the active-task set.",
		}),
		registry: reg,
		logger:   logger.With("component", "metrics"),
	}
}

// Handler returns the HTTP handler serving this instance's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server on a background goroutine
// and shuts it down when ctx is cancelled, mirroring the teacher's
// StartServer (dedicated mux, /health endpoint).
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	return nil
}
