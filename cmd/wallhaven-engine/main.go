package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nsinhame/wallhaven-engine/internal/cache"
	"github.com/nsinhame/wallhaven-engine/internal/config"
	"github.com/nsinhame/wallhaven-engine/internal/engine"
	"github.com/nsinhame/wallhaven-engine/internal/fetcher"
	"github.com/nsinhame/wallhaven-engine/internal/observability"
	"github.com/nsinhame/wallhaven-engine/internal/pipeline"
	"github.com/nsinhame/wallhaven-engine/internal/scheduler"
	"github.com/nsinhame/wallhaven-engine/internal/store"
	"github.com/nsinhame/wallhaven-engine/internal/telegram"
)

var (
	envFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wallhaven-engine",
		Short: "Wallhaven Engine — discovers and posts wallpapers to a chat group",
		Long: `Wallhaven Engine crawls a curated search index for new wallpapers per
category, deduplicates against a local and remote index, and posts
unique finds to a Telegram group as a preview album plus individual
HD documents.`,
	}

	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", "", "path to .env file (default: ./.env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine until interrupted",
		RunE:  runEngine,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wallhaven-engine %s\n", config.Version)
		},
	}
}

// runEngine loads and validates the config first, since the cache
// directory is a config value; it then creates the cache directory,
// installs the signal handlers, and wires HashCache, MetadataCache,
// StoreGateway, rehydration, the index log line, the Fetcher and the
// per-category Pipeline jobs. The maintenance jobs start inside
// Scheduler.Run.
func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hashes, err := cache.NewHashCache("wallhaven_cache.db", cfg.MaxHashRows)
	if err != nil {
		return fmt.Errorf("open hash cache: %w", err)
	}
	meta, err := cache.NewMetadataCache("wallhaven_metadata_cache.db", cfg.MaxMetaRows)
	if err != nil {
		return fmt.Errorf("open metadata cache: %w", err)
	}

	gateway, err := store.NewMongoGateway(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := scheduler.RehydrateMetadataIfEmpty(ctx, meta, gateway, logger); err != nil {
		logger.Error("metadata rehydration failed", "error", err)
	}

	logger.Info("store indexes required", "composite", "(category, status)", "single_field", "sha256")

	budget, err := engine.NewWriteBudget(meta.DB(), time.Duration(cfg.BudgetHours)*time.Hour, cfg.BudgetMax)
	if err != nil {
		return fmt.Errorf("init write budget: %w", err)
	}
	limiter := engine.NewRateLimiter(cfg.MaxRpm)
	tasks := engine.NewTaskTracker()

	searchClient, err := fetcher.NewClient(cfg.WallhavenBaseURL, cfg.WallhavenAPIKey)
	if err != nil {
		return fmt.Errorf("create search client: %w", err)
	}
	fetch := fetcher.New(searchClient, meta, gateway, budget, limiter, cfg.Categories, logger)

	sched := scheduler.New(hashes, meta, gateway, fetch, tasks, logger)

	tgClient := telegram.NewClient(cfg.TelegramBotToken, "")
	pipelineHTTP := &http.Client{Timeout: 60 * time.Second}

	for _, cat := range cfg.Categories {
		p := pipeline.New(cat.Name, cat.GroupID, cfg.CacheDir, pipelineHTTP, hashes, gateway, tgClient, tasks, sched.ShuttingDown, logger)
		sched.RegisterCategory(cat.Name, cat.Interval, p)
		logger.Info("registered category job", "category", cat.Name, "interval", cat.Interval, "terms", len(cat.Terms))
	}

	if cfg.Metrics.Enabled {
		metrics := observability.NewMetrics(logger)
		if err := metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	logger.Info("engine starting", "categories", len(cfg.Categories), "cache_dir", cfg.CacheDir)
	sched.Run(ctx)
	logger.Info("engine stopped")

	return nil
}

// setupLogger builds the process logger from the configured level/format,
// with --verbose forcing debug level regardless of LOG_LEVEL.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
