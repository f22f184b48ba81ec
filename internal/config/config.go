// Package config loads the engine's environment-driven configuration:
// store credentials, bot token, source API key, and the per-category
// posting schedule (SPEC_FULL.md 6, "CLI / configuration").
package config

import "time"

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration.
type Config struct {
	CacheDir         string `mapstructure:"cache_dir"`
	FirebaseCreds    string `mapstructure:"firebase_credentials"`
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	WallhavenAPIKey  string `mapstructure:"wallhaven_api_key"`
	WallhavenBaseURL string `mapstructure:"wallhaven_base_url"`
	MongoURI         string `mapstructure:"mongo_uri"`
	MongoDatabase    string `mapstructure:"mongo_database"`

	Categories []CategoryConfig `mapstructure:"-"`

	MaxHashRows int `mapstructure:"max_hash_rows"`
	MaxMetaRows int `mapstructure:"max_meta_rows"`
	MaxRpm      int `mapstructure:"max_rpm"`
	BudgetMax   int `mapstructure:"budget_max_adds"`
	BudgetHours int `mapstructure:"budget_period_hours"`

	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// CategoryConfig is one `CATEGORY_N` line: `name | group_id |
// interval_seconds | term1, term2, ...` (SPEC_FULL.md 6).
type CategoryConfig struct {
	Name     string
	GroupID  int64
	Interval time.Duration
	Terms    []string
}

// LoggingConfig controls the slog handler (SPEC_FULL.md 10).
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// DefaultConfig returns the baseline values Load starts from before
// environment overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		CacheDir:         "./wall-cache",
		WallhavenBaseURL: "https://wallhaven.cc",
		MongoDatabase:    "wallhaven",
		MaxHashRows:      1_000_000,
		MaxMetaRows:      500_000,
		MaxRpm:           40,
		BudgetMax:        2000,
		BudgetHours:      28,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
