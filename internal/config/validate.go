package config

import (
	"fmt"

	"github.com/nsinhame/wallhaven-engine/internal/types"
)

// Validate checks the configuration for invalid or missing required
// values (SPEC_FULL.md 6, 7 — ConfigError is fatal).
func Validate(cfg *Config) error {
	if len(cfg.TelegramBotToken) < 20 {
		return &types.ConfigError{Field: "TELEGRAM_BOT_TOKEN", Err: fmt.Errorf("must be at least 20 characters")}
	}
	if cfg.WallhavenAPIKey == "" {
		return &types.ConfigError{Field: "WALLHAVEN_API_KEY", Err: fmt.Errorf("required")}
	}
	if cfg.MongoURI == "" {
		return &types.ConfigError{Field: "MONGO_URI", Err: fmt.Errorf("required")}
	}
	if len(cfg.Categories) == 0 {
		return &types.ConfigError{Field: "CATEGORY_1", Err: fmt.Errorf("at least one category is required")}
	}

	seen := make(map[string]bool, len(cfg.Categories))
	for _, c := range cfg.Categories {
		if seen[c.Name] {
			return &types.ConfigError{Field: "CATEGORY_*", Err: fmt.Errorf("duplicate category name %q", c.Name)}
		}
		seen[c.Name] = true
	}

	if cfg.MaxHashRows <= 0 {
		return &types.ConfigError{Field: "MAX_HASH_ROWS", Err: fmt.Errorf("must be > 0")}
	}
	if cfg.MaxMetaRows <= 0 {
		return &types.ConfigError{Field: "MAX_META_ROWS", Err: fmt.Errorf("must be > 0")}
	}
	if cfg.MaxRpm <= 0 {
		return &types.ConfigError{Field: "MAX_RPM", Err: fmt.Errorf("must be > 0")}
	}
	if cfg.BudgetMax <= 0 {
		return &types.ConfigError{Field: "BUDGET_MAX_ADDS", Err: fmt.Errorf("must be > 0")}
	}
	if cfg.BudgetHours <= 0 {
		return &types.ConfigError{Field: "BUDGET_PERIOD_HOURS", Err: fmt.Errorf("must be > 0")}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		return &types.ConfigError{Field: "LOG_LEVEL", Err: fmt.Errorf("must be debug/info/warn/error, got %q", cfg.Logging.Level)}
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return &types.ConfigError{Field: "LOG_FORMAT", Err: fmt.Errorf("must be 'text' or 'json', got %q", cfg.Logging.Format)}
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535) {
		return &types.ConfigError{Field: "METRICS_PORT", Err: fmt.Errorf("must be 1-65535, got %d", cfg.Metrics.Port)}
	}

	return nil
}
