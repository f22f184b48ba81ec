package config

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var categoryNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Load reads a .env-style file (if present) then the process environment
// into a Config, per SPEC_FULL.md 6/10: godotenv populates the process
// environment first, viper.AutomaticEnv reads it from there.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load() // optional .env in the working directory
	}

	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)
	v.AutomaticEnv()

	cfg.CacheDir = v.GetString("cache_dir")
	cfg.FirebaseCreds = v.GetString("firebase_credentials")
	cfg.TelegramBotToken = v.GetString("telegram_bot_token")
	cfg.WallhavenAPIKey = v.GetString("wallhaven_api_key")
	cfg.WallhavenBaseURL = v.GetString("wallhaven_base_url")
	cfg.MongoURI = v.GetString("mongo_uri")
	cfg.MongoDatabase = v.GetString("mongo_database")
	cfg.MaxHashRows = v.GetInt("max_hash_rows")
	cfg.MaxMetaRows = v.GetInt("max_meta_rows")
	cfg.MaxRpm = v.GetInt("max_rpm")
	cfg.BudgetMax = v.GetInt("budget_max_adds")
	cfg.BudgetHours = v.GetInt("budget_period_hours")
	cfg.Logging.Level = v.GetString("log_level")
	cfg.Logging.Format = v.GetString("log_format")
	cfg.Metrics.Enabled = v.GetBool("metrics_enabled")
	cfg.Metrics.Port = v.GetInt("metrics_port")
	cfg.Metrics.Path = v.GetString("metrics_path")

	categories, err := parseCategories(v)
	if err != nil {
		return nil, err
	}
	cfg.Categories = categories

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("cache_dir", cfg.CacheDir)
	v.SetDefault("wallhaven_base_url", cfg.WallhavenBaseURL)
	v.SetDefault("mongo_database", cfg.MongoDatabase)
	v.SetDefault("max_hash_rows", cfg.MaxHashRows)
	v.SetDefault("max_meta_rows", cfg.MaxMetaRows)
	v.SetDefault("max_rpm", cfg.MaxRpm)
	v.SetDefault("budget_max_adds", cfg.BudgetMax)
	v.SetDefault("budget_period_hours", cfg.BudgetHours)
	v.SetDefault("log_level", cfg.Logging.Level)
	v.SetDefault("log_format", cfg.Logging.Format)
	v.SetDefault("metrics_enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics_port", cfg.Metrics.Port)
	v.SetDefault("metrics_path", cfg.Metrics.Path)
}

// parseCategories reads the enumerated CATEGORY_1, CATEGORY_2, ...
// sequence until the first unset index (SPEC_FULL.md 6).
func parseCategories(v *viper.Viper) ([]CategoryConfig, error) {
	var out []CategoryConfig

	for i := 1; ; i++ {
		key := fmt.Sprintf("category_%d", i)
		raw := v.GetString(key)
		if raw == "" {
			break
		}

		cat, err := parseCategoryLine(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.ToUpper(key), err)
		}
		out = append(out, cat)
	}

	return out, nil
}

func parseCategoryLine(line string) (CategoryConfig, error) {
	parts := strings.Split(line, "|")
	if len(parts) != 4 {
		return CategoryConfig{}, fmt.Errorf("expected 4 pipe-separated fields, got %d", len(parts))
	}

	name := strings.TrimSpace(parts[0])
	if !categoryNamePattern.MatchString(name) {
		return CategoryConfig{}, fmt.Errorf("name %q must match [A-Za-z0-9_-]+", name)
	}

	groupID, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return CategoryConfig{}, fmt.Errorf("group_id: %w", err)
	}

	intervalSecs, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return CategoryConfig{}, fmt.Errorf("interval_seconds: %w", err)
	}
	if intervalSecs < 60 {
		slog.Warn("category interval below minimum, clamping", "name", strings.TrimSpace(parts[0]), "configured_seconds", intervalSecs)
		intervalSecs = 60
	}

	var terms []string
	for _, t := range strings.Split(parts[3], ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return CategoryConfig{}, fmt.Errorf("at least one search term is required")
	}

	return CategoryConfig{
		Name:     name,
		GroupID:  groupID,
		Interval: time.Duration(intervalSecs) * time.Second,
		Terms:    terms,
	}, nil
}
