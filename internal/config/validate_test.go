package config

import (
	"testing"

	"github.com/nsinhame/wallhaven-engine/internal/types"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.TelegramBotToken = "0123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAA"
	cfg.WallhavenAPIKey = "abc123"
	cfg.MongoURI = "mongodb://localhost:27017"
	cfg.Categories = []CategoryConfig{{Name: "nature", GroupID: -100, Terms: []string{"forest"}}}
	return cfg
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestValidateRejectsShortBotToken(t *testing.T) {
	cfg := validConfig()
	cfg.TelegramBotToken = "short"

	err := Validate(cfg)
	assertConfigError(t, err, "TELEGRAM_BOT_TOKEN")
}

func TestValidateRejectsMissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.WallhavenAPIKey = ""

	err := Validate(cfg)
	assertConfigError(t, err, "WALLHAVEN_API_KEY")
}

func TestValidateRejectsNoCategories(t *testing.T) {
	cfg := validConfig()
	cfg.Categories = nil

	err := Validate(cfg)
	assertConfigError(t, err, "CATEGORY_1")
}

func TestValidateRejectsDuplicateCategoryNames(t *testing.T) {
	cfg := validConfig()
	cfg.Categories = []CategoryConfig{
		{Name: "nature", GroupID: -1, Terms: []string{"forest"}},
		{Name: "nature", GroupID: -2, Terms: []string{"ocean"}},
	}

	err := Validate(cfg)
	assertConfigError(t, err, "CATEGORY_*")
}

func TestValidateRejectsInvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"

	err := Validate(cfg)
	assertConfigError(t, err, "LOG_LEVEL")
}

func TestValidateRejectsInvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	assertConfigError(t, err, "LOG_FORMAT")
}

func TestValidateRejectsMetricsPortOutOfRangeWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 70000

	err := Validate(cfg)
	assertConfigError(t, err, "METRICS_PORT")
}

func TestValidateIgnoresMetricsPortWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Port = 0

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected disabled metrics to skip port check, got %v", err)
	}
}

func assertConfigError(t *testing.T, err error, field string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error for field %s, got nil", field)
	}
	cfgErr, ok := err.(*types.ConfigError)
	if !ok {
		t.Fatalf("expected *types.ConfigError, got %T", err)
	}
	if cfgErr.Field != field {
		t.Fatalf("expected field %s, got %s", field, cfgErr.Field)
	}
}
