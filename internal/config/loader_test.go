package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaultsWithNoEnv(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheDir != "./wall-cache" {
		t.Fatalf("expected default cache dir, got %q", cfg.CacheDir)
	}
	if cfg.MaxRpm != 40 {
		t.Fatalf("expected default max_rpm 40, got %d", cfg.MaxRpm)
	}
}

func TestLoadReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("CACHE_DIR", "/tmp/custom-cache")
	t.Setenv("MAX_RPM", "10")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheDir != "/tmp/custom-cache" {
		t.Fatalf("expected overridden cache dir, got %q", cfg.CacheDir)
	}
	if cfg.MaxRpm != 10 {
		t.Fatalf("expected overridden max_rpm, got %d", cfg.MaxRpm)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("expected overridden logging config, got %+v", cfg.Logging)
	}
}

func TestLoadParsesCategorySequenceUntilGap(t *testing.T) {
	t.Setenv("CATEGORY_1", "nature|-1001|120|forest,ocean")
	t.Setenv("CATEGORY_2", "space|-1002|300|nebula")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cfg.Categories))
	}
	c := cfg.Categories[0]
	if c.Name != "nature" || c.GroupID != -1001 || c.Interval != 120*time.Second {
		t.Fatalf("unexpected first category: %+v", c)
	}
	if len(c.Terms) != 2 || c.Terms[0] != "forest" || c.Terms[1] != "ocean" {
		t.Fatalf("unexpected terms: %v", c.Terms)
	}
}

func TestLoadClampsIntervalBelowMinimum(t *testing.T) {
	t.Setenv("CATEGORY_1", "nature|-1001|10|forest")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Categories[0].Interval != 60*time.Second {
		t.Fatalf("expected clamped interval of 60s, got %s", cfg.Categories[0].Interval)
	}
}

func TestLoadRejectsMalformedCategoryLine(t *testing.T) {
	t.Setenv("CATEGORY_1", "nature|not-a-number|120|forest")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for malformed category line")
	}
}

func TestLoadRejectsInvalidCategoryName(t *testing.T) {
	t.Setenv("CATEGORY_1", "bad name!|-1001|120|forest")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid category name")
	}
}
