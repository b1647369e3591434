package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Limits.MaxDepth != 2 {
		t.Errorf("expected default max_depth 2, got %d", cfg.Limits.MaxDepth)
	}
	if cfg.Limits.MaxTurns != 10 {
		t.Errorf("expected default max_turns 10, got %d", cfg.Limits.MaxTurns)
	}
	if cfg.Limits.PerCallTimeout != 5*time.Minute {
		t.Errorf("expected default per_call_timeout 5m, got %s", cfg.Limits.PerCallTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
anthropic:
  model: claude-opus-4-20250514
limits:
  max_depth: 3
  max_turns: 20
  concurrency_limit: 8
  per_call_timeout: 90s
workers:
  base_workers: 2
  boosted_workers: 4
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Anthropic.Model != "claude-opus-4-20250514" {
		t.Errorf("unexpected model %q", cfg.Anthropic.Model)
	}
	if cfg.Limits.MaxDepth != 3 || cfg.Limits.MaxTurns != 20 || cfg.Limits.ConcurrencyLimit != 8 {
		t.Errorf("limits not loaded: %+v", cfg.Limits)
	}
	if cfg.Limits.PerCallTimeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %s", cfg.Limits.PerCallTimeout)
	}
	if cfg.Workers.BaseWorkers != 2 || cfg.Workers.BoostedWorkers != 4 {
		t.Errorf("workers not loaded: %+v", cfg.Workers)
	}
	// Unset keys keep their defaults.
	if cfg.Limits.MaxIterations != 3 {
		t.Errorf("expected default max_iterations 3, got %d", cfg.Limits.MaxIterations)
	}
}

func TestLoadFromPathExpandsEnv(t *testing.T) {
	t.Setenv("TEST_TASKFORGE_KEY", "sk-test-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "anthropic:\n  api_key: ${TEST_TASKFORGE_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-test-123" {
		t.Errorf("expected expanded key, got %q", cfg.Anthropic.APIKey)
	}
}

func TestValidateRejectsBadLimits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative max_depth", func(c *Config) { c.Limits.MaxDepth = -1 }},
		{"negative max_iterations", func(c *Config) { c.Limits.MaxIterations = -1 }},
		{"zero max_turns", func(c *Config) { c.Limits.MaxTurns = 0 }},
		{"zero concurrency", func(c *Config) { c.Limits.ConcurrencyLimit = 0 }},
		{"negative timeout", func(c *Config) { c.Limits.PerCallTimeout = -time.Second }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if _, err := NewLogger(LoggingConfig{Level: level}); err != nil {
			t.Errorf("level %s: %v", level, err)
		}
	}
	if _, err := NewLogger(LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
