// Package config handles configuration loading and management for
// taskforge. It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for taskforge.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	// APIKey authenticates direct API access. Supports ${VAR} expansion.
	APIKey string `mapstructure:"api_key"`
	// Model is the model identifier used for every collaborator role.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes calls through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region, when Bedrock is enabled.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the AWS credentials profile, when Bedrock is enabled.
	AWSProfile string `mapstructure:"aws_profile"`
}

// LimitsConfig is the bound bundle every engine component shares.
type LimitsConfig struct {
	// MaxDepth bounds agent spawn recursion.
	MaxDepth int `mapstructure:"max_depth"`
	// MaxIterations bounds the refinement loop.
	MaxIterations int `mapstructure:"max_iterations"`
	// MaxTurns bounds the dialogue execution loop.
	MaxTurns int `mapstructure:"max_turns"`
	// ConcurrencyLimit caps simultaneously in-flight collaborator calls.
	ConcurrencyLimit int `mapstructure:"concurrency_limit"`
	// PerCallTimeout bounds each collaborator call.
	PerCallTimeout time.Duration `mapstructure:"per_call_timeout"`
}

// WorkersConfig tunes how many workers a group of simultaneously
// eligible tasks receives.
type WorkersConfig struct {
	BaseWorkers           int  `mapstructure:"base_workers"`
	GroupSizeThreshold    int  `mapstructure:"group_size_threshold"`
	BoostOnHighComplexity bool `mapstructure:"boost_on_high_complexity"`
	BoostedWorkers        int  `mapstructure:"boosted_workers"`
}

// StorageConfig holds audit store settings.
type StorageConfig struct {
	// DatabasePath is the SQLite file for run reports. ${VAR} references
	// are expanded.
	DatabasePath string `mapstructure:"database_path"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Development enables console-friendly output instead of JSON.
	Development bool `mapstructure:"development"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.taskforge.yaml in current directory or parent)
// 3. User config (~/.config/taskforge/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.aws_region", "AWS_REGION")
	v.BindEnv("anthropic.aws_profile", "AWS_PROFILE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Storage.DatabasePath = expandEnv(cfg.Storage.DatabasePath)

	return cfg, cfg.Validate()
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Storage.DatabasePath = expandEnv(cfg.Storage.DatabasePath)

	return cfg, cfg.Validate()
}

// Validate rejects limit values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Limits.MaxDepth < 0 {
		return fmt.Errorf("limits.max_depth must be >= 0, got %d", c.Limits.MaxDepth)
	}
	if c.Limits.MaxIterations < 0 {
		return fmt.Errorf("limits.max_iterations must be >= 0, got %d", c.Limits.MaxIterations)
	}
	if c.Limits.MaxTurns < 1 {
		return fmt.Errorf("limits.max_turns must be >= 1, got %d", c.Limits.MaxTurns)
	}
	if c.Limits.ConcurrencyLimit < 1 {
		return fmt.Errorf("limits.concurrency_limit must be >= 1, got %d", c.Limits.ConcurrencyLimit)
	}
	if c.Limits.PerCallTimeout < 0 {
		return fmt.Errorf("limits.per_call_timeout must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("limits.max_depth", cfg.Limits.MaxDepth)
	v.Set("limits.max_iterations", cfg.Limits.MaxIterations)
	v.Set("limits.max_turns", cfg.Limits.MaxTurns)
	v.Set("limits.concurrency_limit", cfg.Limits.ConcurrencyLimit)
	v.Set("limits.per_call_timeout", cfg.Limits.PerCallTimeout.String())
	v.Set("workers.base_workers", cfg.Workers.BaseWorkers)
	v.Set("workers.group_size_threshold", cfg.Workers.GroupSizeThreshold)
	v.Set("workers.boost_on_high_complexity", cfg.Workers.BoostOnHighComplexity)
	v.Set("workers.boosted_workers", cfg.Workers.BoostedWorkers)
	v.Set("storage.database_path", cfg.Storage.DatabasePath)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.development", cfg.Logging.Development)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("limits.max_depth", 2)
	v.SetDefault("limits.max_iterations", 3)
	v.SetDefault("limits.max_turns", 10)
	v.SetDefault("limits.concurrency_limit", 4)
	v.SetDefault("limits.per_call_timeout", "5m")

	v.SetDefault("workers.base_workers", 1)
	v.SetDefault("workers.group_size_threshold", 2)
	v.SetDefault("workers.boost_on_high_complexity", true)
	v.SetDefault("workers.boosted_workers", 2)

	v.SetDefault("storage.database_path", defaultDatabasePath())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// getUserConfigDir returns the XDG config directory for taskforge.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskforge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskforge")
	}
	return filepath.Join(home, ".config", "taskforge")
}

// defaultDatabasePath returns the XDG data path for the audit store.
func defaultDatabasePath() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "taskforge", "runs.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".taskforge", "runs.db")
	}
	return filepath.Join(home, ".local", "share", "taskforge", "runs.db")
}

// findProjectConfig searches for .taskforge.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".taskforge.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Limits: LimitsConfig{
			MaxDepth:         2,
			MaxIterations:    3,
			MaxTurns:         10,
			ConcurrencyLimit: 4,
			PerCallTimeout:   5 * time.Minute,
		},
		Workers: WorkersConfig{
			BaseWorkers:           1,
			GroupSizeThreshold:    2,
			BoostOnHighComplexity: true,
			BoostedWorkers:        2,
		},
		Storage: StorageConfig{
			DatabasePath: defaultDatabasePath(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
