package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbenham/taskforge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify taskforge configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/taskforge/config.yaml
Project-specific overrides can be placed in .taskforge.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("limits.max_depth: %d\n", cfg.Limits.MaxDepth)
	fmt.Printf("limits.max_iterations: %d\n", cfg.Limits.MaxIterations)
	fmt.Printf("limits.max_turns: %d\n", cfg.Limits.MaxTurns)
	fmt.Printf("limits.concurrency_limit: %d\n", cfg.Limits.ConcurrencyLimit)
	fmt.Printf("limits.per_call_timeout: %s\n", cfg.Limits.PerCallTimeout)
	fmt.Printf("workers.base_workers: %d\n", cfg.Workers.BaseWorkers)
	fmt.Printf("workers.group_size_threshold: %d\n", cfg.Workers.GroupSizeThreshold)
	fmt.Printf("workers.boost_on_high_complexity: %t\n", cfg.Workers.BoostOnHighComplexity)
	fmt.Printf("workers.boosted_workers: %d\n", cfg.Workers.BoostedWorkers)
	fmt.Printf("storage.database_path: %s\n", cfg.Storage.DatabasePath)
	fmt.Printf("logging.level: %s\n", cfg.Logging.Level)
	fmt.Printf("logging.development: %t\n", cfg.Logging.Development)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			return "(not set)", nil
		}
		return "****", nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "limits.max_depth":
		return strconv.Itoa(cfg.Limits.MaxDepth), nil
	case "limits.max_iterations":
		return strconv.Itoa(cfg.Limits.MaxIterations), nil
	case "limits.max_turns":
		return strconv.Itoa(cfg.Limits.MaxTurns), nil
	case "limits.concurrency_limit":
		return strconv.Itoa(cfg.Limits.ConcurrencyLimit), nil
	case "limits.per_call_timeout":
		return cfg.Limits.PerCallTimeout.String(), nil
	case "workers.base_workers":
		return strconv.Itoa(cfg.Workers.BaseWorkers), nil
	case "workers.group_size_threshold":
		return strconv.Itoa(cfg.Workers.GroupSizeThreshold), nil
	case "workers.boost_on_high_complexity":
		return strconv.FormatBool(cfg.Workers.BoostOnHighComplexity), nil
	case "workers.boosted_workers":
		return strconv.Itoa(cfg.Workers.BoostedWorkers), nil
	case "storage.database_path":
		return cfg.Storage.DatabasePath, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.development":
		return strconv.FormatBool(cfg.Logging.Development), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "limits.max_depth":
		return setIntValue(&cfg.Limits.MaxDepth, value)
	case "limits.max_iterations":
		return setIntValue(&cfg.Limits.MaxIterations, value)
	case "limits.max_turns":
		return setIntValue(&cfg.Limits.MaxTurns, value)
	case "limits.concurrency_limit":
		return setIntValue(&cfg.Limits.ConcurrencyLimit, value)
	case "limits.per_call_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q", value)
		}
		cfg.Limits.PerCallTimeout = d
	case "workers.base_workers":
		return setIntValue(&cfg.Workers.BaseWorkers, value)
	case "workers.group_size_threshold":
		return setIntValue(&cfg.Workers.GroupSizeThreshold, value)
	case "workers.boost_on_high_complexity":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.Workers.BoostOnHighComplexity = b
	case "workers.boosted_workers":
		return setIntValue(&cfg.Workers.BoostedWorkers, value)
	case "storage.database_path":
		cfg.Storage.DatabasePath = value
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.development":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.Logging.Development = b
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setIntValue(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q", value)
	}
	*dst = n
	return nil
}
