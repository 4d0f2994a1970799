package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomharness/loom/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify loom configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/loom/config.yaml
Project-specific overrides can be placed in .loom/config.yaml`,
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

func displayAllConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = config.MaskAPIKey(cfg.Anthropic.APIKey)
	}

	fmt.Printf("local_model.base_url: %s\n", cfg.LocalModel.BaseURL)
	fmt.Printf("local_model.model: %s\n", cfg.LocalModel.Model)
	fmt.Printf("local_model.num_ctx: %d\n", cfg.LocalModel.NumCtx)
	fmt.Printf("local_model.num_predict: %d\n", cfg.LocalModel.NumPredict)
	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("registry.agents_dir: %s\n", cfg.Registry.AgentsDir)
	fmt.Printf("defaults.max_iterations: %d\n", cfg.Defaults.MaxIterations)
	fmt.Printf("defaults.max_tool_depth: %d\n", cfg.Defaults.MaxToolDepth)
	fmt.Printf("defaults.token_budget: %d\n", cfg.Defaults.TokenBudget)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}

func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "local_model.base_url":
		return cfg.LocalModel.BaseURL, nil
	case "local_model.model":
		return cfg.LocalModel.Model, nil
	case "local_model.num_ctx":
		return strconv.Itoa(cfg.LocalModel.NumCtx), nil
	case "local_model.num_predict":
		return strconv.Itoa(cfg.LocalModel.NumPredict), nil
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			return "(not set)", nil
		}
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "registry.agents_dir":
		return cfg.Registry.AgentsDir, nil
	case "defaults.max_iterations":
		return strconv.Itoa(cfg.Defaults.MaxIterations), nil
	case "defaults.max_tool_depth":
		return strconv.Itoa(cfg.Defaults.MaxToolDepth), nil
	case "defaults.token_budget":
		return strconv.Itoa(cfg.Defaults.TokenBudget), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "local_model.base_url":
		cfg.LocalModel.BaseURL = value
	case "local_model.model":
		cfg.LocalModel.Model = value
	case "local_model.num_ctx":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for num_ctx: %w", err)
		}
		cfg.LocalModel.NumCtx = n
	case "local_model.num_predict":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for num_predict: %w", err)
		}
		cfg.LocalModel.NumPredict = n
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "registry.agents_dir":
		cfg.Registry.AgentsDir = value
	case "defaults.max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_iterations: %w", err)
		}
		cfg.Defaults.MaxIterations = n
	case "defaults.max_tool_depth":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_tool_depth: %w", err)
		}
		cfg.Defaults.MaxToolDepth = n
	case "defaults.token_budget":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for token_budget: %w", err)
		}
		cfg.Defaults.TokenBudget = n
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for refresh_rate: %w", err)
		}
		cfg.TUI.RefreshRate = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
