// Package config handles configuration loading and management for loom.
// It supports XDG config paths, project-level overrides, and environment
// variables, grounded on the teacher's internal/config/config.go viper
// layering (user config -> project config -> env vars -> defaults).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for loom.
type Config struct {
	LocalModel LocalModelConfig `mapstructure:"local_model"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Defaults   DefaultsConfig   `mapstructure:"defaults"`
	TUI        TUIConfig        `mapstructure:"tui"`
}

// LocalModelConfig holds the local chat_stream server settings (spec.md
// §6's LLM provider contract).
type LocalModelConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	EnableThinking bool    `mapstructure:"enable_thinking"`
	NumCtx         int     `mapstructure:"num_ctx"`
	NumPredict     int     `mapstructure:"num_predict"`
	Temperature    float64 `mapstructure:"temperature"`
	KeepAlive      string  `mapstructure:"keep_alive"`
}

// AnthropicConfig holds hosted-model escalation settings, consumed by
// internal/agent.RemoteClient; a non-empty api_key or use_aws_bedrock
// makes cmd/loomd use the hosted client for every agent.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// RegistryConfig holds agent-definition directory settings.
type RegistryConfig struct {
	AgentsDir string `mapstructure:"agents_dir"`
}

// DefaultsConfig holds default values for loom runs.
type DefaultsConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
	MaxToolDepth  int `mapstructure:"max_tool_depth"`
	TokenBudget   int `mapstructure:"token_budget"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (LOOM_* and ANTHROPIC_API_KEY)
// 2. Project config (.loom/config.yaml in current directory or parent)
// 3. User config (~/.config/loom/config.yaml)
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

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("LOOM")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("local_model.base_url", "LOOM_LOCAL_MODEL_BASE_URL")
	v.BindEnv("local_model.model", "LOOM_LOCAL_MODEL")
	v.BindEnv("registry.agents_dir", "LOOM_AGENTS_DIR")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	if cfg.Registry.AgentsDir == "" {
		cfg.Registry.AgentsDir = filepath.Join(getUserConfigDir(), "agents")
	}

	return cfg, nil
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
	if cfg.Registry.AgentsDir == "" {
		cfg.Registry.AgentsDir = filepath.Join(getUserConfigDir(), "agents")
	}

	return cfg, nil
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

	v.Set("local_model.base_url", cfg.LocalModel.BaseURL)
	v.Set("local_model.model", cfg.LocalModel.Model)
	v.Set("local_model.enable_thinking", cfg.LocalModel.EnableThinking)
	v.Set("local_model.num_ctx", cfg.LocalModel.NumCtx)
	v.Set("local_model.num_predict", cfg.LocalModel.NumPredict)
	v.Set("local_model.temperature", cfg.LocalModel.Temperature)
	v.Set("local_model.keep_alive", cfg.LocalModel.KeepAlive)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("registry.agents_dir", cfg.Registry.AgentsDir)
	v.Set("defaults.max_iterations", cfg.Defaults.MaxIterations)
	v.Set("defaults.max_tool_depth", cfg.Defaults.MaxToolDepth)
	v.Set("defaults.token_budget", cfg.Defaults.TokenBudget)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

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
	v.SetDefault("local_model.base_url", "http://localhost:11434")
	v.SetDefault("local_model.model", "qwen2.5-coder:32b")
	v.SetDefault("local_model.enable_thinking", true)
	v.SetDefault("local_model.num_ctx", 32768)
	v.SetDefault("local_model.num_predict", 4096)
	v.SetDefault("local_model.temperature", 0.2)
	v.SetDefault("local_model.keep_alive", "5m")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")

	v.SetDefault("registry.agents_dir", "")

	v.SetDefault("defaults.max_iterations", 10)
	v.SetDefault("defaults.max_tool_depth", 5)
	v.SetDefault("defaults.token_budget", 100000)

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for loom.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "loom")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "loom")
	}
	return filepath.Join(home, ".config", "loom")
}

// findProjectConfig searches for .loom/config.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".loom", "config.yaml")
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
		LocalModel: LocalModelConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "qwen2.5-coder:32b",
			EnableThinking: true,
			NumCtx:         32768,
			NumPredict:     4096,
			Temperature:    0.2,
			KeepAlive:      "5m",
		},
		Registry: RegistryConfig{
			AgentsDir: filepath.Join(getUserConfigDir(), "agents"),
		},
		Defaults: DefaultsConfig{
			MaxIterations: 10,
			MaxToolDepth:  5,
			TokenBudget:   100000,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
