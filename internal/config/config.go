// Package config handles configuration loading and management for Atelier.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/atelier/pkg/models"
)

// Config holds all configuration for Atelier.
type Config struct {
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Select    SelectConfig    `mapstructure:"select"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseAWSBedrock routes Anthropic calls through AWS Bedrock.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// DefaultsConfig holds default values for Atelier runs.
type DefaultsConfig struct {
	// Models are the "provider:model" identifiers used for generation
	// when a command does not name any.
	Models []string `mapstructure:"models"`
	// CritiqueModel is the vision model used for critique.
	CritiqueModel string `mapstructure:"critique_model"`
	// Concurrency bounds simultaneous provider calls per stage.
	Concurrency int `mapstructure:"concurrency"`
	// Variants is the number of variants generated per screen.
	Variants int `mapstructure:"variants"`
	// Passes is the number of iteration passes.
	Passes int `mapstructure:"passes"`
	// MaxRetries is the retry budget for a failed provider call.
	MaxRetries int `mapstructure:"max_retries"`
	// OutDir is the base directory runs are written under.
	OutDir string `mapstructure:"out_dir"`
}

// SelectConfig holds the default selection policy between passes.
type SelectConfig struct {
	MinScore float64 `mapstructure:"min_score"`
	TopK     int     `mapstructure:"top_k"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (OPENAI_API_KEY, ANTHROPIC_API_KEY)
// 2. Project config (.atelier.yaml in current directory or parent)
// 3. User config (~/.config/atelier/config.yaml)
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

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

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

	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

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

	v.Set("openai.api_key", cfg.OpenAI.APIKey)
	v.Set("openai.base_url", cfg.OpenAI.BaseURL)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("defaults.models", cfg.Defaults.Models)
	v.Set("defaults.critique_model", cfg.Defaults.CritiqueModel)
	v.Set("defaults.concurrency", cfg.Defaults.Concurrency)
	v.Set("defaults.variants", cfg.Defaults.Variants)
	v.Set("defaults.passes", cfg.Defaults.Passes)
	v.Set("defaults.max_retries", cfg.Defaults.MaxRetries)
	v.Set("defaults.out_dir", cfg.Defaults.OutDir)
	v.Set("select.min_score", cfg.Select.MinScore)
	v.Set("select.top_k", cfg.Select.TopK)

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
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("defaults.models", []string{"openai:gpt-image-1"})
	v.SetDefault("defaults.critique_model", "anthropic:claude-sonnet-4-20250514")
	v.SetDefault("defaults.concurrency", 3)
	v.SetDefault("defaults.variants", 3)
	v.SetDefault("defaults.passes", 2)
	v.SetDefault("defaults.max_retries", 3)
	v.SetDefault("defaults.out_dir", "runs")

	v.SetDefault("select.min_score", 70)
	v.SetDefault("select.top_k", 3)
}

// getUserConfigDir returns the XDG config directory for Atelier.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "atelier")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "atelier")
	}
	return filepath.Join(home, ".config", "atelier")
}

// findProjectConfig searches for .atelier.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".atelier.yaml")
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

// SelectPolicy converts the configured selection defaults into a
// policy. Zero values are left unset so stage-level defaults apply.
func (c *Config) SelectPolicy() models.SelectPolicy {
	var p models.SelectPolicy
	if c.Select.MinScore > 0 {
		m := c.Select.MinScore
		p.MinScore = &m
	}
	if c.Select.TopK > 0 {
		k := c.Select.TopK
		p.TopK = &k
	}
	return p
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Models:        []string{"openai:gpt-image-1"},
			CritiqueModel: "anthropic:claude-sonnet-4-20250514",
			Concurrency:   3,
			Variants:      3,
			Passes:        2,
			MaxRetries:    3,
			OutDir:        "runs",
		},
		Select: SelectConfig{
			MinScore: 70,
			TopK:     3,
		},
	}
}
