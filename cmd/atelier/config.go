package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/atelier/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify atelier configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/atelier/config.yaml
Project-specific overrides can be placed in .atelier.yaml
API keys come from OPENAI_API_KEY and ANTHROPIC_API_KEY.`,
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
	maskKey := func(k string) string {
		if k == "" {
			return "(not set)"
		}
		return "****"
	}

	fmt.Println("Provider:")
	fmt.Printf("  openai.api_key:           %s\n", maskKey(cfg.OpenAI.APIKey))
	fmt.Printf("  openai.base_url:          %s\n", orDefault(cfg.OpenAI.BaseURL, "(default)"))
	fmt.Printf("  anthropic.api_key:        %s\n", maskKey(cfg.Anthropic.APIKey))
	fmt.Printf("  anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	if cfg.Anthropic.UseAWSBedrock {
		fmt.Printf("  anthropic.aws_region:     %s\n", cfg.Anthropic.AWSRegion)
		fmt.Printf("  anthropic.aws_profile:    %s\n", orDefault(cfg.Anthropic.AWSProfile, "(default)"))
	}
	fmt.Println("Defaults:")
	fmt.Printf("  defaults.models:          %s\n", strings.Join(cfg.Defaults.Models, ", "))
	fmt.Printf("  defaults.critique_model:  %s\n", cfg.Defaults.CritiqueModel)
	fmt.Printf("  defaults.concurrency:     %d\n", cfg.Defaults.Concurrency)
	fmt.Printf("  defaults.variants:        %d\n", cfg.Defaults.Variants)
	fmt.Printf("  defaults.passes:          %d\n", cfg.Defaults.Passes)
	fmt.Printf("  defaults.max_retries:     %d\n", cfg.Defaults.MaxRetries)
	fmt.Printf("  defaults.out_dir:         %s\n", cfg.Defaults.OutDir)
	fmt.Println("Selection:")
	fmt.Printf("  select.min_score:         %g\n", cfg.Select.MinScore)
	fmt.Printf("  select.top_k:             %d\n", cfg.Select.TopK)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	switch key {
	case "defaults.models":
		fmt.Println(strings.Join(cfg.Defaults.Models, ", "))
	case "defaults.critique_model":
		fmt.Println(cfg.Defaults.CritiqueModel)
	case "defaults.concurrency":
		fmt.Println(cfg.Defaults.Concurrency)
	case "defaults.variants":
		fmt.Println(cfg.Defaults.Variants)
	case "defaults.passes":
		fmt.Println(cfg.Defaults.Passes)
	case "defaults.max_retries":
		fmt.Println(cfg.Defaults.MaxRetries)
	case "defaults.out_dir":
		fmt.Println(cfg.Defaults.OutDir)
	case "select.min_score":
		fmt.Println(cfg.Select.MinScore)
	case "select.top_k":
		fmt.Println(cfg.Select.TopK)
	case "openai.base_url":
		fmt.Println(cfg.OpenAI.BaseURL)
	case "anthropic.use_aws_bedrock":
		fmt.Println(cfg.Anthropic.UseAWSBedrock)
	case "anthropic.aws_region":
		fmt.Println(cfg.Anthropic.AWSRegion)
	case "anthropic.aws_profile":
		fmt.Println(cfg.Anthropic.AWSProfile)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}
}

// setConfigKey updates one value and writes the user config file.
func setConfigKey(cfg *config.Config, key, value string) {
	var err error
	switch key {
	case "defaults.models":
		cfg.Defaults.Models = strings.Split(value, ",")
		for i := range cfg.Defaults.Models {
			cfg.Defaults.Models[i] = strings.TrimSpace(cfg.Defaults.Models[i])
		}
	case "defaults.critique_model":
		cfg.Defaults.CritiqueModel = value
	case "defaults.concurrency":
		cfg.Defaults.Concurrency, err = strconv.Atoi(value)
	case "defaults.variants":
		cfg.Defaults.Variants, err = strconv.Atoi(value)
	case "defaults.passes":
		cfg.Defaults.Passes, err = strconv.Atoi(value)
	case "defaults.max_retries":
		cfg.Defaults.MaxRetries, err = strconv.Atoi(value)
	case "defaults.out_dir":
		cfg.Defaults.OutDir = value
	case "select.min_score":
		cfg.Select.MinScore, err = strconv.ParseFloat(value, 64)
	case "select.top_k":
		cfg.Select.TopK, err = strconv.Atoi(value)
	case "openai.base_url":
		cfg.OpenAI.BaseURL = value
	case "anthropic.use_aws_bedrock":
		cfg.Anthropic.UseAWSBedrock, err = strconv.ParseBool(value)
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	default:
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid value for %s: %v\n", key, err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Set %s = %s\n", key, value)
}
