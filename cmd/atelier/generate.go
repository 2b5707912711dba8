package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/atelier/internal/config"
	"github.com/ShayCichocki/atelier/internal/prompt"
	"github.com/ShayCichocki/atelier/internal/provider"
	"github.com/ShayCichocki/atelier/internal/spec"
	"github.com/ShayCichocki/atelier/internal/stage"
	"github.com/ShayCichocki/atelier/internal/state"
)

var (
	generateModels      []string
	generateScreens     []string
	generateVariants    int
	generateConcurrency int
	generateMaxRetries  int
	generateSeed        int64
	generateStyle       string
	generateOut         string
	generateRunID       string
	generatePrompt      string
	generatePromptFile  string
	generateDryRun      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <brief.md>",
	Short: "Generate image candidates from a design brief",
	Long: `Generate image candidates for every screen in a Markdown design brief.

For each (model, screen, variant) combination, atelier builds a prompt
from the brief, calls the image provider, and persists the result under
the run directory with a manifest entry. Units fail independently: one
failed call never cancels its siblings.

Models are fully-qualified "provider:model" identifiers, e.g.
openai:gpt-image-1. Models without image capability are skipped with a
warning.

If --seed is given, variant i receives seed+i so each (seed, variant)
pair is reproducible.

Use --dry-run to print the execution plan (unit count and a sample
resolved prompt) without calling any provider.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringSliceVar(&generateModels, "models", nil, "Generation models (provider:model); defaults from config")
	generateCmd.Flags().StringSliceVar(&generateScreens, "screens", nil, "Screens to generate; defaults to the brief's screens")
	generateCmd.Flags().IntVar(&generateVariants, "variants", 0, "Variants per (model, screen); defaults from config")
	generateCmd.Flags().IntVar(&generateConcurrency, "concurrency", 0, "Max in-flight provider calls; defaults from config")
	generateCmd.Flags().IntVar(&generateMaxRetries, "max-retries", 0, "Retry budget per provider call; defaults from config")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", -1, "Base seed; variant i uses seed+i")
	generateCmd.Flags().StringVar(&generateStyle, "style", "", "Art-direction style text applied to every prompt")
	generateCmd.Flags().StringVar(&generateOut, "out", "", "Base directory for run output; defaults from config")
	generateCmd.Flags().StringVar(&generateRunID, "run-id", "", "Run id; defaults to the current timestamp")
	generateCmd.Flags().StringVar(&generatePrompt, "prompt", "", "Inline prompt template override")
	generateCmd.Flags().StringVar(&generatePromptFile, "prompt-file", "", "Prompt template file override")
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false, "Print the plan without calling any provider")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	briefPath := args[0]
	briefSource, err := os.ReadFile(briefPath)
	if err != nil {
		return fmt.Errorf("read design brief: %w", err)
	}
	sp, err := spec.Parse(briefSource, generateStyle)
	if err != nil {
		return err
	}

	models := generateModels
	if len(models) == 0 {
		models = cfg.Defaults.Models
	}
	variants := generateVariants
	if variants == 0 {
		variants = cfg.Defaults.Variants
	}
	concurrency := generateConcurrency
	if concurrency == 0 {
		concurrency = cfg.Defaults.Concurrency
	}
	maxRetries := generateMaxRetries
	if maxRetries == 0 {
		maxRetries = cfg.Defaults.MaxRetries
	}
	var seed *int64
	if generateSeed >= 0 {
		s := generateSeed
		seed = &s
	}

	run, finish, err := openRun(cfg, generateOut, generateRunID, "generate", "")
	if err != nil {
		return err
	}
	if err := run.SnapshotInput(briefSource, generateStyle); err != nil {
		finish(state.RunStatusFailed, 0, 0)
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, stopWatch := run.WatchStop(ctx)
	defer stopWatch()

	out, err := stage.Generate(ctx, run, provider.NewRegistry(cfg), stage.GenerateParams{
		Spec:        sp,
		Models:      models,
		Screens:     generateScreens,
		Variants:    variants,
		Concurrency: concurrency,
		MaxRetries:  maxRetries,
		Seed:        seed,
		PromptOverrides: []prompt.Override{
			{Inline: generatePrompt, File: generatePromptFile},
		},
		DryRun: generateDryRun,
	})
	if err != nil {
		finish(state.RunStatusFailed, 0, 0)
		return err
	}

	if out.Plan != nil {
		finish(state.RunStatusCompleted, 0, 0)
		printPlan(out.Plan)
		return nil
	}

	var ok int
	for _, r := range out.Results {
		if r.OK {
			ok++
			color.Green("  ✓ %s", r.Item.ID)
		} else {
			color.Red("  ✗ %s / %s v%d: %s", r.Model, r.Screen, r.Variant, r.Error)
		}
	}
	finish(state.RunStatusCompleted, len(out.Results), ok)

	fmt.Printf("\n%d/%d images generated\n", ok, len(out.Results))
	fmt.Printf("Run: %s\n", run.Dir)
	fmt.Printf("Manifest: %s\n", out.ManifestPath)
	return nil
}
