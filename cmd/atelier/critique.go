package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/atelier/internal/config"
	"github.com/ShayCichocki/atelier/internal/prompt"
	"github.com/ShayCichocki/atelier/internal/provider"
	"github.com/ShayCichocki/atelier/internal/runstore"
	"github.com/ShayCichocki/atelier/internal/spec"
	"github.com/ShayCichocki/atelier/internal/stage"
	"github.com/ShayCichocki/atelier/internal/state"
	"github.com/ShayCichocki/atelier/pkg/models"
)

var (
	critiqueSpec        string
	critiqueModel       string
	critiqueRubric      string
	critiqueStyle       string
	critiqueConcurrency int
	critiqueMaxRetries  int
	critiqueOut         string
	critiqueRunID       string
	critiquePrompt      string
	critiquePromptFile  string
	critiqueDryRun      bool
)

var critiqueCmd = &cobra.Command{
	Use:   "critique <manifest.json | image...>",
	Short: "Score images against the brief's rubric",
	Long: `Critique images with a vision model against a weighted rubric.

The image source is either a generate/iterate manifest.json or a list
of image files. Each image is evaluated independently and concurrently;
atelier parses the model's structured response (with a best-effort
recovery path for malformed output), computes a weighted total over the
rubric, and writes one critique file per image plus a leaderboard
summary.

The rubric comes from the design brief's Rubric section, the built-in
default, or a YAML file passed with --rubric:

  criteria:
    - id: task_fitness
      label: Task Fitness
      weight: 0.5

The critique model must be vision-capable; anything else is rejected
before any work begins.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCritique,
}

func init() {
	critiqueCmd.Flags().StringVar(&critiqueSpec, "spec", "", "Design brief path (required)")
	critiqueCmd.Flags().StringVar(&critiqueModel, "model", "", "Vision model (provider:model); defaults from config")
	critiqueCmd.Flags().StringVar(&critiqueRubric, "rubric", "", "YAML rubric override file")
	critiqueCmd.Flags().StringVar(&critiqueStyle, "style", "", "Art-direction style text")
	critiqueCmd.Flags().IntVar(&critiqueConcurrency, "concurrency", 0, "Max in-flight provider calls; defaults from config")
	critiqueCmd.Flags().IntVar(&critiqueMaxRetries, "max-retries", 0, "Retry budget per provider call; defaults from config")
	critiqueCmd.Flags().StringVar(&critiqueOut, "out", "", "Base directory for run output; defaults from config")
	critiqueCmd.Flags().StringVar(&critiqueRunID, "run-id", "", "Run id; defaults to the current timestamp")
	critiqueCmd.Flags().StringVar(&critiquePrompt, "prompt", "", "Inline prompt template override")
	critiqueCmd.Flags().StringVar(&critiquePromptFile, "prompt-file", "", "Prompt template file override")
	critiqueCmd.Flags().BoolVar(&critiqueDryRun, "dry-run", false, "Print the plan without calling any provider")
	critiqueCmd.MarkFlagRequired("spec")
}

// critiqueImages resolves the command's image source arguments.
func critiqueImages(args []string) ([]models.ManifestItem, error) {
	if len(args) == 1 && strings.HasSuffix(args[0], ".json") {
		m, err := runstore.LoadManifest(args[0])
		if err != nil {
			return nil, err
		}
		if len(m.Items) == 0 {
			return nil, fmt.Errorf("manifest %s has no items", args[0])
		}
		return m.Items, nil
	}

	items := make([]models.ManifestItem, len(args))
	for i, path := range args {
		base := filepath.Base(path)
		items[i] = models.ManifestItem{
			ID:   runstore.Slug(strings.TrimSuffix(base, filepath.Ext(base))),
			Path: path,
		}
	}
	return items, nil
}

func runCritique(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	briefSource, err := os.ReadFile(critiqueSpec)
	if err != nil {
		return fmt.Errorf("read design brief: %w", err)
	}
	sp, err := spec.Parse(briefSource, critiqueStyle)
	if err != nil {
		return err
	}

	var rubric models.Rubric
	if critiqueRubric != "" {
		rubric, err = spec.LoadRubric(critiqueRubric)
		if err != nil {
			return err
		}
	}

	images, err := critiqueImages(args)
	if err != nil {
		return err
	}

	model := critiqueModel
	if model == "" {
		model = cfg.Defaults.CritiqueModel
	}
	concurrency := critiqueConcurrency
	if concurrency == 0 {
		concurrency = cfg.Defaults.Concurrency
	}
	maxRetries := critiqueMaxRetries
	if maxRetries == 0 {
		maxRetries = cfg.Defaults.MaxRetries
	}

	run, finish, err := openRun(cfg, critiqueOut, critiqueRunID, "critique", "")
	if err != nil {
		return err
	}
	if err := run.SnapshotInput(briefSource, critiqueStyle); err != nil {
		finish(state.RunStatusFailed, 0, 0)
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, stopWatch := run.WatchStop(ctx)
	defer stopWatch()

	out, err := stage.Critique(ctx, run, provider.NewRegistry(cfg), stage.CritiqueParams{
		Spec:        sp,
		Rubric:      rubric,
		Model:       model,
		Images:      images,
		Concurrency: concurrency,
		MaxRetries:  maxRetries,
		PromptOverrides: []prompt.Override{
			{Inline: critiquePrompt, File: critiquePromptFile},
		},
		DryRun: critiqueDryRun,
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
	for _, c := range out.Critiques {
		if c.Success {
			ok++
		}
	}
	finish(state.RunStatusCompleted, len(out.Critiques), ok)

	bold := color.New(color.Bold)
	bold.Println("Leaderboard")
	for _, e := range out.Summary.Leaderboard {
		fmt.Printf("  %d. %-40s %6.2f\n", e.Rank, e.ImageID, e.Score)
	}
	fmt.Printf("\nAverage: %.2f over %d critique(s)\n", out.Summary.AverageScore, ok)
	if out.Summary.Insights.CommonIssue != "" {
		color.Yellow("Most repeated issue: %s", out.Summary.Insights.CommonIssue)
	}
	if out.Summary.Insights.WeakestCriterion != "" {
		color.Yellow("Weakest criterion: %s", out.Summary.Insights.WeakestCriterion)
	}
	if failed := len(out.Critiques) - ok; failed > 0 {
		color.Red("%d critique(s) failed; see %s", failed, filepath.Join(run.Dir, "logs.jsonl"))
	}
	fmt.Printf("Run: %s\n", run.Dir)
	return nil
}
