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
	"github.com/ShayCichocki/atelier/internal/runstore"
	"github.com/ShayCichocki/atelier/internal/spec"
	"github.com/ShayCichocki/atelier/internal/stage"
	"github.com/ShayCichocki/atelier/internal/state"
)

var (
	iterateOriginPath    string
	iterateSpec          string
	iterateStyle         string
	iteratePasses        int
	iterateMinScore      float64
	iterateTopK          int
	iterateModels        []string
	iterateCritiqueModel string
	iterateConcurrency   int
	iterateMaxRetries    int
	iterateOut           string
	iterateRunID         string
	iteratePrompt        string
	iteratePromptFile    string
	iterateDryRun        bool
)

var iterateCmd = &cobra.Command{
	Use:   "iterate",
	Short: "Iteratively revise the best candidates",
	Long: `Revise the highest-scoring candidates over one or more passes.

Each pass selects candidates by score (minimum score filter, then
top-K), revises each selected image in edit mode using its own critique
feedback as the revision instruction, then re-critiques the revisions
to score the next pass's pool. A pass with zero successful revisions
ends the iteration early.

--origin points at a prior run's generate (or iterate) manifest.json;
scores come from the critique files next to it, so run
'atelier critique' on that manifest first.`,
	RunE: runIterate,
}

func init() {
	iterateCmd.Flags().StringVar(&iterateOriginPath, "origin", "", "Prior run's manifest.json to iterate from (required)")
	iterateCmd.Flags().StringVar(&iterateSpec, "spec", "", "Design brief path (required)")
	iterateCmd.Flags().StringVar(&iterateStyle, "style", "", "Art-direction style text")
	iterateCmd.Flags().IntVar(&iteratePasses, "passes", 0, "Number of revision passes; defaults from config")
	iterateCmd.Flags().Float64Var(&iterateMinScore, "min-score", -1, "Drop candidates scoring below this")
	iterateCmd.Flags().IntVar(&iterateTopK, "top-k", 0, "Keep at most K candidates per pass")
	iterateCmd.Flags().StringSliceVar(&iterateModels, "models", nil, "Override revision model (provider:model)")
	iterateCmd.Flags().StringVar(&iterateCritiqueModel, "model", "", "Vision model for re-critique; defaults from config")
	iterateCmd.Flags().IntVar(&iterateConcurrency, "concurrency", 0, "Max in-flight provider calls; defaults from config")
	iterateCmd.Flags().IntVar(&iterateMaxRetries, "max-retries", 0, "Retry budget per provider call; defaults from config")
	iterateCmd.Flags().StringVar(&iterateOut, "out", "", "Base directory for run output; defaults from config")
	iterateCmd.Flags().StringVar(&iterateRunID, "run-id", "", "Run id; defaults to the current timestamp")
	iterateCmd.Flags().StringVar(&iteratePrompt, "prompt", "", "Inline revision prompt template override")
	iterateCmd.Flags().StringVar(&iteratePromptFile, "prompt-file", "", "Revision prompt template file override")
	iterateCmd.Flags().BoolVar(&iterateDryRun, "dry-run", false, "Print the plan without calling any provider")
	iterateCmd.MarkFlagRequired("origin")
	iterateCmd.MarkFlagRequired("spec")
}

func runIterate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	briefSource, err := os.ReadFile(iterateSpec)
	if err != nil {
		return fmt.Errorf("read design brief: %w", err)
	}
	sp, err := spec.Parse(briefSource, iterateStyle)
	if err != nil {
		return err
	}

	origin, unscored, err := runstore.LoadCandidates(iterateOriginPath)
	if err != nil {
		return err
	}
	for _, id := range unscored {
		color.Yellow("warning: no critique for %s, skipping", id)
	}
	if len(origin) == 0 {
		return fmt.Errorf("origin %s has no critiqued items; run 'atelier critique' on it first", iterateOriginPath)
	}

	policy := cfg.SelectPolicy()
	if iterateMinScore >= 0 {
		policy.MinScore = &iterateMinScore
	}
	if iterateTopK > 0 {
		policy.TopK = &iterateTopK
	}
	passes := iteratePasses
	if passes == 0 {
		passes = cfg.Defaults.Passes
	}
	critiqueModel := iterateCritiqueModel
	if critiqueModel == "" {
		critiqueModel = cfg.Defaults.CritiqueModel
	}
	concurrency := iterateConcurrency
	if concurrency == 0 {
		concurrency = cfg.Defaults.Concurrency
	}
	maxRetries := iterateMaxRetries
	if maxRetries == 0 {
		maxRetries = cfg.Defaults.MaxRetries
	}

	run, finish, err := openRun(cfg, iterateOut, iterateRunID, "iterate", "")
	if err != nil {
		return err
	}
	if err := run.SnapshotInput(briefSource, iterateStyle); err != nil {
		finish(state.RunStatusFailed, 0, 0)
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, stopWatch := run.WatchStop(ctx)
	defer stopWatch()

	out, err := stage.Iterate(ctx, run, provider.NewRegistry(cfg), stage.IterateParams{
		Spec:          sp,
		Origin:        origin,
		Passes:        passes,
		Policy:        policy,
		Models:        iterateModels,
		CritiqueModel: critiqueModel,
		Concurrency:   concurrency,
		MaxRetries:    maxRetries,
		RevisePromptOverrides: []prompt.Override{
			{Inline: iteratePrompt, File: iteratePromptFile},
		},
		DryRun: iterateDryRun,
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
			color.Green("  ✓ pass %d: %s", r.Pass, r.Item.ID)
		} else {
			color.Red("  ✗ pass %d: %s: %s", r.Pass, r.SourceID, r.Error)
		}
	}
	finish(state.RunStatusCompleted, len(out.Results), ok)

	fmt.Printf("\n%d/%d revisions succeeded\n", ok, len(out.Results))
	if len(out.FinalImages) > 0 {
		bold := color.New(color.Bold)
		bold.Println("Final images:")
		for _, path := range out.FinalImages {
			fmt.Printf("  %s\n", path)
		}
	}
	fmt.Printf("Run: %s\n", run.Dir)
	return nil
}
