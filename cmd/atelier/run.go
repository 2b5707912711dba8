package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/atelier/internal/config"
	"github.com/ShayCichocki/atelier/internal/pipeline"
	"github.com/ShayCichocki/atelier/internal/provider"
	"github.com/ShayCichocki/atelier/internal/state"
)

var (
	runSpec        string
	runStyle       string
	runOut         string
	runID          string
	runConcurrency int
	runMaxRetries  int
	runDryRun      bool
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline.json>",
	Short: "Execute a declarative pipeline",
	Long: `Execute a pipeline of generate/critique/iterate steps from a JSON file.

Steps run in declared order; a step references an earlier step's output
with "from". A "from" that names no earlier step is treated as an
external manifest path and only warns. A step that itself fails (as
opposed to absorbing individual image failures) aborts the remaining
steps; completed steps' artifacts stay on disk.

Example pipeline:

  {
    "name": "explore-and-refine",
    "spec": "brief.md",
    "steps": [
      {"id": "gen", "run": "generate", "variants": 3},
      {"id": "crit", "run": "critique", "from": "gen"},
      {"id": "iter", "run": "iterate", "from": "crit", "passes": 2}
    ]
  }

--spec overrides the pipeline's brief for every step that does not name
its own.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runSpec, "spec", "", "Design brief overriding the pipeline's")
	runCmd.Flags().StringVar(&runStyle, "style", "", "Art-direction style text")
	runCmd.Flags().StringVar(&runOut, "out", "", "Base directory for run output; defaults from config")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run id; defaults to the current timestamp")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Max in-flight provider calls; defaults from config")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "Retry budget per provider call; defaults from config")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print each step's plan without calling any provider")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pl, warnings, err := pipeline.Load(args[0])
	if err != nil {
		return err
	}
	for _, w := range warnings {
		color.Yellow("warning: %s", w)
	}
	if runSpec != "" {
		pl.Spec = runSpec
	}

	concurrency := runConcurrency
	if concurrency == 0 {
		concurrency = cfg.Defaults.Concurrency
	}
	maxRetries := runMaxRetries
	if maxRetries == 0 {
		maxRetries = cfg.Defaults.MaxRetries
	}

	run, finish, err := openRun(cfg, runOut, runID, "run", pl.Name)
	if err != nil {
		return err
	}
	if pl.Spec != "" {
		briefSource, err := os.ReadFile(pl.Spec)
		if err != nil {
			finish(state.RunStatusFailed, 0, 0)
			return fmt.Errorf("read design brief: %w", err)
		}
		if err := run.SnapshotInput(briefSource, runStyle); err != nil {
			finish(state.RunStatusFailed, 0, 0)
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, stopWatch := run.WatchStop(ctx)
	defer stopWatch()

	exec := &pipeline.Executor{
		Run:         run,
		Registry:    provider.NewRegistry(cfg),
		Config:      cfg,
		Style:       runStyle,
		Concurrency: concurrency,
		MaxRetries:  maxRetries,
		DryRun:      runDryRun,
	}

	results, err := exec.Execute(ctx, pl)

	var attempted, succeeded int
	for _, r := range results {
		attempted += r.Attempted
		succeeded += r.Succeeded
	}

	if err != nil {
		finish(state.RunStatusFailed, attempted, succeeded)
		return err
	}
	finish(state.RunStatusCompleted, attempted, succeeded)

	bold := color.New(color.Bold)
	for _, r := range results {
		if r.Plan != nil {
			printPlan(r.Plan)
			fmt.Println()
			continue
		}
		color.Green("  ✓ %s (%s): %d output(s)", r.Step.ID, r.Step.Run, len(r.Images))
	}
	if !runDryRun {
		bold.Printf("\nPipeline %s complete\n", pl.Name)
		fmt.Printf("Run: %s\n", run.Dir)
	}
	return nil
}
