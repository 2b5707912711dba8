package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/atelier/internal/config"
	"github.com/ShayCichocki/atelier/internal/runstore"
	"github.com/ShayCichocki/atelier/internal/state"
	"github.com/ShayCichocki/atelier/pkg/models"
)

var rootCmd = &cobra.Command{
	Use:   "atelier",
	Short: "Creative workflow orchestrator",
	Long: `Atelier orchestrates multi-stage creative workflows: generate image
candidates from a Markdown design brief, critique them against a
weighted rubric with a vision model, then iteratively revise the best
candidates using their own critique feedback.

Every run persists its artifacts under a structured run directory:
the input snapshot, generated images, per-image critiques with a
leaderboard summary, revision outputs, and an append-only JSONL log.

Typical flow:
  atelier generate brief.md          create image candidates
  atelier critique <manifest>        score them against the rubric
  atelier iterate --origin <manifest>  revise the best candidates
  atelier run pipeline.json          do all of it declaratively`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(critiqueCmd)
	rootCmd.AddCommand(iterateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// openRun creates the run directory and records the run in the index
// database. The caller must invoke the returned finish func with the
// final status and unit counts.
func openRun(cfg *config.Config, outDir, runID, command, pipeline string) (*runstore.Run, func(state.RunStatus, int, int), error) {
	if outDir == "" {
		outDir = cfg.Defaults.OutDir
	}
	if runID == "" {
		runID = runstore.NewRunID(time.Now())
	}

	run, err := runstore.Open(outDir, runID)
	if err != nil {
		return nil, nil, err
	}

	db, err := state.Open(state.IndexPath(outDir))
	if err != nil {
		run.Close()
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		run.Close()
		return nil, nil, err
	}
	if err := db.RecordStart(&state.RunRecord{
		ID:        runID,
		Command:   command,
		Pipeline:  pipeline,
		Dir:       run.Dir,
		Status:    state.RunStatusRunning,
		StartedAt: time.Now(),
	}); err != nil {
		db.Close()
		run.Close()
		return nil, nil, err
	}

	finish := func(status state.RunStatus, total, successful int) {
		if err := db.RecordFinish(runID, status, total, successful); err != nil {
			fmt.Fprintf(os.Stderr, "warning: record finish: %v\n", err)
		}
		db.Close()
		run.Close()
	}
	return run, finish, nil
}

// printPlan renders a dry-run plan to stdout.
func printPlan(plan *models.Plan) {
	bold := color.New(color.Bold)
	bold.Printf("Dry run: %s\n", plan.Command)
	fmt.Printf("  Units:   %d\n", plan.Units)
	if len(plan.Models) > 0 {
		fmt.Printf("  Models:  %v\n", plan.Models)
	}
	if len(plan.Screens) > 0 {
		fmt.Printf("  Screens: %v\n", plan.Screens)
	}
	for _, s := range plan.Skipped {
		color.Yellow("  Skipped: %s", s)
	}
	if plan.SamplePrompt != "" {
		bold.Println("\nSample prompt:")
		fmt.Println(plan.SamplePrompt)
	}
}
