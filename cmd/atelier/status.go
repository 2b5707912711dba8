package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/atelier/internal/config"
	"github.com/ShayCichocki/atelier/internal/state"
)

var (
	statusOut   string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List recent runs",
	Long: `Display recent runs from the run index.

Shows each run's id, command, status, unit counts, and directory.
The index lives at <out>/atelier.db next to the run directories.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusOut, "out", "", "Base directory holding the run index; defaults from config")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Number of runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	outDir := statusOut
	if outDir == "" {
		outDir = cfg.Defaults.OutDir
	}

	dbPath := state.IndexPath(outDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Printf("No runs yet under %s. Run 'atelier generate <brief.md>' to start.\n", outDir)
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open run index: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate run index: %w", err)
	}

	runs, err := db.ListRecent(statusLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Printf("%-18s %-10s %-10s %8s  %s\n", "RUN", "COMMAND", "STATUS", "UNITS", "STARTED")
	for _, r := range runs {
		command := r.Command
		if r.Pipeline != "" {
			command = fmt.Sprintf("%s:%s", r.Command, r.Pipeline)
		}
		units := fmt.Sprintf("%d/%d", r.SuccessfulUnits, r.TotalUnits)
		line := fmt.Sprintf("%-18s %-10s %-10s %8s  %s", r.ID, command, r.Status, units, r.StartedAt.Local().Format(time.DateTime))
		switch r.Status {
		case state.RunStatusCompleted:
			color.Green("%s", line)
		case state.RunStatusFailed:
			color.Red("%s", line)
		default:
			fmt.Println(line)
		}
	}
	return nil
}
