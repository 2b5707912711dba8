// Package state provides the SQLite-backed run index for Atelier.
package state

import (
	"io"
	"time"
)

// RunStatus is the lifecycle state of an indexed run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is in progress.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates the run finished without a fatal error.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the run aborted.
	RunStatusFailed RunStatus = "failed"
)

// RunRecord is one row of the run index.
type RunRecord struct {
	// ID is the run id, matching the run directory name.
	ID string
	// Command is the top-level command that created the run.
	Command string
	// Pipeline is the pipeline name for `run` commands, else empty.
	Pipeline string
	// Dir is the absolute run directory.
	Dir string
	// Status is the current lifecycle state.
	Status RunStatus
	// TotalUnits is the number of provider calls attempted.
	TotalUnits int
	// SuccessfulUnits is the number that succeeded.
	SuccessfulUnits int
	// StartedAt is when the run began.
	StartedAt time.Time
	// FinishedAt is when the run ended, nil while running.
	FinishedAt *time.Time
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// RunIndex defines the interface for run-index persistence. Commands
// depend on this rather than the concrete SQLite implementation.
type RunIndex interface {
	io.Closer
	Migrator
	RecordStart(r *RunRecord) error
	RecordFinish(id string, status RunStatus, totalUnits, successfulUnits int) error
	GetRun(id string) (*RunRecord, error)
	ListRecent(limit int) ([]RunRecord, error)
}

// Compile-time verification that DB implements the interfaces.
var (
	_ RunIndex = (*DB)(nil)
	_ Migrator = (*DB)(nil)
)
