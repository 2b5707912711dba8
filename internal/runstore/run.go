// Package runstore owns the on-disk layout of a run: the fixed
// directory tree, the per-stage manifests, per-image critiques, and the
// append-only structured log. Runs are never deleted and are safe to
// inspect or resume from externally.
package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ShayCichocki/atelier/pkg/models"
)

// RunIDFormat is the layout for default run ids, minute granularity.
const RunIDFormat = "2006-01-02@1504"

// Stage subdirectories created for every run.
var stageDirs = []string{"input", "generate", "critique", "iterate"}

// Run is one run directory and its open log.
type Run struct {
	ID  string
	Dir string

	log *Logger
}

// NewRunID derives a run id from wall-clock time at minute granularity.
func NewRunID(now time.Time) string {
	return now.Format(RunIDFormat)
}

// Open creates (or reopens) the run directory tree under base and
// opens the run log. An empty id gets a time-derived one.
func Open(base, id string) (*Run, error) {
	if id == "" {
		id = NewRunID(time.Now())
	}

	dir := filepath.Join(base, id)
	for _, sub := range stageDirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create run directory: %w", err)
		}
	}

	log, err := NewLogger(filepath.Join(dir, "logs.jsonl"))
	if err != nil {
		return nil, err
	}

	return &Run{ID: id, Dir: dir, log: log}, nil
}

// Log returns the run's structured logger.
func (r *Run) Log() *Logger { return r.log }

// Close releases the run log.
func (r *Run) Close() error { return r.log.Close() }

// InputDir returns the input snapshot directory.
func (r *Run) InputDir() string { return filepath.Join(r.Dir, "input") }

// StageDir returns the directory for a stage ("generate" or "iterate").
func (r *Run) StageDir(stage string) string { return filepath.Join(r.Dir, stage) }

// CritiqueDir returns the critique output directory.
func (r *Run) CritiqueDir() string { return filepath.Join(r.Dir, "critique") }

// SnapshotInput persists the brief (and style, when one was supplied)
// into the run's input directory.
func (r *Run) SnapshotInput(briefSource []byte, style string) error {
	if err := os.WriteFile(filepath.Join(r.InputDir(), "spec.md"), briefSource, 0644); err != nil {
		return fmt.Errorf("snapshot brief: %w", err)
	}
	if style != "" {
		if err := os.WriteFile(filepath.Join(r.InputDir(), "style.txt"), []byte(style), 0644); err != nil {
			return fmt.Errorf("snapshot style: %w", err)
		}
	}
	return nil
}

// InputSpecPath is the conventional brief location inside a run.
func (r *Run) InputSpecPath() string {
	return filepath.Join(r.InputDir(), "spec.md")
}

// ImagePath returns the path for a generated variant image, grouped by
// provider.
func (r *Run) ImagePath(stage, providerName, screen string, variant int) string {
	return filepath.Join(r.StageDir(stage), providerName,
		fmt.Sprintf("screen-%s_v%d.png", Slug(screen), variant))
}

// RevisionPath returns the path for a revised image, grouped by
// provider. The source variant keeps same-screen candidates revised in
// the same pass from writing over each other.
func (r *Run) RevisionPath(providerName, screen string, variant, pass int) string {
	return filepath.Join(r.StageDir("iterate"), providerName,
		fmt.Sprintf("screen-%s_v%d_rev%d.png", Slug(screen), variant, pass))
}

// WriteImage persists image bytes, creating the provider subdirectory.
func (r *Run) WriteImage(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// WriteCritique persists one critique as critique/<imageID>.json.
func (r *Run) WriteCritique(c models.Critique) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal critique: %w", err)
	}
	path := filepath.Join(r.CritiqueDir(), c.ImageID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write critique: %w", err)
	}
	return nil
}

// WriteSummary persists the human-readable critique summary.
func (r *Run) WriteSummary(markdown string) error {
	path := filepath.Join(r.CritiqueDir(), "summary.md")
	if err := os.WriteFile(path, []byte(markdown), 0644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug normalizes a screen name for use in file names.
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
