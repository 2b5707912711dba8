package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ShayCichocki/atelier/pkg/models"
)

// ManifestWriter serializes appends to one manifest file. Concurrent
// units must not read-modify-write the file themselves: every append
// goes through the writer's mutex so no update is lost.
type ManifestWriter struct {
	path string

	mu sync.Mutex
}

// NewManifestWriter returns a writer for the stage manifest inside the
// run ("generate" or "iterate").
func (r *Run) NewManifestWriter(stage string) *ManifestWriter {
	return &ManifestWriter{path: filepath.Join(r.StageDir(stage), "manifest.json")}
}

// Path returns the manifest file location.
func (w *ManifestWriter) Path() string { return w.path }

// Init writes the manifest header with an empty item list, replacing
// any previous file.
func (w *ManifestWriter) Init(m models.Manifest) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if m.Items == nil {
		m.Items = []models.ManifestItem{}
	}
	return w.write(m)
}

// Append adds one item, preserving append order, and refreshes the
// success counter.
func (w *ManifestWriter) Append(item models.ManifestItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	m, err := w.load()
	if err != nil {
		return err
	}
	m.Items = append(m.Items, item)
	m.SuccessfulImages = len(m.Items)
	return w.write(m)
}

// Load returns the current manifest contents.
func (w *ManifestWriter) Load() (models.Manifest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load()
}

func (w *ManifestWriter) load() (models.Manifest, error) {
	var m models.Manifest
	data, err := os.ReadFile(w.path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", w.path, err)
	}
	return m, nil
}

func (w *ManifestWriter) write(m models.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(w.path, data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest from an arbitrary path, e.g. a prior
// run's generate manifest passed as an iteration origin.
func LoadManifest(path string) (models.Manifest, error) {
	var m models.Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// LoadCandidates pairs a manifest's items with critiques from the
// critique directory sibling to the manifest's stage directory. Items
// with no usable critique carry no score and are returned separately.
func LoadCandidates(manifestPath string) ([]models.Candidate, []string, error) {
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, nil, err
	}
	critiqueDir := filepath.Join(filepath.Dir(manifestPath), "..", "critique")

	var pool []models.Candidate
	var unscored []string
	for _, item := range m.Items {
		c, err := LoadCritique(critiqueDir, item.ID)
		if err != nil || !c.Success {
			unscored = append(unscored, item.ID)
			continue
		}
		pool = append(pool, models.Candidate{
			Item:                item,
			Score:               c.WeightedTotal,
			RevisionInstruction: c.RevisionInstruction,
		})
	}
	return pool, unscored, nil
}

// LoadCritique reads one persisted critique by image id.
func LoadCritique(critiqueDir, imageID string) (models.Critique, error) {
	var c models.Critique
	data, err := os.ReadFile(filepath.Join(critiqueDir, imageID+".json"))
	if err != nil {
		return c, fmt.Errorf("read critique: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse critique %s: %w", imageID, err)
	}
	return c, nil
}
