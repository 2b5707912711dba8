// Package pipeline interprets declarative step lists, threading data
// between generate, critique, and iterate stages by named reference.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ShayCichocki/atelier/pkg/models"
)

// StepKind is the closed set of behaviors a step can run.
type StepKind string

const (
	StepGenerate StepKind = "generate"
	StepCritique StepKind = "critique"
	StepIterate  StepKind = "iterate"
)

// Known reports whether k is one of the supported step kinds.
func (k StepKind) Known() bool {
	switch k {
	case StepGenerate, StepCritique, StepIterate:
		return true
	}
	return false
}

// Step is one entry in a pipeline's ordered step list. Fields beyond
// ID and Run are kind-specific; irrelevant ones are ignored.
type Step struct {
	ID string `json:"id"`
	// Run selects the stage this step dispatches to.
	Run StepKind `json:"run"`
	// From names an earlier step whose output feeds this step. An
	// unknown reference is a warning, not an error: it may be an
	// external manifest path instead.
	From string `json:"from,omitempty"`
	// Spec is a step-local brief path overriding the pipeline's.
	Spec string `json:"spec,omitempty"`

	Models   []string             `json:"models,omitempty"`
	Variants int                  `json:"variants,omitempty"`
	Screens  []string             `json:"screens,omitempty"`
	Select   *models.SelectPolicy `json:"select,omitempty"`
	Passes   int                  `json:"passes,omitempty"`
	Seed     *int64               `json:"seed,omitempty"`
	// Model is the vision model for critique steps.
	Model string `json:"model,omitempty"`
	// Origin is an external manifest path for iterate steps.
	Origin string `json:"origin,omitempty"`
	// Images are explicit image paths for critique steps.
	Images []string `json:"images,omitempty"`

	GeneratePrompt     string `json:"generatePrompt,omitempty"`
	GeneratePromptFile string `json:"generatePromptFile,omitempty"`
	CritiquePrompt     string `json:"critiquePrompt,omitempty"`
	CritiquePromptFile string `json:"critiquePromptFile,omitempty"`
	RevisePrompt       string `json:"revisePrompt,omitempty"`
	RevisePromptFile   string `json:"revisePromptFile,omitempty"`
}

// Pipeline is a declarative run description: a named, ordered list of
// steps plus pipeline-global overrides shared by every step.
type Pipeline struct {
	Name  string `json:"name"`
	Spec  string `json:"spec,omitempty"`
	Steps []Step `json:"steps"`

	GeneratePrompt     string `json:"generatePrompt,omitempty"`
	GeneratePromptFile string `json:"generatePromptFile,omitempty"`
	CritiquePrompt     string `json:"critiquePrompt,omitempty"`
	CritiquePromptFile string `json:"critiquePromptFile,omitempty"`
	RevisePrompt       string `json:"revisePrompt,omitempty"`
	RevisePromptFile   string `json:"revisePromptFile,omitempty"`
}

// Load reads and validates a pipeline JSON file. The returned warnings
// are advisory and never block execution.
func Load(path string) (*Pipeline, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read pipeline: %w", err)
	}
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil, fmt.Errorf("parse pipeline %s: %w", path, err)
	}
	warnings, err := p.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return &p, warnings, nil
}

// Validate checks the pipeline's structure before any step executes.
// Structural violations are errors; a `from` that names no earlier
// step only warns, since it may resolve to an external path.
func (p *Pipeline) Validate() ([]string, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("pipeline has no name")
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("pipeline %q has no steps", p.Name)
	}

	var warnings []string
	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == "" {
			return warnings, fmt.Errorf("step %d has no id", i)
		}
		if seen[s.ID] {
			return warnings, fmt.Errorf("duplicate step id %q", s.ID)
		}
		if !s.Run.Known() {
			return warnings, fmt.Errorf("step %q: unknown kind %q", s.ID, s.Run)
		}
		if s.From != "" && !seen[s.From] {
			warnings = append(warnings, fmt.Sprintf("step %q: from %q does not name an earlier step; treating it as an external path", s.ID, s.From))
		}
		seen[s.ID] = true
	}
	return warnings, nil
}
