package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePipelineFile(t *testing.T, p Pipeline) string {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "pipeline.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		pipeline Pipeline
		wantErr  string
		wantWarn int
	}{
		{
			name: "valid chain",
			pipeline: Pipeline{Name: "explore", Steps: []Step{
				{ID: "gen", Run: StepGenerate},
				{ID: "crit", Run: StepCritique, From: "gen"},
				{ID: "iter", Run: StepIterate, From: "crit"},
			}},
		},
		{
			name:     "missing name",
			pipeline: Pipeline{Steps: []Step{{ID: "a", Run: StepGenerate}}},
			wantErr:  "no name",
		},
		{
			name:     "no steps",
			pipeline: Pipeline{Name: "empty"},
			wantErr:  "no steps",
		},
		{
			name: "duplicate ids",
			pipeline: Pipeline{Name: "dup", Steps: []Step{
				{ID: "a", Run: StepGenerate},
				{ID: "a", Run: StepCritique},
			}},
			wantErr: `duplicate step id "a"`,
		},
		{
			name: "unknown kind",
			pipeline: Pipeline{Name: "bad", Steps: []Step{
				{ID: "a", Run: "transmogrify"},
			}},
			wantErr: "unknown kind",
		},
		{
			name: "step without id",
			pipeline: Pipeline{Name: "anon", Steps: []Step{
				{Run: StepGenerate},
			}},
			wantErr: "no id",
		},
		{
			name: "forward reference warns",
			pipeline: Pipeline{Name: "fwd", Steps: []Step{
				{ID: "crit", Run: StepCritique, From: "later"},
				{ID: "later", Run: StepGenerate},
			}},
			wantWarn: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings, err := tt.pipeline.Validate()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(warnings) != tt.wantWarn {
				t.Errorf("warnings = %v, want %d", warnings, tt.wantWarn)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := writePipelineFile(t, Pipeline{
		Name: "explore-and-refine",
		Steps: []Step{
			{ID: "gen", Run: StepGenerate, Variants: 2},
			{ID: "crit", Run: StepCritique, From: "gen"},
		},
	})

	p, warnings, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if p.Name != "explore-and-refine" || len(p.Steps) != 2 {
		t.Errorf("loaded pipeline = %+v", p)
	}
	if p.Steps[0].Variants != 2 {
		t.Errorf("variants = %d", p.Steps[0].Variants)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := writePipelineFile(t, Pipeline{
		Name: "dup",
		Steps: []Step{
			{ID: "a", Run: StepGenerate},
			{ID: "a", Run: StepCritique},
		},
	})
	if _, _, err := Load(path); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
