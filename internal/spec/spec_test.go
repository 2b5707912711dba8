package spec

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleBrief = `# Finch Budgeting App

A calm personal-finance app for freelancers.

Type: mobile-app

## Screens

- Dashboard
- Transaction History
- Savings Goals

## Inspiration

- [Linear](https://linear.app)
- https://stripe.com

## Rubric

- task_fitness (Task Fitness): 0.4
- visual_hierarchy: 0.35
- polish: 0.25

## Notes

Prefer muted greens.
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleBrief), "flat minimal")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if s.Title != "Finch Budgeting App" {
		t.Errorf("Title = %q", s.Title)
	}
	if s.Description != "A calm personal-finance app for freelancers." {
		t.Errorf("Description = %q", s.Description)
	}
	if s.Type != "mobile-app" {
		t.Errorf("Type = %q, want mobile-app", s.Type)
	}
	if s.Style != "flat minimal" {
		t.Errorf("Style = %q", s.Style)
	}

	wantScreens := []string{"Dashboard", "Transaction History", "Savings Goals"}
	if len(s.Screens) != len(wantScreens) {
		t.Fatalf("Screens = %v, want %v", s.Screens, wantScreens)
	}
	for i, w := range wantScreens {
		if s.Screens[i] != w {
			t.Errorf("Screens[%d] = %q, want %q", i, s.Screens[i], w)
		}
	}

	if len(s.Inspiration) != 2 {
		t.Fatalf("Inspiration = %v, want 2 refs", s.Inspiration)
	}
	if s.Inspiration[0] != "https://linear.app" {
		t.Errorf("Inspiration[0] = %q", s.Inspiration[0])
	}

	if len(s.Rubric) != 3 {
		t.Fatalf("Rubric has %d criteria, want 3", len(s.Rubric))
	}
	if s.Rubric[0].ID != "task_fitness" || s.Rubric[0].Weight != 0.4 {
		t.Errorf("Rubric[0] = %+v", s.Rubric[0])
	}
	if s.Rubric[0].Label != "Task Fitness" {
		t.Errorf("Rubric[0].Label = %q", s.Rubric[0].Label)
	}
	if s.Rubric[1].Label != "visual_hierarchy" {
		t.Errorf("Rubric[1].Label = %q, want id fallback", s.Rubric[1].Label)
	}
}

func TestParse_Defaults(t *testing.T) {
	s, err := Parse([]byte("# Bare Brief\n\nJust a line.\n"), "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(s.Screens) != 1 || s.Screens[0] != SyntheticScreen {
		t.Errorf("Screens = %v, want synthetic %q", s.Screens, SyntheticScreen)
	}
	if s.Type != "ui-design" {
		t.Errorf("Type = %q, want default", s.Type)
	}
	if len(s.Rubric) == 0 {
		t.Error("expected default rubric")
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse([]byte("   \n"), ""); err == nil {
		t.Error("expected error for empty brief")
	}
	if _, err := Parse([]byte("no heading here\n"), ""); err == nil {
		t.Error("expected error for brief without title heading")
	}
}

func TestLoadRubric(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rubric.yaml")

	content := `
criteria:
  - id: contrast
    label: Contrast
    weight: 0.6
  - id: layout
    weight: 0.4
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rubric, err := LoadRubric(path)
	if err != nil {
		t.Fatalf("LoadRubric() error = %v", err)
	}
	if len(rubric) != 2 {
		t.Fatalf("got %d criteria, want 2", len(rubric))
	}
	if rubric[1].Label != "layout" {
		t.Errorf("missing label should fall back to id, got %q", rubric[1].Label)
	}
}

func TestLoadRubric_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rubric.yaml")

	if err := os.WriteFile(path, []byte("criteria: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRubric(path); err == nil {
		t.Error("expected error for empty criteria list")
	}
}
