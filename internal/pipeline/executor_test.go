package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/atelier/internal/config"
	"github.com/ShayCichocki/atelier/internal/provider"
	"github.com/ShayCichocki/atelier/internal/runstore"
	"github.com/ShayCichocki/atelier/pkg/models"
)

func manifestHeader() models.Manifest {
	return models.Manifest{
		Title:       "Finch",
		Screens:     []string{"Dashboard"},
		Models:      []string{"openai:gpt-image-1"},
		TotalImages: 1,
		Timestamp:   time.Now(),
	}
}

func manifestItemFor(path string) models.ManifestItem {
	return models.ManifestItem{
		ID:        "dashboard-openai-v0",
		Screen:    "Dashboard",
		Model:     "openai:gpt-image-1",
		Path:      path,
		Timestamp: time.Now(),
	}
}

func critiqueFor(id, path string, score float64) models.Critique {
	return models.Critique{
		ImageID:             id,
		Image:               path,
		Model:               "openai:gpt-4o",
		Scores:              map[string]float64{"task_fitness": score},
		WeightedTotal:       score,
		RevisionInstruction: "tune the palette",
		Success:             true,
	}
}

// scriptedProvider is a minimal openai stand-in for executor tests.
type scriptedProvider struct {
	mu       sync.Mutex
	calls    int
	critique string
	generate func(req provider.ImageRequest) ([]byte, error)
}

func (s *scriptedProvider) Name() string { return "openai" }

func (s *scriptedProvider) count() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *scriptedProvider) GenerateImage(ctx context.Context, model string, req provider.ImageRequest) ([]byte, error) {
	s.count()
	if s.generate != nil {
		return s.generate(req)
	}
	return []byte("png-bytes"), nil
}

func (s *scriptedProvider) EditImage(ctx context.Context, model string, req provider.EditRequest) ([]byte, error) {
	s.count()
	return []byte("revised-bytes"), nil
}

func (s *scriptedProvider) Critique(ctx context.Context, model string, req provider.CritiqueRequest) (string, error) {
	s.count()
	return s.critique, nil
}

const testBrief = `# Finch

A calm budgeting app for freelancers.

Type: mobile-app

## Screens

- Dashboard
`

func testExecutor(t *testing.T, p *scriptedProvider) *Executor {
	t.Helper()
	run, err := runstore.Open(t.TempDir(), "exec-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { run.Close() })

	reg := provider.NewEmptyRegistry()
	reg.Register(p)

	cfg := config.Default()
	cfg.Defaults.Models = []string{"openai:gpt-image-1"}
	cfg.Defaults.CritiqueModel = "openai:gpt-4o"

	return &Executor{
		Run:         run,
		Registry:    reg,
		Config:      cfg,
		Concurrency: 2,
		MaxRetries:  1,
	}
}

func writeBrief(t *testing.T, e *Executor) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "brief.md")
	if err := os.WriteFile(path, []byte(testBrief), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecute_ThreadsDataBetweenSteps(t *testing.T) {
	p := &scriptedProvider{
		critique: `{"scores": {"task_fitness": 90, "visual_hierarchy": 85, "consistency": 80, "polish": 75, "originality": 70}, "issues": ["busy header"], "revision_instruction": "simplify the header"}`,
	}
	e := testExecutor(t, p)
	brief := writeBrief(t, e)

	results, err := e.Execute(context.Background(), &Pipeline{
		Name: "explore",
		Spec: brief,
		Steps: []Step{
			{ID: "gen", Run: StepGenerate, Variants: 2},
			{ID: "crit", Run: StepCritique, From: "gen"},
			{ID: "iter", Run: StepIterate, From: "crit", Passes: 1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d step results, want 3", len(results))
	}

	gen, crit, iter := results[0], results[1], results[2]
	if len(gen.Images) != 2 {
		t.Fatalf("generate produced %d images, want 2", len(gen.Images))
	}
	if len(crit.Critiques) != 2 {
		t.Fatalf("critique evaluated %d images, want the generate step's 2", len(crit.Critiques))
	}
	if len(crit.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(crit.Candidates))
	}
	// Default policy keeps top 3 at or above 70; both images clear it.
	if len(iter.FinalImages) != 2 {
		t.Errorf("iterate final images = %v", iter.FinalImages)
	}
	for _, res := range iter.Images {
		if res.Pass != 1 {
			t.Errorf("revision item pass = %d", res.Pass)
		}
	}
	for _, r := range results {
		if r.Attempted != 2 || r.Succeeded != 2 {
			t.Errorf("step %s counts = %d/%d, want 2/2", r.Step.ID, r.Succeeded, r.Attempted)
		}
	}
}

func TestExecute_CountsOnlySuccessfulUnits(t *testing.T) {
	seed := int64(100)
	p := &scriptedProvider{
		generate: func(req provider.ImageRequest) ([]byte, error) {
			if req.Seed != nil && *req.Seed == 101 {
				return nil, errors.New("provider overloaded")
			}
			return []byte("png-bytes"), nil
		},
	}
	e := testExecutor(t, p)
	brief := writeBrief(t, e)

	results, err := e.Execute(context.Background(), &Pipeline{
		Name: "partial",
		Spec: brief,
		Steps: []Step{
			{ID: "gen", Run: StepGenerate, Variants: 2, Seed: &seed},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d step results, want 1", len(results))
	}
	if results[0].Attempted != 2 || results[0].Succeeded != 1 {
		t.Errorf("counts = %d/%d, want 1 of 2", results[0].Succeeded, results[0].Attempted)
	}
}

func TestExecute_FailFastOnMissingSpec(t *testing.T) {
	p := &scriptedProvider{}
	e := testExecutor(t, p)

	_, err := e.Execute(context.Background(), &Pipeline{
		Name: "nospec",
		Steps: []Step{
			{ID: "gen", Run: StepGenerate},
		},
	})
	if err == nil {
		t.Fatal("expected a spec resolution error")
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times despite missing spec", p.calls)
	}
}

func TestExecute_RejectsInvalidBeforeRunning(t *testing.T) {
	p := &scriptedProvider{}
	e := testExecutor(t, p)
	brief := writeBrief(t, e)

	_, err := e.Execute(context.Background(), &Pipeline{
		Name: "dup",
		Spec: brief,
		Steps: []Step{
			{ID: "a", Run: StepGenerate},
			{ID: "a", Run: StepGenerate},
		},
	})
	if err == nil {
		t.Fatal("expected validation to reject duplicate ids")
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times before validation", p.calls)
	}
}

func TestExecute_DryRunMakesNoCalls(t *testing.T) {
	p := &scriptedProvider{}
	e := testExecutor(t, p)
	e.DryRun = true
	brief := writeBrief(t, e)

	results, err := e.Execute(context.Background(), &Pipeline{
		Name: "plan-only",
		Spec: brief,
		Steps: []Step{
			{ID: "gen", Run: StepGenerate, Variants: 3},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Plan == nil || results[0].Plan.Units != 3 {
		t.Fatalf("plan = %+v", results[0].Plan)
	}
	if p.calls != 0 {
		t.Errorf("dry run made %d provider calls", p.calls)
	}
}

func TestIterateOrigin_ExternalManifest(t *testing.T) {
	p := &scriptedProvider{}
	e := testExecutor(t, p)

	// Build a prior run on disk: generate manifest + critique files.
	prior, err := runstore.Open(t.TempDir(), "prior")
	if err != nil {
		t.Fatal(err)
	}
	defer prior.Close()

	imgPath := prior.ImagePath("generate", "openai", "Dashboard", 0)
	if err := prior.WriteImage(imgPath, []byte("old-image")); err != nil {
		t.Fatal(err)
	}
	mw := prior.NewManifestWriter("generate")
	if err := mw.Init(manifestHeader()); err != nil {
		t.Fatal(err)
	}
	item := manifestItemFor(imgPath)
	if err := mw.Append(item); err != nil {
		t.Fatal(err)
	}
	if err := prior.WriteCritique(critiqueFor(item.ID, imgPath, 88)); err != nil {
		t.Fatal(err)
	}

	pool, err := e.iterateOrigin(Step{ID: "iter", Run: StepIterate, Origin: mw.Path()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pool) != 1 {
		t.Fatalf("pool = %+v, want one candidate", pool)
	}
	if pool[0].Score != 88 || pool[0].Item.ID != item.ID {
		t.Errorf("candidate = %+v", pool[0])
	}
}
