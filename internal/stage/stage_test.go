package stage

import (
	"context"
	"sync"
	"testing"

	"github.com/ShayCichocki/atelier/internal/provider"
	"github.com/ShayCichocki/atelier/internal/runstore"
	"github.com/ShayCichocki/atelier/pkg/models"
)

// fakeProvider is a scriptable Provider for stage tests. It registers
// under "openai" so the capability table treats its models normally.
type fakeProvider struct {
	generateFn func(model string, req provider.ImageRequest) ([]byte, error)
	editFn     func(model string, req provider.EditRequest) ([]byte, error)
	critiqueFn func(model string, req provider.CritiqueRequest) (string, error)

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       int
}

func (f *fakeProvider) Name() string { return "openai" }

func (f *fakeProvider) enter() {
	f.mu.Lock()
	f.inFlight++
	f.calls++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
}

func (f *fakeProvider) exit() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeProvider) GenerateImage(ctx context.Context, model string, req provider.ImageRequest) ([]byte, error) {
	f.enter()
	defer f.exit()
	if f.generateFn != nil {
		return f.generateFn(model, req)
	}
	return []byte("png-bytes"), nil
}

func (f *fakeProvider) EditImage(ctx context.Context, model string, req provider.EditRequest) ([]byte, error) {
	f.enter()
	defer f.exit()
	if f.editFn != nil {
		return f.editFn(model, req)
	}
	return []byte("revised-bytes"), nil
}

func (f *fakeProvider) Critique(ctx context.Context, model string, req provider.CritiqueRequest) (string, error) {
	f.enter()
	defer f.exit()
	if f.critiqueFn != nil {
		return f.critiqueFn(model, req)
	}
	return `{"scores": {"task_fitness": 80, "polish": 70}, "strengths": ["clear"], "issues": ["cramped"], "revision_instruction": "add breathing room"}`, nil
}

func testRegistry(f *fakeProvider) *provider.Registry {
	r := provider.NewEmptyRegistry()
	r.Register(f)
	return r
}

func testRun(t *testing.T) *runstore.Run {
	t.Helper()
	r, err := runstore.Open(t.TempDir(), "test-run")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func testSpec() *models.Spec {
	return &models.Spec{
		Title:       "Finch",
		Description: "A budgeting app.",
		Type:        "mobile-app",
		Screens:     []string{"Dashboard", "Goals"},
		Rubric: models.Rubric{
			{ID: "task_fitness", Label: "Task Fitness", Weight: 0.6},
			{ID: "polish", Label: "Polish", Weight: 0.4},
		},
	}
}
