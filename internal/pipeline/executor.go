package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/atelier/internal/config"
	"github.com/ShayCichocki/atelier/internal/prompt"
	"github.com/ShayCichocki/atelier/internal/provider"
	"github.com/ShayCichocki/atelier/internal/runstore"
	"github.com/ShayCichocki/atelier/internal/spec"
	"github.com/ShayCichocki/atelier/internal/stage"
	"github.com/ShayCichocki/atelier/pkg/models"
)

// Executor dispatches pipeline steps to the stages, resolving each
// step's spec and data dependencies. Stages absorb per-unit failures
// internally; a stage invocation that itself errors aborts the rest of
// the pipeline. Artifacts of completed steps stay on disk.
type Executor struct {
	Run      *runstore.Run
	Registry *provider.Registry
	Config   *config.Config
	// Style is applied when parsing design briefs.
	Style string
	// Concurrency and MaxRetries bound every stage invocation.
	Concurrency int
	MaxRetries  int
	// DryRun short-circuits each step into a plan.
	DryRun bool
}

// StepResult is a completed step's output, keyed by step id so later
// steps can reference it via `from`.
type StepResult struct {
	Step Step
	// Plan is set instead of the output fields on a dry run.
	Plan *models.Plan
	// Images are the step's output items usable downstream: the
	// successful units of a generate/iterate step, or the evaluated
	// inputs of a critique step.
	Images []models.ManifestItem
	// Critiques and Candidates are set by critique steps.
	Critiques  []models.Critique
	Candidates []models.Candidate
	// FinalImages are an iterate step's surviving paths.
	FinalImages  []string
	ManifestPath string
	// Attempted and Succeeded count the step's units for the run index.
	Attempted int
	Succeeded int
}

// Execute runs the pipeline's steps in declared order, fail-fast.
func (e *Executor) Execute(ctx context.Context, p *Pipeline) ([]*StepResult, error) {
	if _, err := p.Validate(); err != nil {
		return nil, err
	}

	log := e.Run.Log()
	byID := make(map[string]*StepResult, len(p.Steps))
	var results []*StepResult

	for _, s := range p.Steps {
		log.Info("pipeline", "step started", map[string]any{"pipeline": p.Name, "step": s.ID, "kind": string(s.Run)})

		result, err := e.runStep(ctx, p, s, byID)
		if err != nil {
			log.Error("pipeline", "step failed", map[string]any{"pipeline": p.Name, "step": s.ID, "error": err.Error()})
			return results, fmt.Errorf("step %q: %w", s.ID, err)
		}

		byID[s.ID] = result
		results = append(results, result)
		log.Info("pipeline", "step completed", map[string]any{
			"pipeline": p.Name, "step": s.ID, "kind": string(s.Run), "outputs": len(result.Images),
		})
	}
	return results, nil
}

func (e *Executor) runStep(ctx context.Context, p *Pipeline, s Step, prior map[string]*StepResult) (*StepResult, error) {
	sp, err := e.resolveSpec(p, s)
	if err != nil {
		return nil, err
	}

	switch s.Run {
	case StepGenerate:
		return e.runGenerate(ctx, p, s, sp)
	case StepCritique:
		return e.runCritique(ctx, p, s, sp, prior)
	case StepIterate:
		return e.runIterate(ctx, p, s, sp, prior)
	default:
		return nil, fmt.Errorf("unknown step kind %q", s.Run)
	}
}

// resolveSpec walks the brief resolution chain: step-local path, then
// pipeline-global path, then the run's input snapshot.
func (e *Executor) resolveSpec(p *Pipeline, s Step) (*models.Spec, error) {
	for _, path := range []string{s.Spec, p.Spec} {
		if path == "" {
			continue
		}
		return spec.ParseFile(path, e.Style)
	}
	snapshot := e.Run.InputSpecPath()
	if _, err := os.Stat(snapshot); err == nil {
		return spec.ParseFile(snapshot, e.Style)
	}
	return nil, fmt.Errorf("no spec: step %q names none, pipeline names none, and %s does not exist", s.ID, snapshot)
}

func (e *Executor) runGenerate(ctx context.Context, p *Pipeline, s Step, sp *models.Spec) (*StepResult, error) {
	genModels := s.Models
	if len(genModels) == 0 {
		genModels = e.Config.Defaults.Models
	}
	variants := s.Variants
	if variants == 0 {
		variants = e.Config.Defaults.Variants
	}

	out, err := stage.Generate(ctx, e.Run, e.Registry, stage.GenerateParams{
		Spec:            sp,
		Models:          genModels,
		Screens:         s.Screens,
		Variants:        variants,
		Concurrency:     e.Concurrency,
		MaxRetries:      e.MaxRetries,
		Seed:            s.Seed,
		PromptOverrides: promptChain(prompt.KindGenerate, p, s),
		DryRun:          e.DryRun,
	})
	if err != nil {
		return nil, err
	}

	result := &StepResult{Step: s, Plan: out.Plan, ManifestPath: out.ManifestPath, Attempted: len(out.Results)}
	for _, r := range out.Results {
		if r.OK {
			result.Images = append(result.Images, r.Item)
		}
	}
	result.Succeeded = len(result.Images)
	return result, nil
}

func (e *Executor) runCritique(ctx context.Context, p *Pipeline, s Step, sp *models.Spec, prior map[string]*StepResult) (*StepResult, error) {
	images, err := e.critiqueInputs(s, prior)
	if err != nil {
		return nil, err
	}

	model := s.Model
	if model == "" {
		model = e.Config.Defaults.CritiqueModel
	}

	out, err := stage.Critique(ctx, e.Run, e.Registry, stage.CritiqueParams{
		Spec:            sp,
		Model:           model,
		Images:          images,
		Concurrency:     e.Concurrency,
		MaxRetries:      e.MaxRetries,
		PromptOverrides: promptChain(prompt.KindCritique, p, s),
		DryRun:          e.DryRun,
	})
	if err != nil {
		return nil, err
	}

	result := &StepResult{Step: s, Plan: out.Plan, Images: images, Critiques: out.Critiques, Attempted: len(out.Critiques)}
	for _, c := range out.Critiques {
		if c.Success {
			result.Succeeded++
		}
	}
	result.Candidates = stage.CandidatesFromCritiques(images, out.Critiques)
	return result, nil
}

// critiqueInputs resolves which images a critique step evaluates:
// explicit paths, an earlier step's output, or an external manifest.
func (e *Executor) critiqueInputs(s Step, prior map[string]*StepResult) ([]models.ManifestItem, error) {
	if len(s.Images) > 0 {
		items := make([]models.ManifestItem, len(s.Images))
		for i, path := range s.Images {
			base := filepath.Base(path)
			items[i] = models.ManifestItem{
				ID:   runstore.Slug(base[:len(base)-len(filepath.Ext(base))]),
				Path: path,
			}
		}
		return items, nil
	}
	if s.From != "" {
		if r, ok := prior[s.From]; ok {
			return r.Images, nil
		}
		m, err := runstore.LoadManifest(s.From)
		if err != nil {
			return nil, fmt.Errorf("from %q is neither an earlier step nor a readable manifest: %w", s.From, err)
		}
		return m.Items, nil
	}
	return nil, fmt.Errorf("critique step needs images: set from or images")
}

func (e *Executor) runIterate(ctx context.Context, p *Pipeline, s Step, sp *models.Spec, prior map[string]*StepResult) (*StepResult, error) {
	origin, err := e.iterateOrigin(s, prior)
	if err != nil {
		return nil, err
	}

	passes := s.Passes
	if passes == 0 {
		passes = e.Config.Defaults.Passes
	}
	policy := e.Config.SelectPolicy()
	if s.Select != nil {
		policy = *s.Select
	}
	critiqueModel := s.Model
	if critiqueModel == "" {
		critiqueModel = e.Config.Defaults.CritiqueModel
	}

	out, err := stage.Iterate(ctx, e.Run, e.Registry, stage.IterateParams{
		Spec:                    sp,
		Origin:                  origin,
		Passes:                  passes,
		Policy:                  policy,
		Models:                  s.Models,
		CritiqueModel:           critiqueModel,
		Concurrency:             e.Concurrency,
		MaxRetries:              e.MaxRetries,
		RevisePromptOverrides:   promptChain(prompt.KindRevise, p, s),
		CritiquePromptOverrides: promptChain(prompt.KindCritique, p, s),
		DryRun:                  e.DryRun,
	})
	if err != nil {
		return nil, err
	}

	result := &StepResult{
		Step:         s,
		Plan:         out.Plan,
		FinalImages:  out.FinalImages,
		Candidates:   out.FinalCandidates,
		ManifestPath: out.ManifestPath,
		Attempted:    len(out.Results),
	}
	for _, r := range out.Results {
		if r.OK {
			result.Images = append(result.Images, r.Item)
		}
	}
	result.Succeeded = len(result.Images)
	return result, nil
}

// iterateOrigin builds the initial candidate pool: an earlier critique
// step's candidates, an earlier generate step's items paired with this
// run's critiques, or an external manifest paired with its sibling
// critique directory.
func (e *Executor) iterateOrigin(s Step, prior map[string]*StepResult) ([]models.Candidate, error) {
	if s.From != "" {
		if r, ok := prior[s.From]; ok {
			if len(r.Candidates) > 0 {
				return r.Candidates, nil
			}
			return e.pairWithCritiques(r.Images, e.Run.CritiqueDir()), nil
		}
		return e.externalOrigin(s.From)
	}
	if s.Origin != "" {
		return e.externalOrigin(s.Origin)
	}
	return nil, fmt.Errorf("iterate step needs candidates: set from or origin")
}

// externalOrigin loads a manifest file from a prior run and pairs its
// items with the critique directory next to it.
func (e *Executor) externalOrigin(manifestPath string) ([]models.Candidate, error) {
	pool, unscored, err := runstore.LoadCandidates(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("load origin manifest: %w", err)
	}
	log := e.Run.Log()
	for _, id := range unscored {
		log.Warn("pipeline", "no critique for item, skipping", map[string]any{"item": id, "origin": manifestPath})
	}
	return pool, nil
}

// pairWithCritiques attaches each item's persisted critique score.
// Items with no readable critique are skipped with a warning, since
// selection has no score to rank them by.
func (e *Executor) pairWithCritiques(items []models.ManifestItem, critiqueDir string) []models.Candidate {
	log := e.Run.Log()
	var pool []models.Candidate
	for _, item := range items {
		c, err := runstore.LoadCritique(critiqueDir, item.ID)
		if err != nil || !c.Success {
			log.Warn("pipeline", "no critique for item, skipping", map[string]any{"item": item.ID, "dir": critiqueDir})
			continue
		}
		pool = append(pool, models.Candidate{
			Item:                item,
			Score:               c.WeightedTotal,
			RevisionInstruction: c.RevisionInstruction,
		})
	}
	return pool
}

// promptChain assembles the override chain for one prompt kind: step
// sources first, then pipeline-global sources. Within a source, inline
// text wins over a file path.
func promptChain(kind prompt.Kind, p *Pipeline, s Step) []prompt.Override {
	switch kind {
	case prompt.KindGenerate:
		return []prompt.Override{
			{Inline: s.GeneratePrompt, File: s.GeneratePromptFile},
			{Inline: p.GeneratePrompt, File: p.GeneratePromptFile},
		}
	case prompt.KindCritique:
		return []prompt.Override{
			{Inline: s.CritiquePrompt, File: s.CritiquePromptFile},
			{Inline: p.CritiquePrompt, File: p.CritiquePromptFile},
		}
	default:
		return []prompt.Override{
			{Inline: s.RevisePrompt, File: s.RevisePromptFile},
			{Inline: p.RevisePrompt, File: p.RevisePromptFile},
		}
	}
}
