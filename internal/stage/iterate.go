package stage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/atelier/internal/prompt"
	"github.com/ShayCichocki/atelier/internal/provider"
	"github.com/ShayCichocki/atelier/internal/runstore"
	"github.com/ShayCichocki/atelier/pkg/models"
)

// IterateParams configures one invocation of the iteration stage.
type IterateParams struct {
	Spec *models.Spec
	// Rubric defaults to the spec's rubric when nil.
	Rubric models.Rubric
	// Origin is the initial candidate pool, each carrying a prior score.
	Origin []models.Candidate
	// Passes is the number of select/revise passes.
	Passes int
	// Policy is the selection policy between passes.
	Policy models.SelectPolicy
	// Models, when set, overrides the revision model for every
	// candidate; otherwise each candidate's original model is used.
	Models []string
	// CritiqueModel is the vision model used to re-score revisions
	// between passes.
	CritiqueModel string
	// Concurrency bounds in-flight provider calls.
	Concurrency int
	// MaxRetries is the retry budget per provider call.
	MaxRetries int
	// RevisePromptOverrides is the revise-template override chain.
	RevisePromptOverrides []prompt.Override
	// CritiquePromptOverrides is passed through to the re-critique.
	CritiquePromptOverrides []prompt.Override
	// DryRun computes the plan without calling any provider.
	DryRun bool
}

// RevisionResult is the outcome of one revision attempt.
type RevisionResult struct {
	Pass     int                 `json:"pass"`
	SourceID string              `json:"sourceId"`
	Model    string              `json:"model"`
	Item     models.ManifestItem `json:"item,omitempty"`
	OK       bool                `json:"ok"`
	Error    string              `json:"error,omitempty"`
}

// IterateOutput is the stage's aggregate result.
type IterateOutput struct {
	// Results accumulates every revision attempt across all passes.
	Results []RevisionResult
	// FinalImages are the successful image paths from the most
	// recently completed pass.
	FinalImages []string
	// FinalCandidates are the surviving candidates with their latest
	// scores, empty when the last pass was not re-critiqued.
	FinalCandidates []models.Candidate
	ManifestPath    string
	// Plan is set instead of Results when DryRun was requested.
	Plan *models.Plan
}

// Iterate runs up to Passes rounds of select → revise → re-critique.
// A pass with zero successful revisions ends the stage early; so does
// a selection or re-critique that empties the candidate pool. Both are
// deliberate terminal conditions, not errors.
func Iterate(ctx context.Context, run *runstore.Run, reg *provider.Registry, p IterateParams) (*IterateOutput, error) {
	if p.Passes < 1 {
		p.Passes = 1
	}
	policy := p.Policy.WithDefaults()

	rubric := p.Rubric
	if len(rubric) == 0 {
		rubric = p.Spec.Rubric
	}

	tmpl, err := prompt.Resolve(prompt.KindRevise, p.RevisePromptOverrides...)
	if err != nil {
		return nil, err
	}

	if p.DryRun {
		selected := Select(p.Origin, policy)
		plan := &models.Plan{
			Command: "iterate",
			Units:   len(selected) * p.Passes,
			Models:  p.Models,
		}
		if len(selected) > 0 {
			instruction := selected[0].RevisionInstruction
			if instruction == "" {
				instruction = prompt.DefaultRevisionInstruction
			}
			sample, err := prompt.Render(tmpl, prompt.ReviseContext(instruction))
			if err != nil {
				return nil, err
			}
			plan.SamplePrompt = sample
		}
		return &IterateOutput{Plan: plan}, nil
	}

	log := run.Log()
	manifest := run.NewManifestWriter("iterate")
	if err := manifest.Init(models.Manifest{
		Title:     p.Spec.Title,
		Screens:   p.Spec.Screens,
		Models:    p.Models,
		Timestamp: time.Now(),
	}); err != nil {
		return nil, err
	}

	out := &IterateOutput{ManifestPath: manifest.Path()}
	pool := p.Origin

	for pass := 1; pass <= p.Passes; pass++ {
		selected := Select(pool, policy)
		if len(selected) == 0 {
			log.Info("iterate", "selection emptied the pool, stopping", map[string]any{"pass": pass})
			break
		}
		log.Info("iterate", "pass started", map[string]any{"pass": pass, "candidates": len(selected)})

		passResults := revisePass(ctx, run, reg, p, tmpl, manifest, selected, pass)
		out.Results = append(out.Results, passResults...)

		var succeeded []models.ManifestItem
		for _, r := range passResults {
			if r.OK {
				succeeded = append(succeeded, r.Item)
			}
		}
		if len(succeeded) == 0 {
			log.Warn("iterate", "no revisions succeeded, stopping", map[string]any{"pass": pass})
			break
		}

		out.FinalImages = nil
		for _, item := range succeeded {
			out.FinalImages = append(out.FinalImages, item.Path)
		}
		out.FinalCandidates = nil

		if pass == p.Passes {
			break
		}

		// Re-score the revisions so the next pass selects on fresh totals.
		critiqued, err := Critique(ctx, run, reg, CritiqueParams{
			Spec:            p.Spec,
			Rubric:          rubric,
			Model:           p.CritiqueModel,
			Images:          succeeded,
			Concurrency:     p.Concurrency,
			MaxRetries:      p.MaxRetries,
			PromptOverrides: p.CritiquePromptOverrides,
		})
		if err != nil {
			return nil, fmt.Errorf("re-critique after pass %d: %w", pass, err)
		}

		pool = CandidatesFromCritiques(succeeded, critiqued.Critiques)
		out.FinalCandidates = pool
		if len(pool) == 0 {
			log.Warn("iterate", "re-critique emptied the pool, stopping", map[string]any{"pass": pass})
			break
		}
	}

	return out, nil
}

// revisePass revises each selected candidate concurrently with
// settle-all semantics. Candidates whose source image is missing are
// skipped with a warning and produce no result.
func revisePass(ctx context.Context, run *runstore.Run, reg *provider.Registry, p IterateParams,
	tmpl string, manifest *runstore.ManifestWriter, selected []models.Candidate, pass int) []RevisionResult {

	log := run.Log()

	type reviseUnit struct {
		candidate models.Candidate
		model     string
		image     []byte
	}

	var units []reviseUnit
	for _, c := range selected {
		model := c.Item.Model
		if len(p.Models) > 0 {
			model = p.Models[0]
		}
		if !provider.ImageCapable(model) {
			log.Warn("iterate", "skipping model without image capability", map[string]any{
				"pass": pass, "source": c.Item.ID, "model": model,
			})
			continue
		}

		data, err := os.ReadFile(c.Item.Path)
		if err != nil {
			log.Warn("iterate", "source image missing, skipping candidate", map[string]any{
				"pass": pass, "source": c.Item.ID, "path": c.Item.Path,
			})
			continue
		}
		units = append(units, reviseUnit{candidate: c, model: model, image: data})
	}

	results := make([]RevisionResult, len(units))
	limiter := NewLimiter(p.Concurrency)

	limiter.Run(ctx, len(units), func(i int) {
		u := units[i]
		unitID := uuid.New().String()[:8]
		results[i] = RevisionResult{Pass: pass, SourceID: u.candidate.Item.ID, Model: u.model}

		instruction := u.candidate.RevisionInstruction
		if instruction == "" {
			instruction = prompt.DefaultRevisionInstruction
		}

		rendered, err := prompt.Render(tmpl, prompt.ReviseContext(instruction))
		if err != nil {
			results[i].Error = err.Error()
			return
		}
		hash := prompt.Fingerprint(rendered)

		adapter, modelName, err := reg.Resolve(u.model)
		if err != nil {
			results[i].Error = err.Error()
			log.Error("iterate", "provider resolution failed", map[string]any{
				"unit": unitID, "pass": pass, "model": u.model, "error": err.Error(),
			})
			return
		}

		log.Info("iterate", "revision started", map[string]any{
			"unit": unitID, "pass": pass, "source": u.candidate.Item.ID, "model": u.model,
		})

		var data []byte
		err = provider.Retry(ctx, p.MaxRetries, func() error {
			var callErr error
			data, callErr = adapter.EditImage(ctx, modelName, provider.EditRequest{
				Prompt: rendered,
				Image:  u.image,
				Seed:   u.candidate.Item.Seed,
			})
			return callErr
		})
		if err != nil {
			results[i].Error = err.Error()
			log.Error("iterate", "revision failed", map[string]any{
				"unit": unitID, "pass": pass, "source": u.candidate.Item.ID, "error": err.Error(),
			})
			return
		}

		path := run.RevisionPath(adapter.Name(), u.candidate.Item.Screen, u.candidate.Item.Variant, pass)
		if err := run.WriteImage(path, data); err != nil {
			results[i].Error = err.Error()
			log.Error("iterate", "image write failed", map[string]any{"unit": unitID, "path": path, "error": err.Error()})
			return
		}

		item := models.ManifestItem{
			ID:         fmt.Sprintf("%s-v%d-rev%d", runstore.Slug(u.candidate.Item.Screen), u.candidate.Item.Variant, pass),
			Screen:     u.candidate.Item.Screen,
			Model:      u.model,
			Variant:    u.candidate.Item.Variant,
			Pass:       pass,
			PromptHash: hash,
			Path:       path,
			Seed:       u.candidate.Item.Seed,
			Timestamp:  time.Now(),
		}
		if err := manifest.Append(item); err != nil {
			results[i].Error = err.Error()
			log.Error("iterate", "manifest append failed", map[string]any{"unit": unitID, "error": err.Error()})
			return
		}

		results[i].Item = item
		results[i].OK = true
		log.Info("iterate", "revision completed", map[string]any{"unit": unitID, "pass": pass, "id": item.ID, "path": path})
	})

	return results
}

// CandidatesFromCritiques pairs manifest items with their critiques to
// form the next selection pool. Items whose critique failed drop out.
func CandidatesFromCritiques(items []models.ManifestItem, critiques []models.Critique) []models.Candidate {
	byID := make(map[string]models.Critique, len(critiques))
	for _, c := range critiques {
		byID[c.ImageID] = c
	}

	var pool []models.Candidate
	for _, item := range items {
		c, ok := byID[item.ID]
		if !ok || !c.Success {
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
