package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/atelier/internal/prompt"
	"github.com/ShayCichocki/atelier/internal/provider"
	"github.com/ShayCichocki/atelier/internal/runstore"
	"github.com/ShayCichocki/atelier/pkg/models"
)

// GenerateParams configures one invocation of the generation stage.
type GenerateParams struct {
	Spec *models.Spec
	// Models are fully-qualified "provider:model" identifiers.
	Models []string
	// Screens defaults to the spec's screens when empty.
	Screens []string
	// Variants is the number of variants per (model, screen).
	Variants int
	// Concurrency bounds in-flight provider calls.
	Concurrency int
	// MaxRetries is the retry budget per provider call.
	MaxRetries int
	// Seed, when set, gives variant i the value Seed+i.
	Seed *int64
	// PromptOverrides is the template override chain, highest first.
	PromptOverrides []prompt.Override
	// DryRun computes the plan without calling any provider.
	DryRun bool
}

// GenerationResult is the outcome of one (model, screen, variant) unit.
type GenerationResult struct {
	Model   string             `json:"model"`
	Screen  string             `json:"screen"`
	Variant int                `json:"variant"`
	Item    models.ManifestItem `json:"item,omitempty"`
	OK      bool               `json:"ok"`
	Error   string             `json:"error,omitempty"`
}

// GenerateOutput is the stage's aggregate result.
type GenerateOutput struct {
	Results      []GenerationResult
	ManifestPath string
	// Plan is set instead of Results when DryRun was requested.
	Plan *models.Plan
}

// genUnit is one cell of the model × screen × variant cross product.
type genUnit struct {
	model   string
	screen  string
	variant int
}

// Generate fans out over the model × screen × variant cross product,
// persisting every successful image and a manifest entry. Units fail
// independently: the call itself only errors on infrastructure
// failures, never on a single unit.
func Generate(ctx context.Context, run *runstore.Run, reg *provider.Registry, p GenerateParams) (*GenerateOutput, error) {
	screens := p.Screens
	if len(screens) == 0 {
		screens = p.Spec.Screens
	}
	if p.Variants < 1 {
		p.Variants = 1
	}

	tmpl, err := prompt.Resolve(prompt.KindGenerate, p.PromptOverrides...)
	if err != nil {
		return nil, err
	}

	log := run.Log()

	var units []genUnit
	var skipped []string
	for _, model := range p.Models {
		if !provider.ImageCapable(model) {
			skipped = append(skipped, fmt.Sprintf("%s: not image-capable", model))
			log.Warn("generate", "skipping model without image capability", map[string]any{"model": model})
			continue
		}
		for _, screen := range screens {
			for v := 0; v < p.Variants; v++ {
				units = append(units, genUnit{model: model, screen: screen, variant: v})
			}
		}
	}

	if p.DryRun {
		plan := &models.Plan{
			Command: "generate",
			Units:   len(units),
			Models:  p.Models,
			Screens: screens,
			Skipped: skipped,
		}
		if len(units) > 0 {
			sample, err := prompt.Render(tmpl, prompt.GenerateContext(p.Spec, units[0].screen, units[0].variant))
			if err != nil {
				return nil, err
			}
			plan.SamplePrompt = sample
		}
		return &GenerateOutput{Plan: plan}, nil
	}

	manifest := run.NewManifestWriter("generate")
	if err := manifest.Init(models.Manifest{
		Title:       p.Spec.Title,
		Spec:        run.InputSpecPath(),
		Screens:     screens,
		Models:      p.Models,
		TotalImages: len(units),
		Timestamp:   time.Now(),
	}); err != nil {
		return nil, err
	}

	results := make([]GenerationResult, len(units))
	limiter := NewLimiter(p.Concurrency)

	limiter.Run(ctx, len(units), func(i int) {
		u := units[i]
		unitID := uuid.New().String()[:8]
		results[i] = GenerationResult{Model: u.model, Screen: u.screen, Variant: u.variant}

		rendered, err := prompt.Render(tmpl, prompt.GenerateContext(p.Spec, u.screen, u.variant))
		if err != nil {
			results[i].Error = err.Error()
			log.Error("generate", "prompt render failed", map[string]any{
				"unit": unitID, "model": u.model, "screen": u.screen, "variant": u.variant, "error": err.Error(),
			})
			return
		}
		hash := prompt.Fingerprint(rendered)

		adapter, modelName, err := reg.Resolve(u.model)
		if err != nil {
			results[i].Error = err.Error()
			log.Error("generate", "provider resolution failed", map[string]any{
				"unit": unitID, "model": u.model, "error": err.Error(),
			})
			return
		}

		var seed *int64
		if p.Seed != nil {
			s := *p.Seed + int64(u.variant)
			seed = &s
		}

		log.Info("generate", "unit started", map[string]any{
			"unit": unitID, "model": u.model, "screen": u.screen, "variant": u.variant, "promptHash": hash,
		})

		var data []byte
		err = provider.Retry(ctx, p.MaxRetries, func() error {
			var callErr error
			data, callErr = adapter.GenerateImage(ctx, modelName, provider.ImageRequest{Prompt: rendered, Seed: seed})
			return callErr
		})
		if err != nil {
			results[i].Error = err.Error()
			log.Error("generate", "unit failed", map[string]any{
				"unit": unitID, "model": u.model, "screen": u.screen, "variant": u.variant, "error": err.Error(),
			})
			return
		}

		path := run.ImagePath("generate", adapter.Name(), u.screen, u.variant)
		if err := run.WriteImage(path, data); err != nil {
			results[i].Error = err.Error()
			log.Error("generate", "image write failed", map[string]any{"unit": unitID, "path": path, "error": err.Error()})
			return
		}

		item := models.ManifestItem{
			ID:         fmt.Sprintf("%s-%s-v%d", runstore.Slug(u.screen), adapter.Name(), u.variant),
			Screen:     u.screen,
			Model:      u.model,
			Variant:    u.variant,
			PromptHash: hash,
			Path:       path,
			Seed:       seed,
			Timestamp:  time.Now(),
		}
		if err := manifest.Append(item); err != nil {
			results[i].Error = err.Error()
			log.Error("generate", "manifest append failed", map[string]any{"unit": unitID, "error": err.Error()})
			return
		}

		results[i].Item = item
		results[i].OK = true
		log.Info("generate", "unit completed", map[string]any{"unit": unitID, "id": item.ID, "path": path})
	})

	return &GenerateOutput{Results: results, ManifestPath: manifest.Path()}, nil
}
