package stage

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ShayCichocki/atelier/internal/prompt"
	"github.com/ShayCichocki/atelier/internal/provider"
	"github.com/ShayCichocki/atelier/internal/runstore"
	"github.com/ShayCichocki/atelier/pkg/models"
)

// CritiqueParams configures one invocation of the critique stage.
type CritiqueParams struct {
	Spec *models.Spec
	// Rubric defaults to the spec's rubric when nil.
	Rubric models.Rubric
	// Model is the fully-qualified vision model doing the critique.
	Model string
	// Images are the manifest items to evaluate.
	Images []models.ManifestItem
	// Concurrency bounds in-flight provider calls.
	Concurrency int
	// MaxRetries is the retry budget per provider call.
	MaxRetries int
	// PromptOverrides is the template override chain, highest first.
	PromptOverrides []prompt.Override
	// DryRun computes the plan without calling any provider.
	DryRun bool
}

// CritiqueOutput is the stage's aggregate result.
type CritiqueOutput struct {
	Critiques []models.Critique
	Summary   models.CritiqueSummary
	// Plan is set instead of Critiques when DryRun was requested.
	Plan *models.Plan
}

// Critique evaluates each image independently against the rubric and
// persists per-image critiques plus an aggregate leaderboard summary.
// A vision-incapable model is a configuration error raised before any
// work begins; individual image failures are recorded, not raised.
func Critique(ctx context.Context, run *runstore.Run, reg *provider.Registry, p CritiqueParams) (*CritiqueOutput, error) {
	if !provider.VisionCapable(p.Model) {
		return nil, fmt.Errorf("critique model %s: %w", p.Model, provider.ErrNotVisionCapable)
	}

	rubric := p.Rubric
	if len(rubric) == 0 {
		rubric = p.Spec.Rubric
	}

	tmpl, err := prompt.Resolve(prompt.KindCritique, p.PromptOverrides...)
	if err != nil {
		return nil, err
	}
	rendered, err := prompt.Render(tmpl, prompt.CritiqueContext(p.Spec, rubric))
	if err != nil {
		return nil, err
	}

	if p.DryRun {
		return &CritiqueOutput{Plan: &models.Plan{
			Command:      "critique",
			Units:        len(p.Images),
			Models:       []string{p.Model},
			SamplePrompt: rendered,
		}}, nil
	}

	log := run.Log()
	critiques := make([]models.Critique, len(p.Images))
	limiter := NewLimiter(p.Concurrency)

	limiter.Run(ctx, len(p.Images), func(i int) {
		img := p.Images[i]
		unitID := uuid.New().String()[:8]
		critiques[i] = models.Critique{ImageID: img.ID, Image: img.Path, Model: p.Model}

		data, err := os.ReadFile(img.Path)
		if err != nil {
			critiques[i].Error = fmt.Sprintf("read image: %v", err)
			log.Error("critique", "image read failed", map[string]any{"unit": unitID, "image": img.ID, "error": err.Error()})
			return
		}

		adapter, modelName, err := reg.Resolve(p.Model)
		if err != nil {
			critiques[i].Error = err.Error()
			log.Error("critique", "provider resolution failed", map[string]any{"unit": unitID, "model": p.Model, "error": err.Error()})
			return
		}

		log.Info("critique", "unit started", map[string]any{"unit": unitID, "image": img.ID, "model": p.Model})

		var raw string
		err = provider.Retry(ctx, p.MaxRetries, func() error {
			var callErr error
			raw, callErr = adapter.Critique(ctx, modelName, provider.CritiqueRequest{Prompt: rendered, Image: data})
			return callErr
		})
		if err != nil {
			critiques[i].Error = err.Error()
			log.Error("critique", "unit failed", map[string]any{"unit": unitID, "image": img.ID, "error": err.Error()})
			return
		}

		parsed, err := ParseCritique(raw, rubric)
		if err != nil {
			critiques[i].Error = err.Error()
			log.Error("critique", "response unparsable", map[string]any{"unit": unitID, "image": img.ID, "error": err.Error()})
			return
		}

		critiques[i].Scores = parsed.Scores
		critiques[i].WeightedTotal = WeightedTotal(parsed.Scores, rubric)
		critiques[i].Strengths = parsed.Strengths
		critiques[i].Issues = parsed.Issues
		critiques[i].RevisionInstruction = parsed.RevisionInstruction
		critiques[i].Success = true
		critiques[i].Recovered = parsed.Outcome == ParsedRecovered

		if err := run.WriteCritique(critiques[i]); err != nil {
			log.Error("critique", "critique write failed", map[string]any{"unit": unitID, "image": img.ID, "error": err.Error()})
		}
		log.Info("critique", "unit completed", map[string]any{
			"unit": unitID, "image": img.ID, "score": critiques[i].WeightedTotal, "recovered": critiques[i].Recovered,
		})
	})

	summary := Summarize(critiques, rubric)
	if err := run.WriteSummary(renderSummary(summary, critiques)); err != nil {
		log.Error("critique", "summary write failed", map[string]any{"error": err.Error()})
	}

	return &CritiqueOutput{Critiques: critiques, Summary: summary}, nil
}

// Summarize builds the leaderboard, average, and advisory insights for
// a critique batch. Only successful critiques count; order is derived
// from content, never from completion order.
func Summarize(critiques []models.Critique, rubric models.Rubric) models.CritiqueSummary {
	var successes []models.Critique
	for _, c := range critiques {
		if c.Success {
			successes = append(successes, c)
		}
	}

	summary := models.CritiqueSummary{Leaderboard: []models.LeaderboardEntry{}}
	if len(successes) == 0 {
		summary.Insights.Notes = []string{"insufficient data: no successful critiques"}
		return summary
	}

	ranked := make([]models.Critique, len(successes))
	copy(ranked, successes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeightedTotal > ranked[j].WeightedTotal
	})

	var total float64
	for rank, c := range ranked {
		summary.Leaderboard = append(summary.Leaderboard, models.LeaderboardEntry{
			Rank:    rank + 1,
			ImageID: c.ImageID,
			Image:   c.Image,
			Score:   c.WeightedTotal,
		})
		total += c.WeightedTotal
	}
	summary.AverageScore = math.Round(total/float64(len(ranked))*100) / 100

	summary.Insights.BestImage = ranked[0].ImageID
	summary.Insights.CommonIssue = commonIssue(successes)
	summary.Insights.WeakestCriterion = weakestCriterion(successes, rubric)

	return summary
}

// commonIssue buckets issue strings case-insensitively (trimmed, exact
// match) and returns the most frequent one, earliest-seen on ties.
func commonIssue(critiques []models.Critique) string {
	counts := make(map[string]int)
	first := make(map[string]int)
	display := make(map[string]string)
	order := 0

	for _, c := range critiques {
		for _, issue := range c.Issues {
			key := strings.ToLower(strings.TrimSpace(issue))
			if key == "" {
				continue
			}
			if _, seen := counts[key]; !seen {
				first[key] = order
				display[key] = strings.TrimSpace(issue)
				order++
			}
			counts[key]++
		}
	}

	best := ""
	for key := range counts {
		if best == "" ||
			counts[key] > counts[best] ||
			(counts[key] == counts[best] && first[key] < first[best]) {
			best = key
		}
	}
	if best == "" || counts[best] < 2 {
		return ""
	}
	return display[best]
}

// weakestCriterion returns the rubric criterion with the lowest mean
// score across successful critiques that answered it.
func weakestCriterion(critiques []models.Critique, rubric models.Rubric) string {
	worst := ""
	worstMean := 0.0
	for _, criterion := range rubric {
		var sum float64
		var n int
		for _, c := range critiques {
			if v, ok := c.Scores[criterion.ID]; ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)
		if worst == "" || mean < worstMean {
			worst = criterion.ID
			worstMean = mean
		}
	}
	return worst
}

// renderSummary formats the human-readable critique/summary.md.
func renderSummary(summary models.CritiqueSummary, critiques []models.Critique) string {
	var sb strings.Builder
	sb.WriteString("# Critique Summary\n\n")
	sb.WriteString(fmt.Sprintf("Average score: %.2f over %d image(s)\n\n", summary.AverageScore, len(summary.Leaderboard)))

	sb.WriteString("## Leaderboard\n\n")
	sb.WriteString("| Rank | Image | Score |\n|------|-------|-------|\n")
	for _, e := range summary.Leaderboard {
		sb.WriteString(fmt.Sprintf("| %d | %s | %.2f |\n", e.Rank, e.ImageID, e.Score))
	}

	sb.WriteString("\n## Insights\n\n")
	if summary.Insights.BestImage != "" {
		sb.WriteString(fmt.Sprintf("- Best image: %s\n", summary.Insights.BestImage))
	}
	if summary.Insights.CommonIssue != "" {
		sb.WriteString(fmt.Sprintf("- Most repeated issue: %s\n", summary.Insights.CommonIssue))
	}
	if summary.Insights.WeakestCriterion != "" {
		sb.WriteString(fmt.Sprintf("- Weakest criterion: %s\n", summary.Insights.WeakestCriterion))
	}
	for _, note := range summary.Insights.Notes {
		sb.WriteString(fmt.Sprintf("- %s\n", note))
	}

	var failures int
	for _, c := range critiques {
		if !c.Success {
			failures++
		}
	}
	if failures > 0 {
		sb.WriteString(fmt.Sprintf("\n%d critique(s) failed; see logs.jsonl.\n", failures))
	}
	return sb.String()
}
