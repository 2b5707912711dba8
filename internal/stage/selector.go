package stage

import (
	"sort"

	"github.com/ShayCichocki/atelier/pkg/models"
)

// Select returns the candidates that advance to the next pass. The
// minimum-score filter applies first, then top-K truncation over the
// survivors (descending by score, ties keeping original order). An
// empty result is the caller's terminal condition, not an error.
// Select is pure: the input slice is never modified.
func Select(candidates []models.Candidate, policy models.SelectPolicy) []models.Candidate {
	survivors := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if policy.MinScore != nil && c.Score < *policy.MinScore {
			continue
		}
		survivors = append(survivors, c)
	}

	if policy.TopK != nil && len(survivors) > *policy.TopK {
		sort.SliceStable(survivors, func(i, j int) bool {
			return survivors[i].Score > survivors[j].Score
		})
		survivors = survivors[:*policy.TopK]
	}

	return survivors
}
