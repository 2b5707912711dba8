package stage

import (
	"reflect"
	"testing"

	"github.com/ShayCichocki/atelier/pkg/models"
)

func candidateList(scores ...float64) []models.Candidate {
	out := make([]models.Candidate, len(scores))
	for i, s := range scores {
		out[i] = models.Candidate{
			Item:  models.ManifestItem{ID: string(rune('a' + i))},
			Score: s,
		}
	}
	return out
}

func ids(cs []models.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Item.ID
	}
	return out
}

func TestSelect(t *testing.T) {
	minScore := func(v float64) *float64 { return &v }
	topK := func(v int) *int { return &v }

	tests := []struct {
		name       string
		candidates []models.Candidate
		policy     models.SelectPolicy
		want       []string
	}{
		{
			name:       "no policy keeps everything in order",
			candidates: candidateList(50, 90, 70),
			policy:     models.SelectPolicy{},
			want:       []string{"a", "b", "c"},
		},
		{
			name:       "min score drops strictly lower",
			candidates: candidateList(69.9, 70, 80),
			policy:     models.SelectPolicy{MinScore: minScore(70)},
			want:       []string{"b", "c"},
		},
		{
			name:       "topK keeps highest, sorted descending",
			candidates: candidateList(50, 90, 70, 80),
			policy:     models.SelectPolicy{TopK: topK(2)},
			want:       []string{"b", "d"},
		},
		{
			name:       "topK larger than input keeps original order",
			candidates: candidateList(50, 90),
			policy:     models.SelectPolicy{TopK: topK(5)},
			want:       []string{"a", "b"},
		},
		{
			name:       "ties keep original order",
			candidates: candidateList(80, 80, 80, 60),
			policy:     models.SelectPolicy{TopK: topK(2)},
			want:       []string{"a", "b"},
		},
		{
			name:       "filter then truncate",
			candidates: candidateList(95, 40, 85, 75, 90),
			policy:     models.SelectPolicy{MinScore: minScore(70), TopK: topK(3)},
			want:       []string{"a", "e", "c"},
		},
		{
			name:       "empty input",
			candidates: nil,
			policy:     models.SelectPolicy{MinScore: minScore(70)},
			want:       []string{},
		},
		{
			name:       "filter empties the pool",
			candidates: candidateList(10, 20),
			policy:     models.SelectPolicy{MinScore: minScore(70)},
			want:       []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(tt.candidates, tt.policy)
			if len(got) != len(tt.want) {
				t.Fatalf("Select() = %v, want ids %v", ids(got), tt.want)
			}
			for i, id := range tt.want {
				if got[i].Item.ID != id {
					t.Errorf("Select()[%d] = %q, want %q", i, got[i].Item.ID, id)
				}
			}
			if tt.policy.TopK != nil && len(got) > *tt.policy.TopK {
				t.Errorf("Select() returned %d items, topK = %d", len(got), *tt.policy.TopK)
			}
			if tt.policy.MinScore != nil {
				for _, c := range got {
					if c.Score < *tt.policy.MinScore {
						t.Errorf("Select() kept %q scoring %v below min %v", c.Item.ID, c.Score, *tt.policy.MinScore)
					}
				}
			}
		})
	}
}

func TestSelect_Idempotent(t *testing.T) {
	minScore := 70.0
	k := 3
	policy := models.SelectPolicy{MinScore: &minScore, TopK: &k}
	candidates := candidateList(95, 40, 85, 75, 90, 72)

	once := Select(candidates, policy)
	twice := Select(once, policy)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("select is not idempotent:\nonce  %v\ntwice %v", ids(once), ids(twice))
	}
}

func TestSelect_DoesNotMutateInput(t *testing.T) {
	k := 1
	candidates := candidateList(10, 90, 50)
	before := ids(candidates)

	Select(candidates, models.SelectPolicy{TopK: &k})

	if !reflect.DeepEqual(ids(candidates), before) {
		t.Errorf("input order changed: %v", ids(candidates))
	}
}
