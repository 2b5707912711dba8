package models

// Default selection policy values, used when a caller sets neither field.
const (
	DefaultTopK     = 3
	DefaultMinScore = 70
)

// SelectPolicy controls which candidates advance between iteration passes.
// A nil pointer means "no constraint" for that field.
type SelectPolicy struct {
	// MinScore drops candidates scoring strictly below it.
	MinScore *float64 `json:"minScore,omitempty"`
	// TopK truncates to the K highest-scoring survivors.
	TopK *int `json:"topK,omitempty"`
}

// WithDefaults returns the policy with system defaults applied when
// neither constraint is set.
func (p SelectPolicy) WithDefaults() SelectPolicy {
	if p.MinScore == nil && p.TopK == nil {
		min := float64(DefaultMinScore)
		k := DefaultTopK
		return SelectPolicy{MinScore: &min, TopK: &k}
	}
	return p
}

// Candidate is an image plus its most recent score, eligible for
// selection into the next iteration pass.
type Candidate struct {
	// Item is the manifest entry for the image.
	Item ManifestItem `json:"item"`
	// Score is the most recent weighted total for the image.
	Score float64 `json:"score"`
	// RevisionInstruction is the directive from the image's critique,
	// empty when the critique carried none.
	RevisionInstruction string `json:"revisionInstruction,omitempty"`
}
