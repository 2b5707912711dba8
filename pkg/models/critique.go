package models

// Critique is the evaluation of a single image against the rubric.
type Critique struct {
	// ImageID is the manifest item id this critique evaluates.
	ImageID string `json:"imageId"`
	// Image is the path of the evaluated image.
	Image string `json:"image"`
	// Model is the "provider:model" that produced the evaluation.
	Model string `json:"model"`
	// Scores maps rubric criterion id to the raw score (0-100).
	Scores map[string]float64 `json:"scores"`
	// WeightedTotal is the weight-normalized total over answered criteria.
	WeightedTotal float64 `json:"weightedTotal"`
	// Strengths lists up to three strengths called out by the critic.
	Strengths []string `json:"strengths,omitempty"`
	// Issues lists up to three problems called out by the critic.
	Issues []string `json:"issues,omitempty"`
	// RevisionInstruction is the short directive fed verbatim into the
	// next revision prompt.
	RevisionInstruction string `json:"revisionInstruction,omitempty"`
	// Success is false when the critique call or parse failed outright.
	Success bool `json:"success"`
	// Recovered is true when the parser fell back to best-effort
	// extraction rather than a strict JSON parse.
	Recovered bool `json:"recovered,omitempty"`
	// Error holds the failure reason when Success is false.
	Error string `json:"error,omitempty"`
}

// LeaderboardEntry is one row of the critique leaderboard.
type LeaderboardEntry struct {
	Rank    int     `json:"rank"`
	ImageID string  `json:"imageId"`
	Image   string  `json:"image"`
	Score   float64 `json:"score"`
}

// Insights are advisory observations over a critique batch. They are
// best-effort and never required for correctness.
type Insights struct {
	// BestImage names the highest-scoring image, empty when no successes.
	BestImage string `json:"bestImage,omitempty"`
	// CommonIssue is the most frequently repeated issue string.
	CommonIssue string `json:"commonIssue,omitempty"`
	// WeakestCriterion is the rubric criterion with the lowest mean score.
	WeakestCriterion string `json:"weakestCriterion,omitempty"`
	// Notes carries extra observations, e.g. "insufficient data".
	Notes []string `json:"notes,omitempty"`
}

// CritiqueSummary aggregates a critique batch.
type CritiqueSummary struct {
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
	AverageScore float64            `json:"averageScore"`
	Insights     Insights           `json:"insights"`
}
