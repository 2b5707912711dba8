package models

// Spec is the normalized design brief a run works from.
// It is produced once by the spec parser and read-only afterwards.
type Spec struct {
	// Title is the short name of the design, from the brief's first heading.
	Title string `json:"title"`
	// Description summarizes what is being designed.
	Description string `json:"description"`
	// Type categorizes the design (e.g. "mobile-app", "landing-page").
	Type string `json:"type"`
	// Style is free-form art-direction text, empty when none was supplied.
	Style string `json:"style,omitempty"`
	// Screens lists the screen names to generate. Never empty: the parser
	// substitutes a single synthetic screen when the brief names none.
	Screens []string `json:"screens"`
	// Inspiration holds reference URLs or local paths from the brief.
	Inspiration []string `json:"inspiration,omitempty"`
	// Rubric is the critique rubric, in brief order.
	Rubric Rubric `json:"rubric"`
	// Notes carries any free text that survived normalization.
	Notes string `json:"notes,omitempty"`
}

// Criterion is a single rubric entry. Weights need not sum to 1;
// scoring renormalizes over the criteria a critique actually answered.
type Criterion struct {
	// ID is the snake_case key the critique model is asked to score under.
	ID string `json:"id"`
	// Label is the human-readable criterion name.
	Label string `json:"label"`
	// Weight is the relative importance of this criterion.
	Weight float64 `json:"weight"`
}

// Rubric is an ordered list of critique criteria.
type Rubric []Criterion

// DefaultRubric returns the rubric used when a brief supplies no override.
func DefaultRubric() Rubric {
	return Rubric{
		{ID: "task_fitness", Label: "Task Fitness", Weight: 0.30},
		{ID: "visual_hierarchy", Label: "Visual Hierarchy", Weight: 0.25},
		{ID: "consistency", Label: "Consistency", Weight: 0.20},
		{ID: "polish", Label: "Polish", Weight: 0.15},
		{ID: "originality", Label: "Originality", Weight: 0.10},
	}
}

// Lookup returns the criterion with the given id, or false if absent.
func (r Rubric) Lookup(id string) (Criterion, bool) {
	for _, c := range r {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}
