package models

// Plan describes the work a command would perform. Dry runs return a
// Plan instead of calling any provider.
type Plan struct {
	// Command is the command that produced the plan.
	Command string `json:"command"`
	// Units is the number of provider calls the run would make.
	Units int `json:"units"`
	// Models lists the fully-qualified models that would be invoked.
	Models []string `json:"models,omitempty"`
	// Screens lists the screens that would be covered.
	Screens []string `json:"screens,omitempty"`
	// SamplePrompt is one fully resolved prompt, for inspection.
	SamplePrompt string `json:"samplePrompt,omitempty"`
	// Skipped lists units excluded from the plan, with reasons.
	Skipped []string `json:"skipped,omitempty"`
}
