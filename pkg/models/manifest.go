package models

import "time"

// ManifestItem records one generated or revised image.
type ManifestItem struct {
	// ID is derived from screen+provider+variant (generation) or
	// screen+pass (revision) and is stable across re-reads.
	ID string `json:"id"`
	// Screen is the screen name this image renders.
	Screen string `json:"screen"`
	// Model is the fully-qualified "provider:model" identifier.
	Model string `json:"model"`
	// Variant is the variant index for generated images.
	Variant int `json:"variant"`
	// Pass is the iteration pass for revised images, zero for originals.
	Pass int `json:"pass,omitempty"`
	// PromptHash is a content digest of the resolved prompt.
	PromptHash string `json:"promptHash"`
	// Path is where the image bytes were written.
	Path string `json:"path"`
	// Seed is the seed used, if any.
	Seed *int64 `json:"seed,omitempty"`
	// Timestamp is when the image was persisted.
	Timestamp time.Time `json:"timestamp"`
}

// Manifest is the per-stage record of successful images.
// Items are kept in append order.
type Manifest struct {
	Spec             string         `json:"spec,omitempty"`
	Title            string         `json:"title"`
	Screens          []string       `json:"screens"`
	Models           []string       `json:"models"`
	TotalImages      int            `json:"totalImages"`
	SuccessfulImages int            `json:"successfulImages"`
	Timestamp        time.Time      `json:"timestamp"`
	Items            []ManifestItem `json:"items"`
}
