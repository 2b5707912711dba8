package provider

import "strings"

// Capability lookup is per fully-qualified identifier with per-provider
// prefix fallbacks, so new model revisions resolve sensibly without a
// table update.

var imageModels = map[string]bool{
	"openai:gpt-image-1": true,
	"openai:dall-e-3":    true,
	"openai:dall-e-2":    true,
}

var visionModels = map[string]bool{
	"openai:gpt-4o":      true,
	"openai:gpt-4o-mini": true,
	"openai:gpt-4.1":     true,
}

// ImageCapable reports whether the model can generate or edit images.
func ImageCapable(id string) bool {
	if v, ok := imageModels[id]; ok {
		return v
	}
	providerName, model, err := SplitModel(id)
	if err != nil {
		return false
	}
	if providerName == "openai" {
		return strings.HasPrefix(model, "gpt-image") || strings.HasPrefix(model, "dall-e")
	}
	return false
}

// VisionCapable reports whether the model can read images.
func VisionCapable(id string) bool {
	if v, ok := visionModels[id]; ok {
		return v
	}
	providerName, model, err := SplitModel(id)
	if err != nil {
		return false
	}
	switch providerName {
	case "anthropic":
		// Every current Claude model reads images.
		return strings.HasPrefix(model, "claude")
	case "openai":
		return strings.HasPrefix(model, "gpt-4") || strings.HasPrefix(model, "gpt-5")
	}
	return false
}
