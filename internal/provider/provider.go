// Package provider adapts external generative-model APIs behind a
// single interface keyed by "provider:model" identifiers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common errors for provider resolution.
var (
	// ErrUnknownProvider indicates the provider prefix is not registered.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrBadModelID indicates an identifier not of the form "provider:model".
	ErrBadModelID = errors.New("model identifier must be provider:model")
	// ErrNotImageCapable indicates the model cannot generate or edit images.
	ErrNotImageCapable = errors.New("model is not image-capable")
	// ErrNotVisionCapable indicates the model cannot read images.
	ErrNotVisionCapable = errors.New("model is not vision-capable")
)

// Error wraps a provider failure with enough context to locate it in
// the run log.
type Error struct {
	Provider string
	Model    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%s: %v", e.Provider, e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ImageRequest asks for a fresh image from a prompt.
type ImageRequest struct {
	Prompt string
	// Seed diversifies generations reproducibly. Providers that do not
	// support seeding ignore it.
	Seed *int64
}

// EditRequest asks for a revision of an existing image.
type EditRequest struct {
	Prompt   string
	Image    []byte
	MimeType string
	Seed     *int64
}

// CritiqueRequest asks a vision model to evaluate an image.
type CritiqueRequest struct {
	Prompt   string
	Image    []byte
	MimeType string
}

// Provider is one external model endpoint family.
type Provider interface {
	// Name is the registry prefix, e.g. "openai".
	Name() string
	// GenerateImage returns image bytes for a prompt.
	GenerateImage(ctx context.Context, model string, req ImageRequest) ([]byte, error)
	// EditImage returns image bytes revised per the request prompt.
	EditImage(ctx context.Context, model string, req EditRequest) ([]byte, error)
	// Critique returns the raw critique text for an image.
	Critique(ctx context.Context, model string, req CritiqueRequest) (string, error)
}

// SplitModel splits a fully-qualified "provider:model" identifier.
func SplitModel(id string) (providerName, model string, err error) {
	providerName, model, ok := strings.Cut(id, ":")
	if !ok || providerName == "" || model == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadModelID, id)
	}
	return providerName, model, nil
}
