package provider

import (
	"fmt"

	"github.com/ShayCichocki/atelier/internal/config"
)

// Registry resolves fully-qualified model identifiers to adapters.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from configuration. Adapters are
// constructed lazily enough that a missing API key only fails when the
// corresponding provider is actually resolved.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	r.Register(NewOpenAI(cfg.OpenAI))
	r.Register(NewAnthropic(cfg.Anthropic))
	return r
}

// NewEmptyRegistry returns a registry with no providers, for tests.
func NewEmptyRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its name, replacing any previous one.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Resolve splits a "provider:model" identifier and returns the matching
// adapter plus the bare model name.
func (r *Registry) Resolve(id string) (Provider, string, error) {
	providerName, model, err := SplitModel(id)
	if err != nil {
		return nil, "", err
	}
	p, ok := r.providers[providerName]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}
	return p, model, nil
}
