// Package prompt builds and resolves the prompts sent to generation and
// critique models. Templates come from an ordered override chain:
// inline > file > per-step > pipeline-global > built-in default. The
// chain is resolved at call time; nothing here holds mutable state.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"text/template"
)

// Kind names a prompt template slot.
type Kind string

const (
	// KindGenerate is the image-generation prompt.
	KindGenerate Kind = "generate"
	// KindCritique is the rubric-aware critique prompt.
	KindCritique Kind = "critique"
	// KindRevise is the edit-mode revision prompt.
	KindRevise Kind = "revise"
)

// Override is one source in the template override chain. Inline text
// wins over a file path; an empty Override contributes nothing.
type Override struct {
	Inline string
	File   string
}

// Resolve walks the override chain in priority order and returns the
// first template it finds, falling back to the built-in default.
func Resolve(kind Kind, overrides ...Override) (string, error) {
	for _, o := range overrides {
		if o.Inline != "" {
			return o.Inline, nil
		}
		if o.File != "" {
			data, err := os.ReadFile(o.File)
			if err != nil {
				return "", fmt.Errorf("read %s prompt file: %w", kind, err)
			}
			return string(data), nil
		}
	}

	tmpl, ok := builtins[kind]
	if !ok {
		return "", fmt.Errorf("no built-in template for prompt kind %q", kind)
	}
	return tmpl, nil
}

// Render executes a template against the given context.
func Render(tmpl string, ctx map[string]any) (string, error) {
	t, err := template.New("prompt").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	var sb strings.Builder
	if err := t.Execute(&sb, ctx); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// Fingerprint returns a short content digest of a resolved prompt,
// used for audit entries instead of the full prompt text.
func Fingerprint(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// variantDescriptors bias otherwise-identical generation requests
// toward distinct directions. Variant index i maps to entry i modulo
// the list length.
var variantDescriptors = []string{
	"clean and minimal, generous whitespace",
	"bold and expressive, strong color blocking",
	"soft and friendly, rounded shapes and warm tones",
	"dense and information-rich, compact layout",
	"editorial and refined, typographic emphasis",
}

// VariantDescriptor returns the style-bias phrase for a variant index.
func VariantDescriptor(variant int) string {
	if variant < 0 {
		variant = 0
	}
	return variantDescriptors[variant%len(variantDescriptors)]
}
