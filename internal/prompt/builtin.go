package prompt

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/atelier/pkg/models"
)

// builtins are the default templates per prompt kind.
var builtins = map[Kind]string{
	KindGenerate: `Design a single {{.Type}} screen: "{{.Screen}}" for {{.Title}}.

{{.Description}}
{{if .Style}}
Art direction: {{.Style}}
{{end}}{{if .Inspiration}}
Draw inspiration from: {{.Inspiration}}
{{end}}
Direction for this variant: {{.VariantHint}}

Render a complete, production-quality UI mock. No annotations, no
device frame, no placeholder lorem text where real copy fits.{{if .Notes}}

Additional notes:
{{.Notes}}{{end}}`,

	KindCritique: `You are a senior product design critic. Evaluate the attached
{{.Type}} screen design for "{{.Title}}".

{{.Description}}

Score each criterion from 0 to 100:
{{.Criteria}}

Respond with a single JSON object, nothing else:
{
  "scores": { {{.CriteriaKeys}} },
  "strengths": ["...", "...", "..."],
  "issues": ["...", "...", "..."],
  "revision_instruction": "one concrete directive, 50 words max"
}`,

	KindRevise: `Revise this design. {{.Instruction}}

Keep everything that already works. Apply only the change described
above, preserving the overall layout, palette, and content.`,
}

// GenerateContext builds the template context for a generation prompt.
func GenerateContext(s *models.Spec, screen string, variant int) map[string]any {
	return map[string]any{
		"Title":       s.Title,
		"Description": s.Description,
		"Type":        s.Type,
		"Style":       s.Style,
		"Screen":      screen,
		"Inspiration": strings.Join(s.Inspiration, ", "),
		"VariantHint": VariantDescriptor(variant),
		"Notes":       s.Notes,
	}
}

// CritiqueContext builds the template context for a critique prompt.
func CritiqueContext(s *models.Spec, rubric models.Rubric) map[string]any {
	var lines []string
	var keys []string
	for _, c := range rubric {
		lines = append(lines, fmt.Sprintf("- %s (%s), weight %.2f", c.ID, c.Label, c.Weight))
		keys = append(keys, fmt.Sprintf("%q: <0-100>", c.ID))
	}
	return map[string]any{
		"Title":        s.Title,
		"Description":  s.Description,
		"Type":         s.Type,
		"Criteria":     strings.Join(lines, "\n"),
		"CriteriaKeys": strings.Join(keys, ", "),
	}
}

// ReviseContext builds the template context for a revision prompt.
func ReviseContext(instruction string) map[string]any {
	return map[string]any{
		"Instruction": instruction,
	}
}

// DefaultRevisionInstruction is used when a candidate's critique
// carried no revision instruction.
const DefaultRevisionInstruction = "Improve overall visual polish, contrast, and hierarchy."
