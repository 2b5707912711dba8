package stage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ShayCichocki/atelier/pkg/models"
)

// ErrUnparsableCritique indicates neither the strict parse nor the
// recovery pass yielded a single numeric score.
var ErrUnparsableCritique = errors.New("critique response yielded no scores")

// ParseOutcome tags how a critique response was extracted.
type ParseOutcome int

const (
	// ParsedStrict means the JSON document parsed cleanly.
	ParsedStrict ParseOutcome = iota
	// ParsedRecovered means regex recovery salvaged at least one score.
	ParsedRecovered
	// ParseFailed means nothing usable was extracted.
	ParseFailed
)

// ParsedCritique is the structured content of one critique response.
type ParsedCritique struct {
	Scores              map[string]float64
	Strengths           []string
	Issues              []string
	RevisionInstruction string
	Outcome             ParseOutcome
}

// maxBullets caps strengths and issues per critique.
const maxBullets = 3

// critiqueDoc is the strict JSON shape the critique prompt requests.
type critiqueDoc struct {
	Scores              map[string]float64 `json:"scores"`
	Strengths           []string           `json:"strengths"`
	Issues              []string           `json:"issues"`
	RevisionInstruction string             `json:"revision_instruction"`
}

// ParseCritique extracts a structured critique from raw model output.
// Strategy: strict-parse the first balanced-brace substring; on failure
// fall back to per-criterion regex recovery. Recovery succeeds when at
// least one rubric criterion yields a numeric score.
func ParseCritique(raw string, rubric models.Rubric) (ParsedCritique, error) {
	if doc, ok := parseStrict(raw); ok {
		return ParsedCritique{
			Scores:              doc.Scores,
			Strengths:           capBullets(doc.Strengths),
			Issues:              capBullets(doc.Issues),
			RevisionInstruction: strings.TrimSpace(doc.RevisionInstruction),
			Outcome:             ParsedStrict,
		}, nil
	}

	recovered := recoverCritique(raw, rubric)
	if len(recovered.Scores) == 0 {
		return ParsedCritique{Outcome: ParseFailed}, fmt.Errorf("%w: %s", ErrUnparsableCritique, snippet(raw))
	}
	recovered.Outcome = ParsedRecovered
	return recovered, nil
}

func parseStrict(raw string) (critiqueDoc, bool) {
	var doc critiqueDoc
	candidate := balancedBraces(raw)
	if candidate == "" {
		return doc, false
	}
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return doc, false
	}
	if len(doc.Scores) == 0 {
		return doc, false
	}
	return doc, true
}

// balancedBraces returns the first balanced-brace substring of s, or
// empty when no opening brace closes. Braces inside JSON strings are
// not counted.
func balancedBraces(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var (
	revisionPattern  = regexp.MustCompile(`(?i)"?revision_instruction"?\s*:?\s*"([^"]+)"`)
	strengthsPattern = regexp.MustCompile(`(?is)"?strengths"?\s*:?\s*\[(.*?)\]`)
	issuesPattern    = regexp.MustCompile(`(?is)"?issues"?\s*:?\s*\[(.*?)\]`)
	quotedPattern    = regexp.MustCompile(`"([^"]+)"`)
)

// recoverCritique is the best-effort extraction path for responses
// missing or mangling JSON punctuation.
func recoverCritique(raw string, rubric models.Rubric) ParsedCritique {
	out := ParsedCritique{Scores: make(map[string]float64)}

	for _, c := range rubric {
		pattern := regexp.MustCompile(`(?i)"` + regexp.QuoteMeta(c.ID) + `"\s*:?\s*(\d+)`)
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			// Retry without quotes around the criterion id.
			pattern = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(c.ID) + `\b\s*:?\s*(\d+)`)
			m = pattern.FindStringSubmatch(raw)
		}
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out.Scores[c.ID] = v
		}
	}

	if m := revisionPattern.FindStringSubmatch(raw); m != nil {
		out.RevisionInstruction = strings.TrimSpace(m[1])
	}
	out.Strengths = capBullets(quotedList(strengthsPattern, raw))
	out.Issues = capBullets(quotedList(issuesPattern, raw))

	return out
}

func quotedList(section *regexp.Regexp, raw string) []string {
	m := section.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	var items []string
	for _, q := range quotedPattern.FindAllStringSubmatch(m[1], -1) {
		if s := strings.TrimSpace(q[1]); s != "" {
			items = append(items, s)
		}
	}
	return items
}

func capBullets(items []string) []string {
	if len(items) > maxBullets {
		return items[:maxBullets]
	}
	return items
}

func snippet(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 80 {
		return raw[:80] + "..."
	}
	return raw
}

// WeightedTotal computes the weight-normalized score over the criteria
// present in both the rubric and the parsed scores. Absent criteria
// drop out of numerator and denominator alike, so partial answers are
// renormalized rather than penalized. Result is rounded to two decimal
// places; zero answered weight yields zero.
func WeightedTotal(scores map[string]float64, rubric models.Rubric) float64 {
	var total, totalWeight float64
	for _, c := range rubric {
		score, ok := scores[c.ID]
		if !ok {
			continue
		}
		total += score * c.Weight
		totalWeight += c.Weight
	}
	if totalWeight <= 0 {
		return 0
	}
	return math.Round(total/totalWeight*100) / 100
}
