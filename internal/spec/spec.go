// Package spec parses Markdown design briefs into the normalized form
// the pipeline works from.
package spec

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/atelier/pkg/models"
)

// ErrEmptyBrief indicates the brief contained no usable content.
var ErrEmptyBrief = errors.New("design brief is empty")

// SyntheticScreen is substituted when a brief names no screens.
const SyntheticScreen = "main"

// typeLinePattern matches a "Type: ..." metadata line.
var typeLinePattern = regexp.MustCompile(`(?i)^type\s*:\s*(.+)$`)

// rubricItemPattern matches rubric list entries like
// "task_fitness (Task Fitness): 0.3" or "task_fitness: 0.3".
var rubricItemPattern = regexp.MustCompile(`^([a-z0-9_]+)\s*(?:\(([^)]+)\))?\s*:\s*([0-9.]+)$`)

// Parse normalizes a Markdown design brief. The style argument is
// free-form art-direction text and may be empty.
func Parse(source []byte, style string) (*models.Spec, error) {
	if len(strings.TrimSpace(string(source))) == 0 {
		return nil, ErrEmptyBrief
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	s := &models.Spec{
		Style:  style,
		Rubric: models.DefaultRubric(),
	}

	section := ""
	var notes []string

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			title := nodeText(n, source)
			if n.Level == 1 && s.Title == "" {
				s.Title = title
				section = ""
				continue
			}
			section = strings.ToLower(strings.TrimSpace(title))

		case *ast.Paragraph:
			txt := nodeText(n, source)
			if m := typeLinePattern.FindStringSubmatch(txt); m != nil {
				s.Type = strings.TrimSpace(m[1])
				continue
			}
			switch section {
			case "":
				if s.Description == "" {
					s.Description = txt
				} else {
					notes = append(notes, txt)
				}
			case "style":
				if s.Style == "" {
					s.Style = txt
				}
			case "notes":
				notes = append(notes, txt)
			default:
				notes = append(notes, txt)
			}

		case *ast.List:
			items := listItems(n, source)
			switch section {
			case "screens":
				for _, it := range items {
					s.Screens = append(s.Screens, it.text)
				}
			case "inspiration":
				for _, it := range items {
					ref := it.link
					if ref == "" {
						ref = it.text
					}
					s.Inspiration = append(s.Inspiration, ref)
				}
			case "rubric":
				if rubric := parseRubricItems(items); len(rubric) > 0 {
					s.Rubric = rubric
				}
			case "notes":
				for _, it := range items {
					notes = append(notes, it.text)
				}
			}
		}
	}

	if s.Title == "" {
		return nil, fmt.Errorf("design brief has no title heading: %w", ErrEmptyBrief)
	}
	if s.Description == "" {
		s.Description = s.Title
	}
	if s.Type == "" {
		s.Type = "ui-design"
	}
	if len(s.Screens) == 0 {
		s.Screens = []string{SyntheticScreen}
	}
	s.Notes = strings.Join(notes, "\n")

	return s, nil
}

// ParseFile reads and parses a brief from disk.
func ParseFile(path, style string) (*models.Spec, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read design brief: %w", err)
	}
	s, err := Parse(source, style)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// rubricFile is the YAML shape accepted by LoadRubric.
type rubricFile struct {
	Criteria []struct {
		ID     string  `yaml:"id"`
		Label  string  `yaml:"label"`
		Weight float64 `yaml:"weight"`
	} `yaml:"criteria"`
}

// LoadRubric reads a rubric override from a YAML file.
func LoadRubric(path string) (models.Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric file: %w", err)
	}

	var rf rubricFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rubric file %s: %w", path, err)
	}
	if len(rf.Criteria) == 0 {
		return nil, fmt.Errorf("rubric file %s lists no criteria", path)
	}

	rubric := make(models.Rubric, 0, len(rf.Criteria))
	for _, c := range rf.Criteria {
		if c.ID == "" || c.Weight <= 0 {
			return nil, fmt.Errorf("rubric file %s: criterion needs an id and a positive weight", path)
		}
		label := c.Label
		if label == "" {
			label = c.ID
		}
		rubric = append(rubric, models.Criterion{ID: c.ID, Label: label, Weight: c.Weight})
	}
	return rubric, nil
}

// listItem is one entry of a Markdown list, with the first link
// destination if the entry contained one.
type listItem struct {
	text string
	link string
}

func listItems(list *ast.List, source []byte) []listItem {
	var items []listItem
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		item := listItem{text: strings.TrimSpace(nodeText(li, source))}
		ast.Walk(li, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering || item.link != "" {
				return ast.WalkContinue, nil
			}
			switch l := n.(type) {
			case *ast.Link:
				item.link = string(l.Destination)
			case *ast.AutoLink:
				item.link = string(l.URL(source))
			}
			return ast.WalkContinue, nil
		})
		if item.text != "" || item.link != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseRubricItems(items []listItem) models.Rubric {
	var rubric models.Rubric
	for _, it := range items {
		m := rubricItemPattern.FindStringSubmatch(it.text)
		if m == nil {
			continue
		}
		weight, err := strconv.ParseFloat(m[3], 64)
		if err != nil || weight <= 0 {
			continue
		}
		label := m[2]
		if label == "" {
			label = m[1]
		}
		rubric = append(rubric, models.Criterion{ID: m[1], Label: label, Weight: weight})
	}
	return rubric
}

func nodeText(n ast.Node, source []byte) string {
	return strings.TrimSpace(string(n.Text(source)))
}
