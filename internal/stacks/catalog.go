// Package stacks holds the static question flows for every stack type.
package stacks

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/stacks/internal/domain"
)

// SetupQuestions is the number of leading questions answered by the
// creation form (title, domain, subject).
const SetupQuestions = 3

//go:embed questions.yaml
var questionsYAML []byte

var defaultCatalog = mustParse(questionsYAML)

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	return defaultCatalog
}

type fileFormat struct {
	Placeholder string              `yaml:"placeholder"`
	Setup       []string            `yaml:"setup"`
	Types       map[string]typeSpec `yaml:"types"`
}

type typeSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Questions   []string `yaml:"questions"`
}

// Flow is the ordered question list of one stack type.
type Flow struct {
	Type        domain.StackType
	Name        string
	Description string

	placeholder string
	questions   []string
}

// Total is the number of questions in the flow, setup questions included.
func (f Flow) Total() int {
	return len(f.questions)
}

// Template returns the raw question at index, placeholder untouched.
func (f Flow) Template(index int) (string, bool) {
	if index < 0 || index >= len(f.questions) {
		return "", false
	}
	return f.questions[index], true
}

// Question returns the question at index with the subject substituted.
func (f Flow) Question(index int, subject string) (string, error) {
	tmpl, ok := f.Template(index)
	if !ok {
		return "", fmt.Errorf("%w: question index %d out of range for %s (total %d)",
			domain.ErrInvalidInput, index, f.Type, len(f.questions))
	}
	return strings.ReplaceAll(tmpl, f.placeholder, subject), nil
}

// Catalog is the immutable set of flows, keyed by stack type.
type Catalog struct {
	flows map[domain.StackType]Flow
	types []domain.StackType
}

// Parse builds a catalog from its YAML description.
func Parse(data []byte) (*Catalog, error) {
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("decode question flows: %w", err)
	}
	if ff.Placeholder == "" {
		return nil, fmt.Errorf("question flows: placeholder is required")
	}
	if len(ff.Setup) != SetupQuestions {
		return nil, fmt.Errorf("question flows: expected %d setup questions, got %d", SetupQuestions, len(ff.Setup))
	}
	if len(ff.Types) == 0 {
		return nil, fmt.Errorf("question flows: no stack types defined")
	}

	c := &Catalog{flows: make(map[domain.StackType]Flow, len(ff.Types))}
	for name, def := range ff.Types {
		if len(def.Questions) == 0 {
			return nil, fmt.Errorf("question flows: stack type %q has no questions", name)
		}
		st := domain.StackType(name)
		questions := make([]string, 0, len(ff.Setup)+len(def.Questions))
		questions = append(questions, ff.Setup...)
		questions = append(questions, def.Questions...)

		c.flows[st] = Flow{
			Type:        st,
			Name:        def.Name,
			Description: def.Description,
			placeholder: ff.Placeholder,
			questions:   questions,
		}
		c.types = append(c.types, st)
	}
	sort.Slice(c.types, func(i, j int) bool { return c.types[i] < c.types[j] })

	return c, nil
}

func mustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the flow for a stack type.
func (c *Catalog) Lookup(t domain.StackType) (Flow, bool) {
	f, ok := c.flows[t]
	return f, ok
}

// Types lists the known stack types in lexical order.
func (c *Catalog) Types() []domain.StackType {
	out := make([]domain.StackType, len(c.types))
	copy(out, c.types)
	return out
}

// ParseStackType normalises s and checks it against the catalog.
func (c *Catalog) ParseStackType(s string) (domain.StackType, error) {
	st := domain.StackType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := c.flows[st]; !ok {
		return "", fmt.Errorf("%w: unknown stack type %q", domain.ErrInvalidInput, s)
	}
	return st, nil
}
