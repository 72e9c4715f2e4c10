// Package questions holds the fixed questionnaire.
//
// The catalog file mixes two question shapes: plain questions that borrow the
// options of their section, and self-contained questions carrying their own
// option list. Both are decoded into the Question variant and resolved once,
// at startup, into a Catalog keyed by question id.
package questions

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Question is either Plain or SelfContained.
type Question interface {
	question()
	Prompt() string
}

// Plain questions take their options from the enclosing section.
type Plain struct {
	Text               string
	UsesSectionOptions bool
}

// SelfContained questions carry their own options.
type SelfContained struct {
	Text    string
	Options []string
}

func (Plain) question()         {}
func (SelfContained) question() {}

func (q Plain) Prompt() string         { return q.Text }
func (q SelfContained) Prompt() string { return q.Text }

// Resolved is a question with its effective option list.
type Resolved struct {
	ID           string   `json:"id"`
	Section      string   `json:"section"`
	SectionTitle string   `json:"sectionTitle"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	Optional     bool     `json:"optional"`
}

type Catalog struct {
	ordered []Resolved
	byID    map[string]int
}

type fileQuestion struct {
	ID      string   `yaml:"id"`
	Text    string   `yaml:"text"`
	Options []string `yaml:"options"`
}

type fileSection struct {
	Key       string         `yaml:"key"`
	Title     string         `yaml:"title"`
	Optional  bool           `yaml:"optional"`
	Options   []string       `yaml:"options"`
	Questions []fileQuestion `yaml:"questions"`
}

type file struct {
	Sections []fileSection `yaml:"sections"`
}

func (fq fileQuestion) variant() Question {
	if len(fq.Options) > 0 {
		return SelfContained{Text: fq.Text, Options: fq.Options}
	}
	return Plain{Text: fq.Text, UsesSectionOptions: true}
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustDefault is Default for program start-up.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes and resolves a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode question catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]int)}
	for _, sec := range f.Sections {
		for _, fq := range sec.Questions {
			if fq.ID == "" {
				return nil, fmt.Errorf("section %s: question without id", sec.Key)
			}
			if _, dup := c.byID[fq.ID]; dup {
				return nil, fmt.Errorf("duplicate question id %q", fq.ID)
			}

			r := Resolved{
				ID:           fq.ID,
				Section:      sec.Key,
				SectionTitle: sec.Title,
				Optional:     sec.Optional,
			}
			switch q := fq.variant().(type) {
			case SelfContained:
				r.Text, r.Options = q.Text, q.Options
			case Plain:
				if q.UsesSectionOptions && len(sec.Options) == 0 {
					return nil, fmt.Errorf("question %q has no options and section %s defines none", fq.ID, sec.Key)
				}
				r.Text, r.Options = q.Text, sec.Options
			}

			c.byID[fq.ID] = len(c.ordered)
			c.ordered = append(c.ordered, r)
		}
	}
	return c, nil
}

// Lookup finds a question by id.
func (c *Catalog) Lookup(id string) (Resolved, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Resolved{}, false
	}
	return c.ordered[i], true
}

// All returns the questions in catalog order.
func (c *Catalog) All() []Resolved {
	return append([]Resolved(nil), c.ordered...)
}

// Required lists the ids of questions outside optional sections.
func (c *Catalog) Required() []string {
	var ids []string
	for _, q := range c.ordered {
		if !q.Optional {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// HasOption reports whether option is one of the question's choices.
func (c *Catalog) HasOption(id, option string) bool {
	q, ok := c.Lookup(id)
	if !ok {
		return false
	}
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}
