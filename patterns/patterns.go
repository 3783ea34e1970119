// Package patterns holds the versioned catalogue of regex signatures used
// by the Tier-1 matcher, grouped by failure class and weighted by
// confidence.
package patterns

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pranaya-mathur/sovereign-gateway/contracts"
)

// Pattern is a single regex signature. A Pattern whose FailureClass is
// empty is an allow-pattern: a match is evidence the response is
// well-grounded and should short-circuit further tiers rather than
// escalate them.
type Pattern struct {
	Name         string               `yaml:"name"`
	FailureClass contracts.FailureClass `yaml:"failure_class,omitempty"`
	Confidence   float64              `yaml:"confidence"`
	Regex        string               `yaml:"regex"`
	Description  string               `yaml:"description,omitempty"`
}

// IsAllow reports whether this pattern signals strong grounding rather than
// a failure.
func (p Pattern) IsAllow() bool {
	return p.FailureClass == ""
}

// Catalogue is an ordered, indexed collection of patterns.
type Catalogue struct {
	patterns []Pattern
	byClass  map[contracts.FailureClass][]int
}

// NewCatalogue returns an empty catalogue ready for Add calls.
func NewCatalogue() *Catalogue {
	return &Catalogue{byClass: make(map[contracts.FailureClass][]int)}
}

// Add appends a pattern to the catalogue and indexes it by failure class.
func (c *Catalogue) Add(p Pattern) {
	idx := len(c.patterns)
	c.patterns = append(c.patterns, p)
	c.byClass[p.FailureClass] = append(c.byClass[p.FailureClass], idx)
}

// All returns every pattern in the catalogue, in insertion order.
func (c *Catalogue) All() []Pattern {
	return c.patterns
}

// ByClass returns every pattern registered under the given failure class.
func (c *Catalogue) ByClass(fc contracts.FailureClass) []Pattern {
	idxs := c.byClass[fc]
	out := make([]Pattern, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, c.patterns[i])
	}
	return out
}

// Allow returns every allow-pattern (strong-grounding, FailureClass == "")
// in the catalogue.
func (c *Catalogue) Allow() []Pattern {
	return c.ByClass("")
}

// Strong returns every failure pattern with confidence at or above 0.8, the
// same floor at which the router accepts a Tier-1 match without escalating.
// The Tier-1 matcher itself scans Failures, not Strong.
func (c *Catalogue) Strong() []Pattern {
	out := make([]Pattern, 0)
	for _, p := range c.patterns {
		if !p.IsAllow() && p.Confidence >= 0.8 {
			out = append(out, p)
		}
	}
	return out
}

// Weak returns every failure pattern with confidence below 0.8.
func (c *Catalogue) Weak() []Pattern {
	out := make([]Pattern, 0)
	for _, p := range c.patterns {
		if !p.IsAllow() && p.Confidence < 0.8 {
			out = append(out, p)
		}
	}
	return out
}

// Failures returns every failure pattern (non-allow) in catalogue insertion
// order, the canonical order ties are broken by when picking the
// highest-confidence match among them.
func (c *Catalogue) Failures() []Pattern {
	out := make([]Pattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		if !p.IsAllow() {
			out = append(out, p)
		}
	}
	return out
}

// catalogueFile is the top-level shape of a YAML pattern document.
type catalogueFile struct {
	Patterns []Pattern `yaml:"patterns"`
}

// LoadFromFile reads a single YAML file and returns a validated Catalogue.
func LoadFromFile(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pattern file %s: %w", path, err)
	}

	var cf catalogueFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing pattern file %s: %w", path, err)
	}

	cat := NewCatalogue()
	for i, p := range cf.Patterns {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("pattern %d in %s: %w", i, path, err)
		}
		cat.Add(p)
	}
	return cat, nil
}

// LoadFromDir reads all .yaml/.yml files in a directory and merges them into
// one catalogue, in lexicographic filename order for determinism.
func LoadFromDir(dir string) (*Catalogue, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading pattern directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	cat := NewCatalogue()
	for _, name := range names {
		fileCat, err := LoadFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, p := range fileCat.All() {
			cat.Add(p)
		}
	}
	return cat, nil
}

func validate(p Pattern) error {
	if p.Name == "" {
		return fmt.Errorf("pattern name must not be empty")
	}
	if p.Regex == "" {
		return fmt.Errorf("pattern %s: regex must not be empty", p.Name)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("pattern %s: confidence %f out of range [0,1]", p.Name, p.Confidence)
	}
	return nil
}
