package trend

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WordGroup is one keyword bucket definition.
//
// A title satisfies the group's term logic when every Required term is
// present and, if AnyOf is non-empty, at least one AnyOf term is present.
// FilterWords exclude a title from THIS group only; a filtered title may
// still land in a later group.
type WordGroup struct {
	Label       string   `yaml:"label"`
	Required    []string `yaml:"required,omitempty"`
	AnyOf       []string `yaml:"any_of,omitempty"`
	FilterWords []string `yaml:"filter_words,omitempty"`

	// index is the declaration position. Group order is a deliberate
	// tie-break (first matching group wins), so it is carried explicitly
	// instead of relying on slice position downstream.
	index int
}

// RuleSet holds the configured matching rules for title classification.
// GlobalFilters exclude a title from any group.
type RuleSet struct {
	Groups        []WordGroup `yaml:"groups"`
	GlobalFilters []string    `yaml:"global_filters,omitempty"`
}

// GroupIndex returns the declaration position of the group labelled word,
// or -1 if unknown. Used for stable tie-breaks when sorting buckets.
func (rs *RuleSet) GroupIndex(word string) int {
	for _, g := range rs.Groups {
		if g.Label == word {
			return g.index
		}
	}
	return -1
}

// Validate checks the rule set once at load time so matching never has to
// interpret malformed groups per title.
func (rs *RuleSet) Validate() error {
	seen := make(map[string]bool, len(rs.Groups))
	for i, g := range rs.Groups {
		if g.Label == "" {
			return fmt.Errorf("%w: group %d has no label", ErrInvalidInput, i)
		}
		if seen[g.Label] {
			return fmt.Errorf("%w: duplicate group label %q", ErrInvalidInput, g.Label)
		}
		seen[g.Label] = true
		if len(g.Required) == 0 && len(g.AnyOf) == 0 {
			return fmt.Errorf("%w: group %q has no terms", ErrInvalidInput, g.Label)
		}
		for _, term := range append(append([]string{}, g.Required...), g.AnyOf...) {
			if strings.TrimSpace(term) == "" {
				return fmt.Errorf("%w: group %q contains an empty term", ErrInvalidInput, g.Label)
			}
		}
	}
	return nil
}

// normalize folds all terms once and assigns declaration indexes.
func (rs *RuleSet) normalize() {
	for i := range rs.Groups {
		g := &rs.Groups[i]
		g.index = i
		g.Required = foldAll(g.Required)
		g.AnyOf = foldAll(g.AnyOf)
		g.FilterWords = foldAll(g.FilterWords)
	}
	rs.GlobalFilters = foldAll(rs.GlobalFilters)
}

func foldAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, foldText(t))
	}
	return out
}

// LoadRules reads a YAML rule-set file, validates it, and pre-folds all
// terms. A missing file is not an error: it yields an empty rule set, under
// which no title matches and the report renders "no data" gracefully.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RuleSet{}, nil
		}
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses rule-set YAML.
func ParseRules(data []byte) (*RuleSet, error) {
	rs := &RuleSet{}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("%w: parse rules: %v", ErrInvalidInput, err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	rs.normalize()
	return rs, nil
}
