package trend

import (
	"strings"

	"golang.org/x/text/width"
)

// foldText normalizes a string for term matching: full-width characters are
// folded to their half-width equivalents, then the result is lowercased.
// Matching is substring containment on this folded form, NOT word-boundary
// tokenization: scraped titles mix CJK and Latin text freely, and the
// bucket assignment depends on exactly this containment behaviour.
func foldText(s string) string {
	return strings.ToLower(width.Fold.String(s))
}

// Match classifies a title into at most one keyword bucket.
//
// Groups are tried in declared order and the first match wins. A group
// matches when the folded title contains every Required term and, if AnyOf
// is non-empty, at least one AnyOf term. A matching group is then checked
// against its FilterWords and the rule set's GlobalFilters; if either set
// has a term present, the match is discarded and the search CONTINUES with
// the next group. A title filtered out of a specific bucket may still land
// in a later, broader one.
//
// Empty or whitespace-only titles never match. Deterministic, no side
// effects.
func (rs *RuleSet) Match(title string) (string, bool) {
	if strings.TrimSpace(title) == "" {
		return "", false
	}
	folded := foldText(title)

	for _, g := range rs.Groups {
		if !groupMatches(folded, &g) {
			continue
		}
		if containsAny(folded, g.FilterWords) || containsAny(folded, rs.GlobalFilters) {
			continue
		}
		return g.Label, true
	}
	return "", false
}

func groupMatches(folded string, g *WordGroup) bool {
	for _, term := range g.Required {
		if !strings.Contains(folded, term) {
			return false
		}
	}
	if len(g.AnyOf) == 0 {
		return true
	}
	return containsAny(folded, g.AnyOf)
}

func containsAny(folded string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(folded, term) {
			return true
		}
	}
	return false
}
