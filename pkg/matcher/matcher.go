// Package matcher resolves loosely written table and column names to the
// identifiers that exist in a schema catalog.
package matcher

import (
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
)

// Method records which step produced a match.
type Method int

const (
	MethodExact Method = iota
	MethodCaseInsensitive
	MethodInflection
	MethodEditDistance
)

func (m Method) String() string {
	switch m {
	case MethodExact:
		return "exact"
	case MethodCaseInsensitive:
		return "case-insensitive"
	case MethodInflection:
		return "singular/plural"
	case MethodEditDistance:
		return "edit distance"
	}
	return "unknown"
}

// Match is a resolved identifier.
type Match struct {
	Name     string
	Method   Method
	Distance int
}

// Matcher resolves names against one catalog snapshot.
type Matcher struct {
	catalog *schema.Catalog
}

// New returns a matcher bound to cat.
func New(cat *schema.Catalog) *Matcher {
	return &Matcher{catalog: cat}
}

// Catalog returns the snapshot the matcher resolves against.
func (m *Matcher) Catalog() *schema.Catalog {
	return m.catalog
}

// ResolveTable returns the catalog table closest to candidate.
// false means the name could not be resolved.
func (m *Matcher) ResolveTable(candidate string) (string, bool) {
	match, ok := m.MatchTable(candidate)
	return match.Name, ok
}

// ResolveColumn returns the column of table closest to candidate.
// false means the table is unknown or no column is close enough.
func (m *Matcher) ResolveColumn(table, candidate string) (string, bool) {
	match, ok := m.MatchColumn(table, candidate)
	return match.Name, ok
}

// MatchTable is ResolveTable with the matching step reported.
func (m *Matcher) MatchTable(candidate string) (Match, bool) {
	return resolve(candidate, m.catalog.Tables())
}

// MatchColumn is ResolveColumn with the matching step reported.
func (m *Matcher) MatchColumn(table, candidate string) (Match, bool) {
	columns := m.catalog.Columns(table)
	if columns == nil {
		return Match{}, false
	}
	return resolve(candidate, columns)
}

// resolve applies, in order and first match wins: exact, case-insensitive,
// singular/plural variants, then the nearest name by edit distance.
func resolve(candidate string, names []string) (Match, bool) {
	if candidate == "" || len(names) == 0 {
		return Match{}, false
	}

	for _, name := range names {
		if name == candidate {
			return Match{Name: name, Method: MethodExact}, true
		}
	}

	for _, name := range names {
		if strings.EqualFold(name, candidate) {
			return Match{Name: name, Method: MethodCaseInsensitive}, true
		}
	}

	for _, variant := range numberVariants(candidate) {
		for _, name := range names {
			if strings.EqualFold(name, variant) {
				return Match{Name: name, Method: MethodInflection}, true
			}
		}
	}

	lower := strings.ToLower(candidate)
	best, bestDist := "", -1
	for _, name := range names {
		d := Levenshtein(lower, strings.ToLower(name))
		if bestDist < 0 || d < bestDist {
			best, bestDist = name, d
		}
	}
	if Accept(bestDist, len(candidate)) {
		return Match{Name: best, Method: MethodEditDistance, Distance: bestDist}, true
	}
	return Match{}, false
}

// Accept is the edit-distance threshold: at most 3 edits, or fewer than
// 30% of the candidate's length.
func Accept(distance, candidateLen int) bool {
	if distance < 0 || candidateLen == 0 {
		return false
	}
	return distance <= 3 || float64(distance)/float64(candidateLen) < 0.3
}

// numberVariants lists singular and plural spellings of word, suffix rules
// first and irregular forms last.
func numberVariants(word string) []string {
	lower := strings.ToLower(word)
	var out []string
	add := func(v string) {
		if v == "" || v == lower {
			return
		}
		for _, existing := range out {
			if existing == v {
				return
			}
		}
		out = append(out, v)
	}

	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 3:
		add(lower[:len(lower)-3] + "y")
	case strings.HasSuffix(lower, "es") && len(lower) > 2:
		add(lower[:len(lower)-2])
	}
	if strings.HasSuffix(lower, "s") && len(lower) > 1 {
		add(lower[:len(lower)-1])
	} else {
		add(lower + "s")
	}
	if strings.HasSuffix(lower, "y") && len(lower) > 1 {
		add(lower[:len(lower)-1] + "ies")
	}

	add(strings.ToLower(inflection.Singular(lower)))
	add(strings.ToLower(inflection.Plural(lower)))
	return out
}

// Singular returns the singular form of a table name.
func Singular(name string) string {
	return inflection.Singular(name)
}

// Levenshtein returns the edit distance between s1 and s2.
func Levenshtein(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}
