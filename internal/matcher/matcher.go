// Package matcher implements case-insensitive multi-keyword substring search
// on top of an Aho-Corasick automaton.
package matcher

import (
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Matcher finds every keyword that occurs in a text. It is immutable after
// New and safe for concurrent use.
type Matcher struct {
	keywords []string
	ac       *ahocorasick.Matcher
}

// New builds a matcher over keywords. Keywords are lowercased and
// de-duplicated; empty keywords are ignored.
func New(keywords []string) *Matcher {
	uniq := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		uniq[kw] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for kw := range uniq {
		sorted = append(sorted, kw)
	}
	sort.Strings(sorted)

	m := &Matcher{keywords: sorted}
	if len(sorted) > 0 {
		m.ac = ahocorasick.NewStringMatcher(sorted)
	}
	return m
}

// FindAll returns every keyword that occurs as a substring of text, compared
// case-insensitively. Each keyword is reported once, in the order its first
// occurrence ends in the text.
func (m *Matcher) FindAll(text string) []string {
	if m.ac == nil || text == "" {
		return nil
	}
	text = strings.ToLower(text)

	hits := m.ac.MatchThreadSafe([]byte(text))
	if len(hits) == 0 {
		return nil
	}
	end := make(map[int]int, len(hits))
	for _, idx := range hits {
		if _, dup := end[idx]; dup {
			continue
		}
		kw := m.keywords[idx]
		end[idx] = strings.Index(text, kw) + len(kw)
	}
	order := make([]int, 0, len(end))
	for idx := range end {
		order = append(order, idx)
	}
	sort.Slice(order, func(i, j int) bool {
		if end[order[i]] != end[order[j]] {
			return end[order[i]] < end[order[j]]
		}
		return order[i] < order[j]
	})

	found := make([]string, len(order))
	for i, idx := range order {
		found[i] = m.keywords[idx]
	}
	return found
}

// Keywords returns the normalized keyword universe, sorted.
func (m *Matcher) Keywords() []string {
	out := make([]string, len(m.keywords))
	copy(out, m.keywords)
	return out
}

// Len returns the number of distinct keywords.
func (m *Matcher) Len() int { return len(m.keywords) }
