// Package selector resolves chat text to a catalogued meme.
package selector

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ajitpratap0/memereact/internal/catalog"
	"github.com/ajitpratap0/memereact/internal/matcher"
	"github.com/ajitpratap0/memereact/internal/models"
	"github.com/ajitpratap0/memereact/pkg/randsrc"
)

// Match is the outcome of a successful selection.
type Match struct {
	Entry *models.Entry `json:"entry"`
	// Exact is true when the whole text was itself a keyword.
	Exact bool `json:"exact"`
	// Keywords are the keywords that produced the candidate set.
	Keywords []string `json:"keywords"`
	// Candidates is the size of the set the entry was drawn from.
	Candidates int `json:"candidates"`
}

// index pairs a catalog with the matcher built from its keywords so both are
// swapped together.
type index struct {
	cat     *catalog.Catalog
	matcher *matcher.Matcher
}

// Selector picks the meme to post for a piece of text.
type Selector struct {
	idx atomic.Pointer[index]
	rng randsrc.Source
}

// New creates a selector over cat drawing ties from rng.
func New(cat *catalog.Catalog, rng randsrc.Source) *Selector {
	if rng == nil {
		rng = randsrc.Global()
	}
	s := &Selector{rng: rng}
	s.Swap(cat)
	return s
}

// Swap replaces the catalog in service.
func (s *Selector) Swap(cat *catalog.Catalog) {
	s.idx.Store(&index{cat: cat, matcher: matcher.New(cat.Keywords())})
}

// Catalog returns the catalog currently in service.
func (s *Selector) Catalog() *catalog.Catalog {
	return s.idx.Load().cat
}

// Select returns a meme for text. The raw text is first looked up as an exact
// keyword; failing that, every keyword contained in the lowercased text
// contributes its entries to the candidate set. The winner is drawn
// uniformly, regardless of how many keywords point at each candidate.
func (s *Selector) Select(text string) (Match, bool) {
	idx := s.idx.Load()

	if exact := idx.cat.LookupExact(text); len(exact) > 0 {
		return Match{
			Entry:      exact[s.rng.IntN(len(exact))],
			Exact:      true,
			Keywords:   []string{text},
			Candidates: len(exact),
		}, true
	}

	keywords := idx.matcher.FindAll(strings.ToLower(text))
	if len(keywords) == 0 {
		return Match{}, false
	}
	candidates := union(idx.cat, keywords)
	if len(candidates) == 0 {
		return Match{}, false
	}
	return Match{
		Entry:      candidates[s.rng.IntN(len(candidates))],
		Keywords:   keywords,
		Candidates: len(candidates),
	}, true
}

// Candidates returns every entry the text could select, sorted by ID.
func (s *Selector) Candidates(text string) []*models.Entry {
	idx := s.idx.Load()
	if exact := idx.cat.LookupExact(text); len(exact) > 0 {
		return append([]*models.Entry(nil), exact...)
	}
	return union(idx.cat, idx.matcher.FindAll(strings.ToLower(text)))
}

// union collects the entries of all keywords, de-duplicated and sorted by ID
// so a seeded source picks reproducibly.
func union(cat *catalog.Catalog, keywords []string) []*models.Entry {
	seen := make(map[string]struct{})
	var out []*models.Entry
	for _, kw := range keywords {
		for _, e := range cat.LookupExact(kw) {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
