package matcher

import (
	"math/rand/v2"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestFindAll_Basic(t *testing.T) {
	m := New([]string{"cat", "kitty", "big cat", "dog"})

	got := m.FindAll("Look at that BIG CAT over there")
	assert.Equal(t, []string{"big cat", "cat"}, sorted(got))

	assert.Empty(t, m.FindAll("nothing here"))
	assert.Empty(t, m.FindAll(""))
}

func TestFindAll_OverlappingAndNested(t *testing.T) {
	m := New([]string{"he", "she", "his", "hers"})
	got := m.FindAll("ushers")
	assert.Equal(t, []string{"he", "hers", "she"}, sorted(got))
}

func TestFindAll_ReportsEachKeywordOnce(t *testing.T) {
	m := New([]string{"ha"})
	assert.Equal(t, []string{"ha"}, m.FindAll("hahahaha"))
}

func TestFindAll_FirstOccurrenceOrder(t *testing.T) {
	m := New([]string{"zebra", "apple"})
	assert.Equal(t, []string{"zebra", "apple"}, m.FindAll("a zebra ate an apple"))
}

func TestNew_NormalizesKeywords(t *testing.T) {
	m := New([]string{"Cat", "cat", "", "CAT"})
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, []string{"cat"}, m.Keywords())
	assert.Equal(t, []string{"cat"}, m.FindAll("concatenate"))
}

func TestFindAll_EmptyMatcher(t *testing.T) {
	m := New(nil)
	assert.Empty(t, m.FindAll("anything"))
}

func TestFindAll_Apostrophes(t *testing.T) {
	m := New([]string{"i'm fine", "don't"})
	assert.Equal(t, []string{"i'm fine"}, m.FindAll("I'm fine, thanks"))
}

// Every reported keyword must be a substring of the lowercased text, and every
// keyword that is a substring must be reported.
func TestFindAll_AgreesWithBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 99))
	alphabet := "abc "
	randWord := func(n int) string {
		var sb strings.Builder
		for i := 0; i < n; i++ {
			sb.WriteByte(alphabet[rng.IntN(len(alphabet))])
		}
		return sb.String()
	}

	for round := 0; round < 200; round++ {
		var keywords []string
		for i := 0; i < 1+rng.IntN(12); i++ {
			keywords = append(keywords, randWord(1+rng.IntN(4)))
		}
		m := New(keywords)
		text := randWord(rng.IntN(40))

		var want []string
		for _, kw := range m.Keywords() {
			if strings.Contains(text, kw) {
				want = append(want, kw)
			}
		}
		got := m.FindAll(text)
		require.Equal(t, sorted(want), sorted(got), "keywords=%q text=%q", keywords, text)
	}
}
