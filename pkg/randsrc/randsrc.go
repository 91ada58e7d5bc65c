// Package randsrc provides the random source used for meme selection and
// posting decisions. Production code uses the runtime's global generator;
// tests inject a seeded one.
package randsrc

import (
	"math/rand/v2"
	"sync"
)

// Source yields uniform random values. Implementations must be safe for
// concurrent use.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n). It panics if n <= 0.
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }
func (globalSource) IntN(n int) int   { return rand.IntN(n) }

// Global returns a Source backed by the math/rand/v2 top-level functions.
func Global() Source { return globalSource{} }

// Locked wraps r so it can be shared between goroutines.
type Locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewLocked returns a Locked source around r.
func NewLocked(r *rand.Rand) *Locked {
	return &Locked{r: r}
}

// Seeded returns a deterministic, goroutine-safe Source.
func Seeded(seed1, seed2 uint64) *Locked {
	return NewLocked(rand.New(rand.NewPCG(seed1, seed2)))
}

// Float64 returns a value in [0, 1).
func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// IntN returns a value in [0, n).
func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// Fixed always returns the same float and the same index (clamped to n-1).
// It is meant for tests asserting exact outcomes.
type Fixed struct {
	F float64
	I int
}

// Float64 returns f.F.
func (f Fixed) Float64() float64 { return f.F }

// IntN returns f.I clamped to [0, n).
func (f Fixed) IntN(n int) int {
	if f.I >= n {
		return n - 1
	}
	if f.I < 0 {
		return 0
	}
	return f.I
}
