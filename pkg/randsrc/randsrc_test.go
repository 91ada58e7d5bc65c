package randsrc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeededIsDeterministic(t *testing.T) {
	a := Seeded(1, 2)
	b := Seeded(1, 2)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.IntN(10), b.IntN(10))
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestLockedConcurrentUse(t *testing.T) {
	src := Seeded(7, 7)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				v := src.Float64()
				if v < 0 || v >= 1 {
					t.Errorf("Float64 out of range: %v", v)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestFixedClampsIndex(t *testing.T) {
	f := Fixed{F: 0.5, I: 10}
	assert.Equal(t, 2, f.IntN(3))
	assert.Equal(t, 0, Fixed{I: -1}.IntN(3))
	assert.Equal(t, 0.5, f.Float64())
}

func TestGlobalRange(t *testing.T) {
	g := Global()
	for i := 0; i < 100; i++ {
		assert.Less(t, g.IntN(5), 5)
		assert.Less(t, g.Float64(), 1.0)
	}
}
