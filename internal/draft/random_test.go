package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashSeed_MatchesReferenceValues(t *testing.T) {
	assert.Equal(t, uint32(2166136261), HashSeed(""))
	assert.Equal(t, uint32(951228933), HashSeed("abc123"))
	// surrogate pairs hash as two code units
	assert.Equal(t, uint32(1154239905), HashSeed("é😀"))
}

func TestShuffle_KnownPermutations(t *testing.T) {
	assert.Equal(t, []string{"u2", "u3", "u1", "u4"}, Shuffle([]string{"u1", "u2", "u3", "u4"}, "abc123"))
	assert.Equal(t,
		[]string{"u4", "u1", "u2", "u3", "u6", "u5"},
		Shuffle([]string{"u1", "u2", "u3", "u4", "u5", "u6"}, "deadbeef"))
}

func TestShuffle_Deterministic(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	first := Shuffle(in, "seed-1")
	for range 5 {
		assert.Equal(t, first, Shuffle(in, "seed-1"))
	}
	assert.ElementsMatch(t, in, first)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, in, "input must not be mutated")
}

func TestShuffle_SmallInputs(t *testing.T) {
	assert.Empty(t, Shuffle([]string{}, "x"))
	assert.Equal(t, []string{"only"}, Shuffle([]string{"only"}, "x"))
}
