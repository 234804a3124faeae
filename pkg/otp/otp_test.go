package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	code, err := Generate(6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.Contains(t, alphabet, string(r))
	}
}

func TestGenerateDefaultsLength(t *testing.T) {
	code, err := Generate(0)
	require.NoError(t, err)
	assert.Len(t, code, DefaultLength)
}

func TestGenerateUniformOverAlphabet(t *testing.T) {
	counts := make(map[rune]int, len(alphabet))
	const draws = 8000
	for i := 0; i < draws; i++ {
		code, err := Generate(24)
		require.NoError(t, err)
		for _, r := range code {
			counts[r]++
		}
	}

	// Every character appears, and none dominates. A generator that maps
	// raw bytes onto the alphabet by plain modulo skews the first
	// 256%len(alphabet) characters about 25% high, which trips the bound.
	mean := float64(draws*24) / float64(len(alphabet))
	for _, r := range alphabet {
		count := counts[r]
		require.Positive(t, count, "character %q never generated", r)
		assert.InDelta(t, mean, float64(count), mean*0.10, "character %q frequency is skewed", r)
	}
}

func TestGenerateIsNotConstant(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 16; i++ {
		code, err := Generate(6)
		require.NoError(t, err)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}
