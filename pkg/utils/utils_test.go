package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"one two three", 3},
		{"  padded   whitespace\n\tcounts once  ", 4},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EstimateTokens(tc.text), "%q", tc.text)
	}
}

func TestEstimateMessageTokensSums(t *testing.T) {
	assert.Equal(t, 5, EstimateMessageTokens("one two", "three four five"))
	assert.Equal(t, 0, EstimateMessageTokens())
}

func TestTokenCounterFallsBackWithoutEncoding(t *testing.T) {
	// Counters degrade to the whitespace estimate until an encoding is
	// loaded, and a nil counter is safe to call.
	var nilCounter *TokenCounter
	assert.Equal(t, 3, nilCounter.Count("one two three"))
	assert.Equal(t, 3, (&TokenCounter{}).Count("one two three"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "", Truncate("anything", 0))
	// Rune-aware, not byte-aware.
	assert.Equal(t, "héll...", Truncate("héllo wörld", 4))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "text", Stringify("text"))
	assert.Equal(t, "42", Stringify(42))
	assert.Equal(t, assert.AnError.Error(), Stringify(assert.AnError))
	assert.Equal(t, "map[a:1]", Stringify(map[string]int{"a": 1}))
}
