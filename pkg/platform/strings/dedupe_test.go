package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "trims whitespace", input: []string{"  12  ", "13  "}, expected: []string{"12", "13"}},
		{name: "removes duplicates preserving order", input: []string{"12", "13", "12"}, expected: []string{"12", "13"}},
		{name: "drops blanks", input: []string{"", "  ", "7"}, expected: []string{"7"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestCottageTokens(t *testing.T) {
	assert.Nil(t, CottageTokens(""))
	assert.Equal(t, []string{"12", "13", "14"}, CottageTokens("12 - 13-14-12-"))
}

func TestFirstCottageToken(t *testing.T) {
	assert.Equal(t, "12", FirstCottageToken("12-13"))
	assert.Equal(t, " 12 ", FirstCottageToken(" 12 -13"))
	assert.Equal(t, "99", FirstCottageToken("99"))
	assert.Equal(t, "", FirstCottageToken("-5"))
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, `%12%`, ContainsPattern("12"))
	assert.Equal(t, `%1\%2\_3\\%`, ContainsPattern(`1%2_3\`))
}

func TestContainsASCIIFold(t *testing.T) {
	assert.True(t, ContainsASCIIFold("AB-12-cd", "ab-12"))
	assert.True(t, ContainsASCIIFold("x", ""))
	assert.False(t, ContainsASCIIFold("12-13", "14"))
	assert.False(t, ContainsASCIIFold("İ", "i"), "non-ASCII letters are compared exactly")
}
