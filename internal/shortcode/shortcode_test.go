package shortcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Generate(t *testing.T) {
	g := New()
	seen := make(map[string]struct{})

	for i := 0; i < 1000; i++ {
		code, err := g.Generate()
		require.NoError(t, err)

		assert.Len(t, code, Length)
		for _, r := range code {
			assert.Contains(t, Alphabet, string(r))
		}
		assert.True(t, g.IsValid(code))

		seen[code] = struct{}{}
	}

	// 62^8 candidates; a repeat within 1000 draws means the source is broken.
	assert.Len(t, seen, 1000)
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"lower case", "abcdefgh", true},
		{"mixed", "aB3dE5gH", true},
		{"digits", "01234567", true},
		{"empty", "", false},
		{"too short", "abcdefg", false},
		{"too long", "abcdefghi", false},
		{"dash", "abcd-fgh", false},
		{"underscore", "abcd_fgh", false},
		{"space", "abcd fgh", false},
		{"non ascii", "abcdéfg", false},
		{"path traversal", "../../..", false},
		{"long repeat", strings.Repeat("a", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.code))
		})
	}
}

func TestAlphabet(t *testing.T) {
	assert.Len(t, Alphabet, 62)

	seen := make(map[rune]struct{})
	for _, r := range Alphabet {
		seen[r] = struct{}{}
	}
	assert.Len(t, seen, 62)
}
