// Package shortcode generates and structurally checks short codes.
package shortcode

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Alphabet is the 62 symbol alphabet short codes are drawn from.
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Length is the number of symbols in a short code.
	Length = 8
)

// Generator draws short codes from a cryptographically secure source.
// Uniqueness is not guaranteed; callers check candidates against storage.
type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) Generate() (string, error) {
	const op = "shortcode.Generator.Generate"

	code, err := gonanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate short code: %w", op, err)
	}

	return code, nil
}

func (g *Generator) IsValid(code string) bool {
	return IsValid(code)
}

// IsValid reports whether code has the right length and only alphabet symbols.
// It says nothing about whether the code exists.
func IsValid(code string) bool {
	if len(code) != Length {
		return false
	}

	for _, r := range code {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}

	return true
}
