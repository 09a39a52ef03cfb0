// Package stringutil provides common string manipulation utilities.
package stringutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// IsNumeric checks if a string contains only digits.
// Returns false for empty strings.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CollapseSpaces trims s and replaces every whitespace run with a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize returns the comparison form of s: compatibility-decomposed with
// combining marks removed, dots turned into spaces, whitespace collapsed and
// lowercased.
//
// Example:
//
//	Normalize("  Józef  Ćwik. ") returns "jozef cwik"
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	stripped = strings.ReplaceAll(stripped, ".", " ")
	return strings.ToLower(CollapseSpaces(stripped))
}

// FuzzyKeys returns the set of match keys for a person's name: the normalized
// name itself and, for names with at least two words, "<initial> <last>" and
// "<initial><last>". An empty name yields an empty set.
//
// Example:
//
//	FuzzyKeys("Jan Nowak") returns {"jan nowak", "j nowak", "jnowak"}
func FuzzyKeys(name string) map[string]struct{} {
	normalized := Normalize(name)
	if normalized == "" {
		return map[string]struct{}{}
	}

	keys := map[string]struct{}{normalized: {}}
	parts := strings.Fields(normalized)
	if len(parts) >= 2 {
		initial := string([]rune(parts[0])[0])
		last := parts[len(parts)-1]
		keys[initial+" "+last] = struct{}{}
		keys[initial+last] = struct{}{}
	}
	return keys
}

// KeysIntersect reports whether the two key sets share at least one element.
func KeysIntersect(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
