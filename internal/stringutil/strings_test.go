package stringutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNumeric(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"Valid digits", "123456", true},
		{"Single slot number", "7", true},
		{"Empty string", "", false},
		{"Contains letter", "12a", false},
		{"Contains space", "1 2", false},
		{"Only letters", "abc", false},
		{"Special chars", "1-2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNumeric(tt.input)
			if got != tt.want {
				t.Errorf("IsNumeric(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Empty", "", ""},
		{"Whitespace only", "   \t\n", ""},
		{"Diacritics stripped", "Józef Ćwik", "jozef cwik"},
		{"Dots become spaces", "J.Nowak", "j nowak"},
		{"Whitespace collapsed", "  Anna \t  Kowalska ", "anna kowalska"},
		{"Section code", "1 A", "1 a"},
		{"Compatibility forms", "ﬁzyka", "fizyka"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Józef Ćwik", "J. Nowak", "  ŻÓŁTY  kot ", "2/3 grupa", ""}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestFuzzyKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"Empty", "", nil},
		{"Single word", "Nowak", []string{"nowak"}},
		{"Full name", "Jan Nowak", []string{"jan nowak", "j nowak", "jnowak"}},
		{"Abbreviated name", "J. Nowak", []string{"j nowak", "jnowak"}},
		{"Middle name uses last word", "Anna Maria Kowalska", []string{"anna maria kowalska", "a kowalska", "akowalska"}},
		{"Diacritics", "Łukasz Żak", []string{"łukasz zak", "ł zak", "łzak"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FuzzyKeys(tt.input)
			assert.Len(t, got, len(tt.want))
			for _, k := range tt.want {
				assert.Contains(t, got, k)
			}
		})
	}
}

func TestKeysIntersect(t *testing.T) {
	assert.True(t, KeysIntersect(FuzzyKeys("Jan Nowak"), FuzzyKeys("J. Nowak")))
	assert.False(t, KeysIntersect(FuzzyKeys("Jan Nowak"), FuzzyKeys("Jan Kowalski")))
	assert.False(t, KeysIntersect(FuzzyKeys(""), FuzzyKeys("Jan Nowak")))
}
