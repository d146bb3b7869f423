package feedback

import (
	"testing"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		pw     string
		prefix string
		root   string
		suffix string
	}{
		{"password", "", "password", ""},
		{"summer2024", "", "summer", "2024"},
		{"password!123", "", "password", "!123"},
		{"123pass!99", "123", "pass", "!99"},
		{"Dragon!!", "", "dragon", "!!"},
		{"42", "42", "", ""},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.pw, func(t *testing.T) {
			parts := Split(tt.pw)
			assert.Equal(t, tt.prefix, parts.Prefix)
			assert.Equal(t, tt.root, parts.Root)
			assert.Equal(t, tt.suffix, parts.Suffix)
		})
	}
}

func TestEntropy(t *testing.T) {
	assert.Equal(t, 0.0, Entropy(""))
	assert.Equal(t, 0.0, Entropy("aaaa"))
	assert.InDelta(t, 1.0, Entropy("abab"), 0.001)
	assert.InDelta(t, 4.0, Entropy("abcdefghijklmnop"), 0.001)
}

func TestVowelRatio(t *testing.T) {
	assert.Equal(t, 0.0, VowelRatio("xfr"))
	assert.InDelta(t, 0.5, VowelRatio("abab"), 0.001)
	assert.Equal(t, 1.0, VowelRatio("aeiou"))
}

func TestClassify(t *testing.T) {
	cfg := config.Default().Analyzer

	tests := []struct {
		pw         string
		structured bool
	}{
		{"password1", true},
		{"summer2024", true},
		{"nguyenvan1", true},
		{"bia123", true},           // short root saved by vowels and low entropy
		{"xfr99", false},           // no vowel
		{"xK9#mQ2v", false},        // digits inside the root
		{"abcdefghijklmnop", false}, // entropy at the global threshold
		{"ab1", false},             // root too short
		{"42", false},
	}
	for _, tt := range tests {
		t.Run(tt.pw, func(t *testing.T) {
			got, _ := Classify(tt.pw, cfg)
			assert.Equal(t, tt.structured, got)
		})
	}
}

func TestIsKeyboardFragment(t *testing.T) {
	assert.True(t, IsKeyboardFragment("qwerty123x"))
	assert.True(t, IsKeyboardFragment("asdfgh"))
	assert.True(t, IsKeyboardFragment("zaq12wsx"))
	assert.False(t, IsKeyboardFragment("dragon"))
	assert.False(t, IsKeyboardFragment("nguyenvan"))
}

func TestMatchCohorts(t *testing.T) {
	assert.Contains(t, MatchCohorts("nguyenvan"), "vietnamese-names")
	assert.Contains(t, MatchCohorts("rajkumar"), "hindi-roman")
	assert.Contains(t, MatchCohorts("metallica"), "music-metal")
	assert.Empty(t, MatchCohorts("xxyzzz"))
}

func TestDiscover(t *testing.T) {
	roots := []string{"kimjiwon", "leeminho", "parkchan", "kowalski", "unrelated"}

	found := Discover(roots, 3)
	assert.Equal(t, []string{"kimjiwon", "leeminho", "parkchan"}, found["korean-roman"])
	_, ok := found["polish-names"]
	assert.False(t, ok, "one match must not surface a cohort")
}
