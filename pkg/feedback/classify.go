package feedback

import (
	"math"
	"strings"
	"unicode"

	"github.com/cracklabs/sluice/pkg/config"
)

// Parts is a plaintext decomposed into leading digits, a core root, and
// the trailing digit/special runs
type Parts struct {
	Prefix string // leading digit run
	Root   string // lowercased middle
	Suffix string // trailing special run + trailing digit run
}

// Entropy computes Shannon entropy over character frequencies, in bits
// per character
func Entropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}

	h := 0.0
	for _, n := range freq {
		p := float64(n) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

// Split decomposes a plaintext: leading digit run, trailing digit run,
// then trailing special run off what remains. The suffix concatenates
// specials before digits, matching their order in the password
// ("pass!123" → root "pass", suffix "!123").
func Split(pw string) Parts {
	rest := pw

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	prefix := rest[:i]
	rest = rest[i:]

	j := len(rest)
	for j > 0 && rest[j-1] >= '0' && rest[j-1] <= '9' {
		j--
	}
	digits := rest[j:]
	rest = rest[:j]

	k := len(rest)
	for k > 0 && isSpecial(rune(rest[k-1])) {
		k--
	}
	specials := rest[k:]
	rest = rest[:k]

	return Parts{
		Prefix: prefix,
		Root:   strings.ToLower(rest),
		Suffix: specials + digits,
	}
}

func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func lettersOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// VowelRatio returns the share of vowels among the characters of s
func VowelRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	vowels := 0
	total := 0
	for _, r := range strings.ToLower(s) {
		total++
		switch r {
		case 'a', 'e', 'i', 'o', 'u', 'y':
			vowels++
		}
	}
	return float64(vowels) / float64(total)
}

// Classify decides structured vs. random for one plaintext. The global
// entropy threshold separates the obviously random; short roots also
// need the vowel-ratio and root-entropy guards to reject garbage like
// "xfr" or "eii".
func Classify(pw string, cfg config.AnalyzerConfig) (structured bool, parts Parts) {
	parts = Split(pw)
	root := parts.Root

	if Entropy(pw) >= cfg.GlobalEntropyMax {
		return false, parts
	}
	if len(root) < cfg.MinRootLen || !lettersOnly(root) {
		return false, parts
	}

	ratio := VowelRatio(root)
	if ratio == 0 {
		return false, parts
	}

	if len(root) >= 5 {
		return true, parts
	}
	return ratio >= cfg.MinVowelRatio && Entropy(root) < cfg.RootEntropyMax, parts
}

// keyboardFragments are prefixes of keyboard-walk passwords; roots
// starting with one are never worth adding to a wordlist
var keyboardFragments = []string{
	"qwert", "qwerty", "asdf", "asdfg", "zxcv", "zxcvb",
	"qazwsx", "qaz", "wsx", "edc", "poiuy", "lkjh", "mnbv",
	"azerty", "qweasd", "zaq",
}

// IsKeyboardFragment reports whether root starts with a keyboard-walk
// prefix
func IsKeyboardFragment(root string) bool {
	for _, frag := range keyboardFragments {
		if strings.HasPrefix(root, frag) {
			return true
		}
	}
	return false
}
