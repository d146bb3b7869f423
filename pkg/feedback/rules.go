package feedback

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
)

// leetSubs maps a plain letter to its common substitution and the
// hashcat-style rule that produces it
var leetSubs = []struct {
	plain byte
	sub   byte
	rule  string
}{
	{'a', '@', "sa@"},
	{'e', '3', "se3"},
	{'i', '1', "si1"},
	{'o', '0', "so0"},
	{'s', '$', "ss$"},
}

// ruleStats accumulates transformation evidence across one batch of
// plaintexts
type ruleStats struct {
	suffixFreq  map[string]int
	capitalized int
	leetFreq    map[string]int
	yearFreq    map[string]int
	total       int
}

func newRuleStats() *ruleStats {
	return &ruleStats{
		suffixFreq: make(map[string]int),
		leetFreq:   make(map[string]int),
		yearFreq:   make(map[string]int),
	}
}

// observe records one plaintext and its decomposition
func (rs *ruleStats) observe(pw string, parts Parts) {
	rs.total++

	if parts.Suffix != "" && len(parts.Suffix) <= 6 {
		rs.suffixFreq[parts.Suffix]++
	}

	if isCapitalized(pw) {
		rs.capitalized++
	}

	for _, ls := range leetSubs {
		if strings.IndexByte(pw, ls.sub) >= 0 {
			rs.leetFreq[ls.rule]++
		}
	}

	if y := trailingYear(pw); y != "" {
		rs.yearFreq[y]++
	}
}

func isCapitalized(pw string) bool {
	runes := []rune(pw)
	if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
		return false
	}
	rest := 0
	for _, r := range runes[1:] {
		if unicode.IsUpper(r) {
			return false
		}
		if unicode.IsLower(r) {
			rest++
		}
	}
	return rest > 0
}

// trailingYear returns a trailing 19xx/20xx run, or ""
func trailingYear(pw string) string {
	if len(pw) < 4 {
		return ""
	}
	tail := pw[len(pw)-4:]
	for _, c := range tail {
		if c < '0' || c > '9' {
			return ""
		}
	}
	if strings.HasPrefix(tail, "19") || strings.HasPrefix(tail, "20") {
		return tail
	}
	return ""
}

// appendRule renders a suffix as a hashcat append rule ("123" → "$1$2$3")
func appendRule(suffix string) string {
	var b strings.Builder
	for i := 0; i < len(suffix); i++ {
		b.WriteByte('$')
		b.WriteByte(suffix[i])
	}
	return b.String()
}

// buildRules emits the rules supported by at least minCount
// observations, most frequent first. Suffix appends come before the
// detected transformations so the cheapest rules run first.
func (rs *ruleStats) buildRules(minCount int) []string {
	if minCount <= 0 {
		minCount = 3
	}

	type scored struct {
		rule string
		n    int
	}
	var out []scored

	for suffix, n := range rs.suffixFreq {
		if n >= minCount {
			out = append(out, scored{appendRule(suffix), n})
		}
	}
	for year, n := range rs.yearFreq {
		if n >= minCount {
			out = append(out, scored{appendRule(year), n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].rule < out[j].rule
	})

	var trailing []scored
	if rs.capitalized >= minCount {
		trailing = append(trailing, scored{"c", rs.capitalized})
	}
	for rule, n := range rs.leetFreq {
		if n >= minCount {
			trailing = append(trailing, scored{rule, n})
		}
	}
	sort.Slice(trailing, func(i, j int) bool {
		if trailing[i].n != trailing[j].n {
			return trailing[i].n > trailing[j].n
		}
		return trailing[i].rule < trailing[j].rule
	})
	out = append(out, trailing...)

	seen := make(map[string]struct{}, len(out))
	rules := make([]string, 0, len(out))
	for _, s := range out {
		if _, ok := seen[s.rule]; ok {
			continue
		}
		seen[s.rule] = struct{}{}
		rules = append(rules, s.rule)
	}
	return rules
}

// loadRuleSet reads existing rule files into a set, skipping comments
// and blanks
func loadRuleSet(paths ...string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to open rule file: %w", err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			set[line] = struct{}{}
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read rule file: %w", err)
		}
	}
	return set, nil
}
