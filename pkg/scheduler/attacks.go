package scheduler

import "github.com/cracklabs/sluice/pkg/types"

// attackTable is the compiled-in attack catalog. Order is the default
// execution order and expresses a deliberate staging: instant
// exhaustive brute force first, then the high-ROI lengths, then funnel
// masks, then the feedback attacks fed by prior batches, then targeted
// hybrids, long-password discovery, and low-ROI clean-up last.
//
// Tier 0: exhaustive and near-instant.
// Tier 1: high ROI per GPU-hour.
// Tier 2: funnel masks and feedback wordlist.
// Tier 3: targeted hybrids.
// Tier 4: long-password discovery and clean-up.
var attackTable = []types.AttackSpec{
	// Tier 0
	{Name: "brute-3", Tier: 0, Mode: types.AttackModeMask, Mask: "?a?a?a",
		Command: "-a 3 ?a?a?a"},
	{Name: "brute-4", Tier: 0, Mode: types.AttackModeMask, Mask: "?a?a?a?a",
		Command: "-a 3 ?a?a?a?a"},
	{Name: "digits-6", Tier: 0, Mode: types.AttackModeMask, Mask: "?d?d?d?d?d?d",
		Command: "-a 3 ?d?d?d?d?d?d"},
	{Name: "digits-8", Tier: 0, Mode: types.AttackModeMask, Mask: "?d?d?d?d?d?d?d?d",
		Command: "-a 3 ?d?d?d?d?d?d?d?d"},

	// Tier 1
	{Name: "brute-6", Tier: 1, Mode: types.AttackModeMask, Mask: "?a?a?a?a?a?a",
		Command: "-a 3 ?a?a?a?a?a?a"},
	{Name: "brute-7", Tier: 1, Mode: types.AttackModeMask, Mask: "?a?a?a?a?a?a?a",
		Command: "-a 3 ?a?a?a?a?a?a?a"},
	{Name: "dict-top-rules", Tier: 1, Mode: types.AttackModeDictionary,
		Wordlist: "top-10m.txt", Rules: "best64.rule",
		Command: "-a 0 top-10m.txt -r best64.rule"},

	// Tier 2
	{Name: "lower-8", Tier: 2, Mode: types.AttackModeMask, Mask: "?l?l?l?l?l?l?l?l",
		Command: "-a 3 ?l?l?l?l?l?l?l?l"},
	{Name: "lower-9", Tier: 2, Mode: types.AttackModeMask, Mask: "?l?l?l?l?l?l?l?l?l",
		Command: "-a 3 ?l?l?l?l?l?l?l?l?l"},
	{Name: "upper-first-lower-7", Tier: 2, Mode: types.AttackModeMask, Mask: "?u?l?l?l?l?l?l",
		Command: "-a 3 ?u?l?l?l?l?l?l"},
	{Name: "feedback-beta", Tier: 2, Mode: types.AttackModeDictionary,
		Wordlist: "BETA.txt", Feedback: true,
		Command: "-a 0 BETA.txt"},
	{Name: "feedback-beta-rules", Tier: 2, Mode: types.AttackModeDictionary,
		Wordlist: "BETA.txt", Rules: "best64.rule", Feedback: true,
		Command: "-a 0 BETA.txt -r best64.rule"},
	{Name: "feedback-unobtainium", Tier: 2, Mode: types.AttackModeDictionary,
		Wordlist: "top-10m.txt", Rules: "unobtainium.rule", Feedback: true,
		Command: "-a 0 top-10m.txt -r unobtainium.rule"},

	// Tier 3
	{Name: "hybrid-word-2digit", Tier: 3, Mode: types.AttackModeHybrid,
		Wordlist: "top-10m.txt", Mask: "?d?d",
		Command: "-a 6 top-10m.txt ?d?d"},
	{Name: "hybrid-word-4digit", Tier: 3, Mode: types.AttackModeHybrid,
		Wordlist: "top-10m.txt", Mask: "?d?d?d?d",
		Command: "-a 6 top-10m.txt ?d?d?d?d"},
	{Name: "hybrid-word-year", Tier: 3, Mode: types.AttackModeHybrid,
		Wordlist: "top-10m.txt", Mask: "19?d?d",
		Command: "-a 6 top-10m.txt 19?d?d"},
	{Name: "hybrid-word-special-digit", Tier: 3, Mode: types.AttackModeHybrid,
		Wordlist: "top-10m.txt", Mask: "?s?d?d",
		Command: "-a 6 top-10m.txt ?s?d?d"},
	{Name: "hybrid-beta-digits", Tier: 3, Mode: types.AttackModeHybrid,
		Wordlist: "BETA.txt", Mask: "?d?d?d", Feedback: true,
		Command: "-a 6 BETA.txt ?d?d?d"},

	// Tier 4
	{Name: "passphrase-2word", Tier: 4, Mode: types.AttackModeDictionary,
		Wordlist: "words-combined.txt",
		Command: "-a 1 words-en.txt words-en.txt"},
	{Name: "long-lower-10", Tier: 4, Mode: types.AttackModeMask, Mask: "?l?l?l?l?l?l?l?l?l?l",
		Command: "-a 3 ?l?l?l?l?l?l?l?l?l?l"},
	{Name: "dict-big-rules", Tier: 4, Mode: types.AttackModeDictionary,
		Wordlist: "top-10m.txt", Rules: "dive.rule",
		Command: "-a 0 top-10m.txt -r dive.rule"},
	{Name: "cleanup-upper-8", Tier: 4, Mode: types.AttackModeMask, Mask: "?u?u?u?u?u?u?u?u",
		Command: "-a 3 ?u?u?u?u?u?u?u?u"},
	{Name: "cleanup-special-mix", Tier: 4, Mode: types.AttackModeMask, Mask: "?l?l?l?l?s?d?d",
		Command: "-a 3 ?l?l?l?l?s?d?d"},
	{Name: "cleanup-digits-10", Tier: 4, Mode: types.AttackModeMask, Mask: "?d?d?d?d?d?d?d?d?d?d",
		Command: "-a 3 ?d?d?d?d?d?d?d?d?d?d"},
}

// DefaultOrder returns the compiled-in attack order. Callers receive a
// fresh slice; the table itself is never mutated.
func DefaultOrder() []string {
	order := make([]string, len(attackTable))
	for i, spec := range attackTable {
		order[i] = spec.Name
	}
	return order
}

// Lookup resolves an attack name to its spec, or nil for unknown names
func Lookup(name string) *types.AttackSpec {
	for i := range attackTable {
		if attackTable[i].Name == name {
			return &attackTable[i]
		}
	}
	return nil
}

// Tier returns the tier of a named attack, or -1 for unknown names
func Tier(name string) int {
	if spec := Lookup(name); spec != nil {
		return spec.Tier
	}
	return -1
}
