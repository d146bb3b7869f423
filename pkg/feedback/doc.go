/*
Package feedback closes the loop between batches: it streams the
plaintexts a batch recovered, separates structured passwords from
random ones by entropy and vowel heuristics, extracts their roots, and
turns what it learns into the wordlist and rule files the next batch
attacks with.

New roots are classified against compiled-in cohort tables, probed for
potential new cohorts, and optionally validated against the external
breach-count oracle. The wordlist gains cohort-matched roots first,
then oracle-promoted ones, then the locally frequent residue; the rule
file gains append rules derived from observed suffixes and
transformations, deduplicated against the baseline rule sets.
*/
package feedback
