/*
Package types defines the core data structures shared across sluice.

The type system models the two-stage cracking pipeline:

  - BatchRecord / State: per-batch Stage 2 progress, the single
    authoritative record persisted by pkg/state
  - Stage1Record / Stage1State: per-batch Stage 1 progress
  - AttackSpec: compiled-in definition of one named attack
  - AttackResult / AttackStats: per-attack ROI records
  - CrackedPair: one recovered (hash, plaintext) pair

Material tiers referenced throughout the codebase:

	ROCKS    all breach hashes, batched
	GRAVEL   ROCKS filtered to a baseline wordlist
	PEARLS   plaintexts recovered by Stage 1
	SAND     GRAVEL minus PEARLS (the hard residue)
	DIAMONDS plaintexts recovered by Stage 2
	GLASS    SAND minus DIAMONDS

All types use JSON tags matching the on-disk state file format, which is
read by external review tooling and must stay stable.
*/
package types
