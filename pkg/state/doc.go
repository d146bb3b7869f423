/*
Package state persists pipeline progress as single JSON documents.

Two stores share one discipline:

  - Store: sand-state.json, the authoritative Stage 2 record (per-batch
    records, per-attack aggregate stats, the mutable attack order)
  - Stage1Store: gravel-state.json, the smaller Stage 1 record

Every save validates the invariants (no attack in both applied and
remaining; cracked never exceeds hashCount; completed implies timestamp
and an empty remaining list), logs any violation, copies the previous
file to .bak, and writes the new state atomically via temp-file rename.
Validation warns; persistence is unconditional: an acknowledged write is
never silently lost.

The store is single-writer by design: only the orchestrator mutates it.
External readers (review tools) read the file directly; backup-before-
write plus atomic rename means they see either the previous good state or
the new one, never a torn write.

Debounced saves coalesce rapid updates during an attack run; Flush (or
the shutdown path) forces any pending write out.
*/
package state
