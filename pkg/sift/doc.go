/*
Package sift computes SAND = GRAVEL − PEARLS over billion-hash inputs
under a bounded memory budget.

The PEARLS side (cracked hashes) is loaded into an in-memory set of
binary SHA-1 keys; the GRAVEL side streams through line by line. Output
is written in fixed-size gzip chunks, preserving input order so the
stage is deterministic and re-runnable. Malformed lines are skipped and
counted, never fatal; write failures remove the partial chunk and abort.
*/
package sift
