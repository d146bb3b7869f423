/*
Package metrics exposes Prometheus metrics for the cracking pipeline:
cracks and completed batches per stage, per-attack durations and crack
totals, SSH reconnections, and oracle query outcomes. Metrics are
registered at init; Handler serves them when run is started with
--metrics-addr.
*/
package metrics
