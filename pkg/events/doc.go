/*
Package events is an in-memory pub/sub broker for pipeline events:
batch lifecycle, attack completions, feedback generation and SSH
reconnections. Publishing is non-blocking; a subscriber with a full
buffer misses events rather than stalling the orchestrator.
*/
package events
