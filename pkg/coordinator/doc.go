/*
Package coordinator adapts the external coordination service: hashlist
and task CRUD, progress reads, and bulk download of cracked hashes over
its HTTP API, plus read-mostly SQL introspection (chunk and agent state,
stuck-work release) delivered base64-encoded over SSH.

Transient failures (network errors, 5xx) retry with backoff: once for
writes, up to three times for idempotent reads. Everything else fails
fast to the caller.
*/
package coordinator
