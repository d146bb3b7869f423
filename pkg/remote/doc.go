/*
Package remote wraps SSH access to external hosts.

The adapter shells out to the system ssh/scp binaries so the operator's
ssh config (agent auth, ProxyJump, aliases) applies unchanged. Every
failure is classified (network / launch / orphan / timeout) so callers
can decide between retry and abort; Retry backs off exponentially and
only retries transient network failures.

SQL introspection queries are delivered base64-encoded and decoded on the
remote side, which sidesteps shell quoting entirely.
*/
package remote
