/*
Package jobctl runs one long-lived cracking process on the remote GPU
host and reports its true outcome.

The job runs inside a detached screen session named after the batch, so
it survives SSH drops and orchestrator restarts; launch and re-adoption
are symmetric. Liveness is judged by three independent probes (process
count, session existence, terminal log marker):

	process running            -> RUNNING
	gone + gone + marker       -> DONE
	gone + gone + no marker    -> DONE after 2 consecutive missed polls
	probe error                -> reconnect with backoff, give up at 5 min

The process exit code is never trusted; the potfile line-count delta is
the authoritative crack counter, read repeatedly until it stops growing.
A cracking process found running outside our session is an orphan and a
hard failure: the GPU is assumed exclusively ours.
*/
package jobctl
