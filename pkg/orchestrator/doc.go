/*
Package orchestrator drives each batch through the five-step state
machine: SYNC registers the SAND hashlist with the coordination
service, ATTACKS runs the attack plan, COLLECT writes the DIAMONDS
artifacts and the GLASS residue, FEEDBACK analyzes the batch's
plaintexts, and REBUILD pushes the regenerated wordlist and rules to
the remote host.

The resume step is computed from the state record alone. Failures in
the first three steps are fatal and print a copy-pasteable resume
command; FEEDBACK and REBUILD failures are not, because the batch's
cracks are already durable and both stages can be retried on their
own.
*/
package orchestrator
