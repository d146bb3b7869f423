/*
Package stage1 drives one GRAVEL batch through the fixed universal
attack: ensure the hash file and attack assets exist on the remote
host, run the cracker to exhaustion under the job controller, then
split the batch: potfile lines become PEARLS, everything else becomes
the gzipped SAND file.

Processing is idempotent. A batch recorded as completed returns its
stored result, and a re-run interrupted before the state write
reproduces the same on-disk counts because pearl appends deduplicate
by hash.
*/
package stage1
