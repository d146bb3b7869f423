/*
Package scheduler drives one batch through the compiled-in attack
catalog: tiered, named attacks executed strictly in order, one at a
time, each submitted to the coordination service and polled to
completion. The crack count for an attack is the delta of the
hashlist's total before and after it ran.

Submission failures retry with backoff and then fail the batch; a
successfully submitted attack is never cancelled, because the GPU host
is exclusively ours and restarting costs more than waiting. Reordering
and pruning happen only between batches, in the maintenance pass.
*/
package scheduler
