/*
Package oracle queries the external breach-count service with
k-anonymity range requests: the SHA-1 is computed locally and only its
first five hex characters are sent; the response is scanned for the
remaining suffix.

Queries are best-effort and rate-limit aware: waves of at most
queryBatch concurrent requests with a gap between waves, and a bolt-
backed cache so roots recurring across batches cost no budget. A failed
query conservatively reads as count 0.
*/
package oracle
