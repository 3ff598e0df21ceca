// Package wlock implements the database-wide reader/writer lock that
// serializes write transactions against each other and against readers,
// while letting readers run in parallel. All waiting is bounded busy-spin
// over shared segment words; no operating-system mutex is involved, so the
// lock works across handles that merely alias the same segment.
//
// Two interchangeable algorithms are provided, selected per database at
// initialization (the compile-time default follows the build tag, see
// proto_default.go):
//
// # Global-flag algorithm
//
// A single shared word encodes a writer-active bit (bit 0) and a reader
// count (bits >= 1, stepped by RCIncr). Readers announce themselves with a
// fetch-and-add before testing for a writer; writers spin until the whole
// word is zero. Simple and cheap, but reader-preference: a steady stream of
// readers can starve writers indefinitely. That trade-off is inherent to
// the encoding and is kept as-is.
//
// # Queued algorithm
//
// A fair FIFO queue in the style of Mellor-Crummey & Scott (1992). Each
// requester allocates a queue node from the lock-free pool, swaps itself
// into the queue tail, and spins on a private blocked bit, so contention
// stays on the requester's own cache line. Before linking, a successor ORs
// its class into the predecessor's state word; the predecessor uses that
// hint at release time to either unblock a waiting writer or count a
// waiting reader in on its behalf. Contiguous runs of readers unblock each
// other in a chain and execute in parallel; a writer enters only at the
// queue head once reader_count has drained to zero.
//
// # Tokens
//
// StartRead and StartWrite return a non-zero token that must be passed to
// the matching End call: the requester's node offset under the queued
// algorithm, a fixed sentinel under the global-flag one. A zero token means
// the acquisition failed (invalid handle, or node pool exhausted) and no
// End call must be made.
package wlock
