// Package segment implements the shared memory segment that holds all
// database lock state.
//
// The segment is a flat array of 64-bit words. Every reference inside it is
// a word offset from the segment base, never a Go pointer: the same segment
// may be mapped (or aliased) at different addresses in different processes,
// so only offsets are stable. Offset 0 is reserved as the nil offset.
//
// # Layout
//
// The first HeaderWords words form the segment header:
//
//	Word  Field
//	0     magic
//	1     version
//	2     size (total words)
//	3     protocol (lock algorithm selector)
//	4     global_lock (writer flag + reader count, global-flag algorithm)
//	5     tail (last queue node, queued algorithm)
//	6     next_writer (writer pending reader drain, queued algorithm)
//	7     reader_count (readers inside the critical section)
//	8     storage (base offset of the queue-node pool)
//	9     max_nodes (pool capacity)
//	10    freelist (top of the free-node stack)
//
// Words 11..15 are reserved. The node pool starts at word 16 so that it is
// cache-line aligned relative to the segment base.
//
// # Atomicity
//
// All mutation of shared words goes through the atomic accessors on DB
// (CompareAndSwap, FetchAndAdd, FetchAndStore, And, Or). CompareAndSwap,
// FetchAndAdd and FetchAndStore map to single LOCK-prefixed instructions on
// amd64; And and Or are compare-and-swap retry loops, so they are atomic but
// not single instructions. All of them carry sequentially consistent
// ordering, which subsumes the acquire/release ordering the lock protocols
// need: any field published through one of these operations is visible to a
// subsequent atomic read of the same word.
//
// # Handle validation
//
// Check validates the handle before any lock operation touches the segment.
// A nil handle, an undersized segment, or a magic mismatch all fail Check;
// public operations report that through the handle-independent
// ErrInvalidDatabase.
package segment
