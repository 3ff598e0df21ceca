// Package wgdb provides the public API for the whitedb concurrent access
// control subsystem: a database-wide reader/writer lock over a shared
// memory segment, built from atomic primitives and bounded busy-waiting.
//
// # Quick start
//
// Create a database, take the lock around record operations, release it:
//
//	db, err := wgdb.Create()
//	if err != nil {
//		// handle error
//	}
//
//	tok, err := db.StartWrite()
//	if err != nil {
//		// lock not taken; do not call EndWrite
//	}
//	// ... exclusive critical section ...
//	db.EndWrite(tok)
//
// Readers run in parallel with each other:
//
//	tok, err := db.StartRead()
//	if err != nil {
//		// lock not taken; do not call EndRead
//	}
//	// ... shared critical section ...
//	db.EndRead(tok)
//
// # Handles and segments
//
// All lock state lives in a flat word array addressed by offsets, so a
// second handle attached to the same backing array contends correctly with
// the first:
//
//	peer, err := wgdb.Attach(db.Words())
//
// This mirrors a segment mapped into several processes: nothing in the
// segment is a process-local pointer.
//
// # Algorithms
//
// Two interchangeable algorithms are available per database: a queued FIFO
// lock (fair, locally spinning, the default) and a global-flag lock
// (single-word, reader-preference). Select with [WithProtocol]; the
// compile-time default follows the whitedb_global_locks build tag.
//
// # Contracts
//
// The lock is not reentrant and supports no upgrade, downgrade, or nesting.
// A failed Start call (zero token, non-nil error) must not be paired with
// an End call. Acquisition never times out: it either fails fast on an
// invalid handle or an exhausted node pool, or blocks until it succeeds.
package wgdb
