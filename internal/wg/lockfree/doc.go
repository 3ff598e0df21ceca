// Package lockfree implements the queue-node pool for the queued lock
// algorithm: a Treiber stack of free nodes inside the shared segment, with
// per-node reference counts for safe reclamation.
//
// # Nodes
//
// Each node is a fixed block of NodeWords words, padded to its own cache
// line so that requesters spinning on neighbouring nodes do not invalidate
// each other's lines:
//
//	Word  Field
//	0     class (requester kind: read or write)
//	1     next (offset of the successor node, 0 if none)
//	2     state (bit 0 = blocked; upper bits = successor class hint)
//	3     refcount
//	4     next_cell (freelist link, valid only while the node is free)
//
// # Reference counting
//
// The refcount scheme follows Valois: live references count in steps of 2,
// and bit 0 marks a node claimed for a freelist push. A node on the
// freelist therefore holds refcount 1; a node handed out by Alloc holds 2
// (one live reference, bit 0 clear). Free drops a reference and pushes the
// node back only when it wins the CAS from 0 to 1, which proves no pinned
// reference remains.
//
// # Failure mode
//
// The pool is fixed at max_nodes. Alloc fails with ErrPoolExhausted when
// the freelist is empty; the caller surfaces that as a failed lock
// acquisition rather than waiting for a node.
package lockfree
