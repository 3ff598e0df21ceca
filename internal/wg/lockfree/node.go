package lockfree

import "github.com/marksweiss/whitedb/internal/wg/segment"

// SynVarPadding is the per-node footprint in bytes. 128 covers the spatial
// prefetcher pair on modern x86, so adjacent nodes never share a line.
const SynVarPadding = 128

// NodeWords is the node stride in words.
const NodeWords = SynVarPadding / 8

// Node field offsets, relative to the node base.
const (
	fieldClass    = 0
	fieldNext     = 1
	fieldState    = 2
	fieldRefcount = 3
	fieldNextCell = 4
)

// Class returns the offset of n's requester-kind word.
func Class(n segment.Offset) segment.Offset { return n + fieldClass }

// Next returns the offset of n's successor link.
func Next(n segment.Offset) segment.Offset { return n + fieldNext }

// State returns the offset of n's blocked-bit/hint word.
func State(n segment.Offset) segment.Offset { return n + fieldState }

// Refcount returns the offset of n's reference count.
func Refcount(n segment.Offset) segment.Offset { return n + fieldRefcount }

// NextCell returns the offset of n's freelist link.
func NextCell(n segment.Offset) segment.Offset { return n + fieldNextCell }
