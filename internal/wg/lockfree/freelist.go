package lockfree

import (
	"errors"
	"fmt"

	"github.com/marksweiss/whitedb/internal/wg/segment"
)

// ErrPoolExhausted reports an empty freelist. Lock acquisition fails fast
// on this rather than waiting for another requester to release a node.
var ErrPoolExhausted = errors.New("lock node pool exhausted")

// ErrPoolTooLarge reports a pool that does not fit the segment.
var ErrPoolTooLarge = errors.New("lock node pool exceeds segment size")

// InitPool threads maxNodes pool cells onto the freelist and records the
// pool geometry in the segment header. Single-threaded: called only during
// segment initialization, before any other handle can observe the segment.
func InitPool(db *segment.DB, maxNodes int) error {
	storage := segment.Offset(segment.HeaderWords)
	need := segment.HeaderWords + maxNodes*NodeWords
	if need > db.Size() {
		return fmt.Errorf("%w: need %d words, have %d", ErrPoolTooLarge, need, db.Size())
	}

	db.Store(segment.OffStorage, uint64(storage))
	db.Store(segment.OffMaxNodes, uint64(maxNodes))

	for i := 0; i < maxNodes; i++ {
		n := storage + segment.Offset(i*NodeWords)
		db.Store(Class(n), 0)
		db.Store(Next(n), 0)
		db.Store(State(n), 0)
		// On-freelist marker: bit 0 set, no live references.
		db.Store(Refcount(n), 1)
		if i+1 < maxNodes {
			db.Store(NextCell(n), uint64(n)+uint64(NodeWords))
		} else {
			db.Store(NextCell(n), 0)
		}
	}
	if maxNodes > 0 {
		db.Store(segment.OffFreelist, uint64(storage))
	} else {
		db.Store(segment.OffFreelist, 0)
	}
	return nil
}

// Alloc pops a node from the freelist. The pop pins the candidate with two
// refcount units before the CAS so a concurrent Free cannot recycle it
// while its next_cell is being read; on a lost CAS the pin is dropped
// through Free and the pop retries.
//
// The returned node has refcount 2 (one live reference) and undefined
// class/next/state: the caller initializes those before publishing the
// node's offset anywhere.
func Alloc(db *segment.DB) (segment.Offset, error) {
	for {
		top := db.Load(segment.OffFreelist)
		if top == 0 {
			return 0, ErrPoolExhausted
		}
		t := segment.Offset(top)
		db.FetchAndAdd(Refcount(t), 2)
		if db.CompareAndSwap(segment.OffFreelist, top, db.Load(NextCell(t))) {
			// Clear the on-freelist bit; our pin remains as the caller's
			// live reference.
			db.FetchAndAdd(Refcount(t), -1)
			return t, nil
		}
		Free(db, t)
	}
}

// Free drops one reference to n. The node is pushed back onto the freelist
// only when the CAS from 0 to 1 succeeds, proving no pinned reference
// remains; a loser's pin is still outstanding and the eventual last Free
// performs the push.
func Free(db *segment.DB, n segment.Offset) {
	db.FetchAndAdd(Refcount(n), -2)
	if !db.CompareAndSwap(Refcount(n), 0, 1) {
		return
	}
	for {
		top := db.Load(segment.OffFreelist)
		db.Store(NextCell(n), top)
		if db.CompareAndSwap(segment.OffFreelist, top, uint64(n)) {
			return
		}
	}
}

// DerefLink reads the node offset stored at link and pins it against
// reclamation. Returns 0 if the link is empty. The caller owns one
// reference to the returned node and releases it with Free.
//
// The pin is validated by re-reading the link: if the offset changed while
// we were acquiring the pin, the pinned node may already be recycled, so
// the pin is dropped and the read retried.
func DerefLink(db *segment.DB, link segment.Offset) segment.Offset {
	for {
		v := db.Load(link)
		if v == 0 {
			return 0
		}
		n := segment.Offset(v)
		db.FetchAndAdd(Refcount(n), 2)
		if db.Load(link) == v {
			return n
		}
		Free(db, n)
	}
}
