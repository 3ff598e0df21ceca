package wlock

import (
	"github.com/marksweiss/whitedb/internal/wg/lockfree"
	"github.com/marksweiss/whitedb/internal/wg/segment"
	"github.com/marksweiss/whitedb/internal/wg/spin"
)

// Queued algorithm. Requesters link themselves into a FIFO queue with a
// single fetch-and-store on the tail word, then spin on their own node's
// blocked bit. reader_count tracks readers inside the critical section
// independently of the queue, so a departing run of readers can reset the
// tail while stragglers are still counted.

// waitUnblocked spins on n's blocked bit with the two-level pattern. The
// upper state bits (successor hints) are left untouched by the eventual
// unblocking AND, so they survive for the post-spin hint check.
func waitUnblocked(db *segment.DB, n segment.Offset) {
	st := lockfree.State(n)
	spin.Until(func() bool {
		return db.Load(st)&blockedBit == 0
	})
}

// waitNext waits for n's successor to publish itself. Only called when the
// successor has already swapped the tail, so publication is imminent: this
// must never sleep, or the whole queue stalls behind it.
func waitNext(db *segment.DB, n segment.Offset) segment.Offset {
	nx := lockfree.Next(n)
	spin.UntilPublished(func() bool {
		return db.Load(nx) != 0
	})
	return segment.Offset(db.Load(nx))
}

// startWriteQueued enqueues a writer node and waits for exclusive
// ownership. The returned token is the node offset; EndWrite frees it.
func startWriteQueued(db *segment.DB) (segment.Offset, error) {
	n, err := allocNode(db, classWrite)
	if err != nil {
		return 0, err
	}

	prev := db.FetchAndStore(segment.OffTail, uint64(n))
	if prev == 0 {
		// Queue was empty, but readers may still hold the lock: publish as
		// the pending writer, then re-check the count. Whoever wins the
		// swap on next_writer (us, or the last departing reader) performs
		// the unblock.
		db.Store(segment.OffNextWriter, uint64(n))
		if db.Load(segment.OffReaderCount) == 0 &&
			db.FetchAndStore(segment.OffNextWriter, 0) == uint64(n) {
			db.And(lockfree.State(n), ^uint64(blockedBit))
			return n, nil
		}
	} else {
		// Announce our class to the predecessor before linking, so its
		// release knows a writer is behind it.
		p := segment.Offset(prev)
		db.Or(lockfree.State(p), classWrite)
		db.Store(lockfree.Next(p), uint64(n))
	}

	waitUnblocked(db, n)
	return n, nil
}

// endWriteQueued hands the lock to the successor, if any, and retires the
// writer's node.
func endWriteQueued(db *segment.DB, n segment.Offset) {
	if db.Load(lockfree.Next(n)) != 0 ||
		!db.CompareAndSwap(segment.OffTail, uint64(n), 0) {
		// A successor exists, or swapped the tail and is about to link.
		succ := waitNext(db, n)
		if db.Load(lockfree.Class(succ))&classRead != 0 {
			// Count a waiting reader in on its behalf before waking it.
			db.Increment(segment.OffReaderCount, 1)
		}
		db.And(lockfree.State(succ), ^uint64(blockedBit))
	}
	lockfree.Free(db, n)
}

// startReadQueued enqueues a reader node and waits until the reader may
// enter. On return reader_count already includes this reader, counted
// either by itself or by the predecessor that unblocked it.
func startReadQueued(db *segment.DB) (segment.Offset, error) {
	n, err := allocNode(db, classRead)
	if err != nil {
		return 0, err
	}

	prev := db.FetchAndStore(segment.OffTail, uint64(n))
	if prev == 0 {
		// Empty queue: any readers still counted are running, so we may
		// join them immediately.
		db.Increment(segment.OffReaderCount, 1)
		db.And(lockfree.State(n), ^uint64(blockedBit))
	} else {
		p := segment.Offset(prev)
		if db.Load(lockfree.Class(p))&classWrite != 0 ||
			db.CompareAndSwap(lockfree.State(p), blockedBit, blockedBit|classRead) {
			// Predecessor is a writer, or a still-blocked reader that now
			// carries our reader hint. Its release counts us in and clears
			// our blocked bit.
			db.Store(lockfree.Next(p), uint64(n))
			waitUnblocked(db, n)
		} else {
			// Predecessor is a running reader: count ourselves in and run.
			db.Increment(segment.OffReaderCount, 1)
			db.Store(lockfree.Next(p), uint64(n))
			db.And(lockfree.State(n), ^uint64(blockedBit))
		}
	}

	// A successor reader that found us blocked left its hint in our state
	// word. Count it in and pass the wakeup down the chain, so a contiguous
	// run of readers enters together.
	if db.Load(lockfree.State(n))&classRead != 0 {
		succ := waitNext(db, n)
		db.Increment(segment.OffReaderCount, 1)
		db.And(lockfree.State(succ), ^uint64(blockedBit))
	}
	return n, nil
}

// endReadQueued retires a reader. The last reader to leave hands the lock
// to the writer recorded in next_writer, if one is pending.
func endReadQueued(db *segment.DB, n segment.Offset) {
	if db.Load(lockfree.Next(n)) != 0 ||
		!db.CompareAndSwap(segment.OffTail, uint64(n), 0) {
		succ := waitNext(db, n)
		if db.Load(lockfree.State(n))&classWrite != 0 {
			// Our successor is a writer: it acquires only once the last
			// reader drains, so record it for that reader to wake.
			db.Store(segment.OffNextWriter, uint64(succ))
		}
	}
	if db.FetchAndAdd(segment.OffReaderCount, -1) == 1 {
		// We were the last reader inside the section.
		if w := db.FetchAndStore(segment.OffNextWriter, 0); w != 0 {
			db.And(lockfree.State(segment.Offset(w)), ^uint64(blockedBit))
		}
	}
	lockfree.Free(db, n)
}
