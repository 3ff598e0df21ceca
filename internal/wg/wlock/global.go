package wlock

import (
	"github.com/marksweiss/whitedb/internal/wg/segment"
	"github.com/marksweiss/whitedb/internal/wg/spin"
)

// Global-flag algorithm. One shared word holds everything: bit 0 is the
// writer-active flag, bits >= 1 count readers in steps of rcIncr. Readers
// have preference: a writer only enters on a fully zero word, so it waits
// out every reader that keeps the count non-zero.

// startWriteGlobal spins until the whole lock word is zero and the
// writer-active flag is installed. Cannot fail; returns the fixed token.
func startWriteGlobal(db *segment.DB) segment.Offset {
	if db.CompareAndSwap(segment.OffGlobalLock, 0, waFlag) {
		return globalToken
	}
	spin.Until(func() bool {
		// Read before the CAS attempt so a contended word is not hammered
		// with bus-locking writes.
		return db.Load(segment.OffGlobalLock) == 0 &&
			db.CompareAndSwap(segment.OffGlobalLock, 0, waFlag)
	})
	return globalToken
}

// endWriteGlobal clears the writer-active flag. Readers that have already
// announced themselves proceed as soon as the flag drops.
func endWriteGlobal(db *segment.DB) {
	db.And(segment.OffGlobalLock, ^uint64(waFlag))
}

// startReadGlobal announces the reader with a fetch-and-add before testing
// for an active writer, then waits for the flag to clear. The early
// increment is what blocks later writers: they see a non-zero word.
func startReadGlobal(db *segment.DB) segment.Offset {
	prior := db.FetchAndAdd(segment.OffGlobalLock, rcIncr)
	if prior&waFlag == 0 {
		return globalToken
	}
	spin.Until(func() bool {
		return db.Load(segment.OffGlobalLock)&waFlag == 0
	})
	return globalToken
}

// endReadGlobal retires the reader's count contribution.
func endReadGlobal(db *segment.DB) {
	db.FetchAndAdd(segment.OffGlobalLock, -rcIncr)
}
