package wlock

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/marksweiss/whitedb/internal/wg/segment"
)

// TestGlobal_Encoding verifies the lock-word encoding: writer flag in bit
// 0, readers counted in steps of two above it.
func TestGlobal_Encoding(t *testing.T) {
	db := newTestDB(t, ProtocolGlobalFlag, 0)

	r1, err := StartRead(db)
	require.NoError(t, err)
	r2, err := StartRead(db)
	require.NoError(t, err)
	assert.EqualValues(t, 2*rcIncr, db.Load(segment.OffGlobalLock))

	require.NoError(t, EndRead(db, r1))
	require.NoError(t, EndRead(db, r2))
	assert.EqualValues(t, 0, db.Load(segment.OffGlobalLock))

	w, err := StartWrite(db)
	require.NoError(t, err)
	assert.EqualValues(t, waFlag, db.Load(segment.OffGlobalLock))
	require.NoError(t, EndWrite(db, w))
	assert.EqualValues(t, 0, db.Load(segment.OffGlobalLock))
}

// TestGlobal_ParallelReaders verifies two readers hold the lock at once.
func TestGlobal_ParallelReaders(t *testing.T) {
	db := newTestDB(t, ProtocolGlobalFlag, 0)

	var inside atomic.Int64
	var peak atomic.Int64
	release := make(chan struct{})

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			tok, err := StartRead(db)
			if err != nil {
				return err
			}
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			inside.Add(-1)
			return EndRead(db, tok)
		})
	}

	eventually(t, func() bool { return inside.Load() == 2 },
		"two readers never held the lock together")
	close(release)
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 2, peak.Load())
}

// TestGlobal_WriterBlocksReader verifies a reader waits out an active
// writer and proceeds on release.
func TestGlobal_WriterBlocksReader(t *testing.T) {
	db := newTestDB(t, ProtocolGlobalFlag, 0)

	w, err := StartWrite(db)
	require.NoError(t, err)

	var acquired atomic.Bool
	done := make(chan error, 1)
	go func() {
		tok, err := StartRead(db)
		if err != nil {
			done <- err
			return
		}
		acquired.Store(true)
		done <- EndRead(db, tok)
	}()

	stillFalse(t, acquired.Load, "reader entered while the writer held the lock")
	require.NoError(t, EndWrite(db, w))
	eventually(t, acquired.Load, "reader never entered after writer release")
	require.NoError(t, <-done)
}

// TestGlobal_ReaderBlocksWriter verifies the reader-preference behavior: a
// writer only enters once every reader has drained.
func TestGlobal_ReaderBlocksWriter(t *testing.T) {
	db := newTestDB(t, ProtocolGlobalFlag, 0)

	r1, err := StartRead(db)
	require.NoError(t, err)
	r2, err := StartRead(db)
	require.NoError(t, err)

	var acquired atomic.Bool
	done := make(chan error, 1)
	go func() {
		tok, err := StartWrite(db)
		if err != nil {
			done <- err
			return
		}
		acquired.Store(true)
		done <- EndWrite(db, tok)
	}()

	stillFalse(t, acquired.Load, "writer entered while readers held the lock")
	require.NoError(t, EndRead(db, r1))
	stillFalse(t, acquired.Load, "writer entered with one reader still inside")
	require.NoError(t, EndRead(db, r2))
	eventually(t, acquired.Load, "writer never entered after the last reader left")
	require.NoError(t, <-done)
}

// TestGlobal_MutualExclusion runs mixed traffic and checks the auxiliary
// writer/reader presence counters never overlap.
func TestGlobal_MutualExclusion(t *testing.T) {
	testMutualExclusion(t, ProtocolGlobalFlag)
}

// testMutualExclusion is shared by both protocols: writersIn must stay in
// {0, 1}, and writersIn and readersIn must never both be non-zero.
func testMutualExclusion(t *testing.T, proto Protocol) {
	t.Helper()
	const (
		writers = 4
		readers = 8
		iters   = 300
	)
	db := newTestDB(t, proto, writers+readers+4)

	var writersIn, readersIn atomic.Int64
	var violations atomic.Int64
	var counter uint64

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			for n := 0; n < iters; n++ {
				tok, err := StartWrite(db)
				if err != nil {
					return err
				}
				if writersIn.Add(1) != 1 || readersIn.Load() != 0 {
					violations.Add(1)
				}
				counter++
				writersIn.Add(-1)
				if err := EndWrite(db, tok); err != nil {
					return err
				}
			}
			return nil
		})
	}
	for i := 0; i < readers; i++ {
		g.Go(func() error {
			for n := 0; n < iters; n++ {
				tok, err := StartRead(db)
				if err != nil {
					return err
				}
				readersIn.Add(1)
				if writersIn.Load() != 0 {
					violations.Add(1)
				}
				readersIn.Add(-1)
				if err := EndRead(db, tok); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 0, violations.Load(), "exclusion violated")
	assert.EqualValues(t, writers*iters, counter,
		"lost writer increments imply overlapping writers")
	assert.EqualValues(t, 0, db.Load(segment.OffReaderCount))
}
