package segment

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Offset is a word offset from the segment base. Offset 0 is the nil offset
// and never refers to a valid word.
type Offset uint64

// NilOffset is the reserved null reference inside the segment.
const NilOffset Offset = 0

// Header word offsets. The header occupies the first HeaderWords words of
// the segment; the node pool starts immediately after it.
const (
	OffMagic       Offset = 0
	OffVersion     Offset = 1
	OffSize        Offset = 2
	OffProtocol    Offset = 3
	OffGlobalLock  Offset = 4
	OffTail        Offset = 5
	OffNextWriter  Offset = 6
	OffReaderCount Offset = 7
	OffStorage     Offset = 8
	OffMaxNodes    Offset = 9
	OffFreelist    Offset = 10

	// HeaderWords is sized so the node pool begins on a cache-line boundary
	// relative to the segment base (16 words = 128 bytes).
	HeaderWords = 16
)

// Magic identifies an initialized whitedb segment. Validated by Check before
// any lock operation dereferences segment words.
const Magic uint64 = 0x574744426C6B0001 // "WGDBlk" + format 1

// Version is the segment format version stored at OffVersion.
const Version uint64 = 1

var (
	// ErrInvalidDatabase reports a nil, truncated, or foreign segment handle.
	ErrInvalidDatabase = errors.New("invalid database handle")

	// ErrSegmentTooSmall reports a creation request below the header size.
	ErrSegmentTooSmall = errors.New("segment too small for lock header")
)

// DB is a handle to a shared memory segment. All lock state lives in words;
// the logger is process-local and never stored in the segment.
type DB struct {
	words []uint64
	log   *zap.Logger
}

// Create allocates a fresh segment of nwords words and writes the header.
// The lock control words are zeroed; the node pool is left to the allocator
// to thread. Not safe for concurrent use until Create returns.
func Create(nwords int, log *zap.Logger) (*DB, error) {
	if nwords < HeaderWords {
		return nil, fmt.Errorf("%w: %d words", ErrSegmentTooSmall, nwords)
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &DB{words: make([]uint64, nwords), log: log}
	d.words[OffMagic] = Magic
	d.words[OffVersion] = Version
	d.words[OffSize] = uint64(nwords)
	return d, nil
}

// Attach wraps an existing word slice as a database handle. The slice must
// alias a segment previously initialized by Create (for example the same
// backing array seen by another goroutine, or a mapped region reinterpreted
// as []uint64). The header is validated immediately.
func Attach(words []uint64, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := &DB{words: words, log: log}
	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}

// Check validates the handle: non-nil, large enough to hold the header, and
// carrying the segment magic. Every public lock operation calls this before
// touching lock words.
func (d *DB) Check() error {
	if d == nil || len(d.words) < HeaderWords {
		return ErrInvalidDatabase
	}
	if atomic.LoadUint64(&d.words[OffMagic]) != Magic {
		return fmt.Errorf("%w: bad segment magic", ErrInvalidDatabase)
	}
	return nil
}

// Logger returns the process-local diagnostic logger for this handle.
func (d *DB) Logger() *zap.Logger { return d.log }

// Words exposes the backing word slice so another handle can attach to the
// same segment. The caller must not resize or reallocate it.
func (d *DB) Words() []uint64 { return d.words }

// Size returns the segment capacity in words.
func (d *DB) Size() int { return len(d.words) }

// Load atomically reads the word at off.
func (d *DB) Load(off Offset) uint64 {
	return atomic.LoadUint64(&d.words[off])
}

// Store atomically writes v to the word at off.
func (d *DB) Store(off Offset, v uint64) {
	atomic.StoreUint64(&d.words[off], v)
}

// FetchAndAdd adds delta to the word at off and returns the prior value.
// Negative deltas decrement via two's-complement wraparound.
func (d *DB) FetchAndAdd(off Offset, delta int64) uint64 {
	return atomic.AddUint64(&d.words[off], uint64(delta)) - uint64(delta)
}

// Increment adds delta to the word at off, discarding the prior value.
func (d *DB) Increment(off Offset, delta int64) {
	atomic.AddUint64(&d.words[off], uint64(delta))
}

// FetchAndStore unconditionally swaps v into the word at off and returns
// the prior value. This is the linearization point for queue insertion.
func (d *DB) FetchAndStore(off Offset, v uint64) uint64 {
	return atomic.SwapUint64(&d.words[off], v)
}

// CompareAndSwap installs new at off iff the word still holds old.
func (d *DB) CompareAndSwap(off Offset, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(&d.words[off], old, new)
}

// And atomically applies a bitwise AND with mask to the word at off.
func (d *DB) And(off Offset, mask uint64) {
	addr := &d.words[off]
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old&mask) {
			return
		}
	}
}

// Or atomically applies a bitwise OR with mask to the word at off.
func (d *DB) Or(off Offset, mask uint64) {
	addr := &d.words[off]
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old|mask) {
			return
		}
	}
}
