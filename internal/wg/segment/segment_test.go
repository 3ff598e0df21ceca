package segment

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

// TestCreate verifies segment creation and header layout.
func TestCreate(t *testing.T) {
	d, err := Create(HeaderWords+64, zap.NewNop())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if got := d.Load(OffMagic); got != Magic {
		t.Errorf("magic = %#x, want %#x", got, Magic)
	}
	if got := d.Load(OffVersion); got != Version {
		t.Errorf("version = %d, want %d", got, Version)
	}
	if got := d.Load(OffSize); got != uint64(HeaderWords+64) {
		t.Errorf("size = %d, want %d", got, HeaderWords+64)
	}
	if err := d.Check(); err != nil {
		t.Errorf("Check() on fresh segment failed: %v", err)
	}
}

// TestCreate_TooSmall verifies the header-size floor.
func TestCreate_TooSmall(t *testing.T) {
	_, err := Create(HeaderWords-1, nil)
	if !errors.Is(err, ErrSegmentTooSmall) {
		t.Errorf("Create(undersized) error = %v, want ErrSegmentTooSmall", err)
	}
}

// TestCheck_Invalid covers the dbcheck failure modes.
func TestCheck_Invalid(t *testing.T) {
	tests := []struct {
		name string
		db   *DB
	}{
		{"nil handle", nil},
		{"empty segment", &DB{words: nil}},
		{"short segment", &DB{words: make([]uint64, 3)}},
		{"bad magic", &DB{words: make([]uint64, HeaderWords)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.db.Check(); !errors.Is(err, ErrInvalidDatabase) {
				t.Errorf("Check() = %v, want ErrInvalidDatabase", err)
			}
		})
	}
}

// TestAttach verifies attaching a second handle to the same words.
func TestAttach(t *testing.T) {
	d, err := Create(HeaderWords+16, zap.NewNop())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	peer, err := Attach(d.Words(), zap.NewNop())
	if err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}

	// Writes through one handle are visible through the other.
	d.Store(OffTail, 42)
	if got := peer.Load(OffTail); got != 42 {
		t.Errorf("peer sees tail = %d, want 42", got)
	}
}

// TestAttach_BadMagic verifies foreign word slices are rejected.
func TestAttach_BadMagic(t *testing.T) {
	words := make([]uint64, HeaderWords)
	if _, err := Attach(words, nil); !errors.Is(err, ErrInvalidDatabase) {
		t.Errorf("Attach(zeroed words) error = %v, want ErrInvalidDatabase", err)
	}
}

// TestAtomicOps exercises each accessor against a scratch word.
func TestAtomicOps(t *testing.T) {
	d, err := Create(HeaderWords, zap.NewNop())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	const w = OffGlobalLock

	tests := []struct {
		name  string
		setup uint64
		op    func()
		want  uint64
	}{
		{"store", 0, func() { d.Store(w, 7) }, 7},
		{"increment", 10, func() { d.Increment(w, 5) }, 15},
		{"decrement", 10, func() { d.Increment(w, -4) }, 6},
		{"and", 0xFF, func() { d.And(w, ^uint64(1)) }, 0xFE},
		{"or", 0xF0, func() { d.Or(w, 0x0F) }, 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.Store(w, tt.setup)
			tt.op()
			if got := d.Load(w); got != tt.want {
				t.Errorf("word = %#x, want %#x", got, tt.want)
			}
		})
	}
}

// TestFetchAndAdd verifies the prior-value contract, including negative
// deltas through two's-complement wraparound.
func TestFetchAndAdd(t *testing.T) {
	d, err := Create(HeaderWords, zap.NewNop())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	const w = OffReaderCount

	d.Store(w, 10)
	if prior := d.FetchAndAdd(w, 3); prior != 10 {
		t.Errorf("FetchAndAdd(+3) prior = %d, want 10", prior)
	}
	if got := d.Load(w); got != 13 {
		t.Errorf("word after +3 = %d, want 13", got)
	}
	if prior := d.FetchAndAdd(w, -13); prior != 13 {
		t.Errorf("FetchAndAdd(-13) prior = %d, want 13", prior)
	}
	if got := d.Load(w); got != 0 {
		t.Errorf("word after -13 = %d, want 0", got)
	}
}

// TestFetchAndStore verifies swap semantics.
func TestFetchAndStore(t *testing.T) {
	d, err := Create(HeaderWords, zap.NewNop())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	d.Store(OffTail, 5)
	if prior := d.FetchAndStore(OffTail, 9); prior != 5 {
		t.Errorf("FetchAndStore prior = %d, want 5", prior)
	}
	if got := d.Load(OffTail); got != 9 {
		t.Errorf("word after swap = %d, want 9", got)
	}
}

// TestCompareAndSwap verifies success and failure paths.
func TestCompareAndSwap(t *testing.T) {
	d, err := Create(HeaderWords, zap.NewNop())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	d.Store(OffNextWriter, 1)
	if !d.CompareAndSwap(OffNextWriter, 1, 2) {
		t.Error("CompareAndSwap(1, 2) failed on matching word")
	}
	if d.CompareAndSwap(OffNextWriter, 1, 3) {
		t.Error("CompareAndSwap(1, 3) succeeded on stale expectation")
	}
	if got := d.Load(OffNextWriter); got != 2 {
		t.Errorf("word = %d, want 2", got)
	}
}
