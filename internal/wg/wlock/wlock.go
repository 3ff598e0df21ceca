package wlock

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/marksweiss/whitedb/internal/wg/lockfree"
	"github.com/marksweiss/whitedb/internal/wg/segment"
)

// Protocol selects the lock algorithm for a database segment. The value is
// stored in the segment header so every attached handle dispatches the same
// way.
type Protocol uint64

const (
	// ProtocolGlobalFlag is the single-word reader-preference lock.
	ProtocolGlobalFlag Protocol = 0

	// ProtocolQueued is the fair FIFO queue lock.
	ProtocolQueued Protocol = 1
)

// String returns the protocol name used in diagnostics.
func (p Protocol) String() string {
	switch p {
	case ProtocolGlobalFlag:
		return "global-flag"
	case ProtocolQueued:
		return "queued"
	default:
		return "unknown"
	}
}

const (
	// waFlag is the writer-active bit of the global lock word.
	waFlag = 1

	// rcIncr is the reader-count step of the global lock word; bit 0 stays
	// reserved for the writer flag.
	rcIncr = 2

	// blockedBit is bit 0 of a queue node's state word.
	blockedBit = 1

	// classRead and classWrite mark a node's requester kind, and double as
	// the successor class hint ORed into a predecessor's state word.
	classRead  = 0x02
	classWrite = 0x04

	// globalToken is the token returned by the global-flag algorithm, which
	// has no per-requester node to hand out.
	globalToken segment.Offset = 1
)

// DefaultMaxNodes bounds in-flight lock requests when the caller does not
// size the pool explicitly.
const DefaultMaxNodes = 64

var (
	// ErrInvalidToken reports an End call with a zero token.
	ErrInvalidToken = errors.New("invalid lock token")
)

// logger resolves the diagnostic logger for db, falling back to the global
// zap logger when the handle itself is nil.
func logger(db *segment.DB) *zap.Logger {
	if db == nil {
		return zap.L()
	}
	return db.Logger()
}

// InitLockQueue initializes all lock state in the segment: the control
// words, the selected protocol, and the node pool freelist. Called once
// during database creation; not safe against concurrent lock traffic.
// Returns an error on an invalid handle or when the pool does not fit.
func InitLockQueue(db *segment.DB, proto Protocol, maxNodes int) error {
	if err := db.Check(); err != nil {
		logger(db).Error("lock init on invalid database", zap.Error(err))
		return err
	}
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	db.Store(segment.OffProtocol, uint64(proto))
	db.Store(segment.OffGlobalLock, 0)
	db.Store(segment.OffTail, 0)
	db.Store(segment.OffNextWriter, 0)
	db.Store(segment.OffReaderCount, 0)
	if err := lockfree.InitPool(db, maxNodes); err != nil {
		logger(db).Error("lock node pool init failed",
			zap.Int("max_nodes", maxNodes), zap.Error(err))
		return err
	}
	return nil
}

// ProtocolOf reports the algorithm recorded in the segment header.
func ProtocolOf(db *segment.DB) Protocol {
	return Protocol(db.Load(segment.OffProtocol))
}

// StartWrite blocks until the caller holds the database exclusively and
// returns the lock token. A zero token with a non-nil error means the lock
// was not taken and EndWrite must not be called.
func StartWrite(db *segment.DB) (segment.Offset, error) {
	if err := db.Check(); err != nil {
		logger(db).Error("start_write on invalid database", zap.Error(err))
		return 0, err
	}
	switch ProtocolOf(db) {
	case ProtocolQueued:
		tok, err := startWriteQueued(db)
		if err != nil {
			logger(db).Error("start_write failed",
				zap.String("protocol", "queued"), zap.Error(err))
			return 0, err
		}
		return tok, nil
	default:
		return startWriteGlobal(db), nil
	}
}

// EndWrite releases the exclusive hold identified by token. The token must
// be the value returned by the matching StartWrite.
func EndWrite(db *segment.DB, token segment.Offset) error {
	if err := db.Check(); err != nil {
		logger(db).Error("end_write on invalid database", zap.Error(err))
		return err
	}
	if token == 0 {
		logger(db).Error("end_write with zero token")
		return ErrInvalidToken
	}
	switch ProtocolOf(db) {
	case ProtocolQueued:
		endWriteQueued(db, token)
	default:
		endWriteGlobal(db)
	}
	return nil
}

// StartRead blocks until no writer is active and returns the lock token.
// A zero token with a non-nil error means the lock was not taken and
// EndRead must not be called.
func StartRead(db *segment.DB) (segment.Offset, error) {
	if err := db.Check(); err != nil {
		logger(db).Error("start_read on invalid database", zap.Error(err))
		return 0, err
	}
	switch ProtocolOf(db) {
	case ProtocolQueued:
		tok, err := startReadQueued(db)
		if err != nil {
			logger(db).Error("start_read failed",
				zap.String("protocol", "queued"), zap.Error(err))
			return 0, err
		}
		return tok, nil
	default:
		return startReadGlobal(db), nil
	}
}

// EndRead releases the shared hold identified by token.
func EndRead(db *segment.DB, token segment.Offset) error {
	if err := db.Check(); err != nil {
		logger(db).Error("end_read on invalid database", zap.Error(err))
		return err
	}
	if token == 0 {
		logger(db).Error("end_read with zero token")
		return ErrInvalidToken
	}
	switch ProtocolOf(db) {
	case ProtocolQueued:
		endReadQueued(db, token)
	default:
		endReadGlobal(db)
	}
	return nil
}

// allocNode pulls a queue node from the pool and initializes it for a fresh
// request of the given class: no successor, blocked, no hints.
func allocNode(db *segment.DB, class uint64) (segment.Offset, error) {
	n, err := lockfree.Alloc(db)
	if err != nil {
		return 0, fmt.Errorf("allocating queue node: %w", err)
	}
	db.Store(lockfree.Class(n), class)
	db.Store(lockfree.Next(n), 0)
	db.Store(lockfree.State(n), blockedBit)
	return n, nil
}
