package wgdb

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marksweiss/whitedb/internal/wg/lockfree"
	"github.com/marksweiss/whitedb/internal/wg/segment"
	"github.com/marksweiss/whitedb/internal/wg/wlock"
)

// Protocol selects the lock algorithm for a database.
type Protocol = wlock.Protocol

// Available protocols. The build-time default is DefaultProtocol.
const (
	GlobalFlag = wlock.ProtocolGlobalFlag
	Queued     = wlock.ProtocolQueued

	// DefaultProtocol follows the whitedb_global_locks build tag.
	DefaultProtocol = wlock.DefaultProtocol
)

// Token identifies one successful lock acquisition. A zero Token is never
// returned by a successful Start call.
type Token = segment.Offset

// ErrInvalidDatabase is returned by every operation on a nil, truncated,
// or foreign handle.
var ErrInvalidDatabase = segment.ErrInvalidDatabase

// Stats are process-local acquisition counters for one handle. They are
// not part of the shared segment: each attached handle counts its own
// traffic.
type Stats struct {
	Reads        uint64
	Writes       uint64
	AllocFailure uint64
}

// Database is a handle to a shared memory segment with initialized lock
// state.
type Database struct {
	db *segment.DB

	reads        atomic.Uint64
	writes       atomic.Uint64
	allocFailure atomic.Uint64
}

type config struct {
	maxNodes int
	proto    Protocol
	log      *zap.Logger
}

// Option configures Create, Attach and Database.InitLockQueue.
type Option func(*config)

// WithMaxNodes sizes the queue-node pool, bounding concurrently in-flight
// lock requests under the queued algorithm. Applied by Create and
// InitLockQueue; ignored by Attach.
func WithMaxNodes(n int) Option {
	return func(c *config) { c.maxNodes = n }
}

// WithProtocol overrides the build-time default lock algorithm. Applied by
// Create and InitLockQueue; attached handles follow the segment header.
func WithProtocol(p Protocol) Option {
	return func(c *config) { c.proto = p }
}

// WithLogger replaces the handle's diagnostic logger. The default logs to
// standard error; pass zap.NewNop() for silence.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) { c.log = log }
}

// stderrLogger builds the default diagnostic logger: console encoding on
// the standard error stream, error level and up.
func stderrLogger() *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zapcore.ErrorLevel)
	return zap.New(core)
}

// Create allocates a new database segment and initializes its lock state.
// Not safe for concurrent use until it returns; afterwards every method is
// callable from any goroutine.
func Create(opts ...Option) (*Database, error) {
	cfg := config{
		maxNodes: wlock.DefaultMaxNodes,
		proto:    DefaultProtocol,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = stderrLogger()
	}
	if cfg.maxNodes <= 0 {
		cfg.maxNodes = wlock.DefaultMaxNodes
	}

	words := segment.HeaderWords + cfg.maxNodes*lockfree.NodeWords
	db, err := segment.Create(words, cfg.log)
	if err != nil {
		return nil, err
	}
	if err := wlock.InitLockQueue(db, cfg.proto, cfg.maxNodes); err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// Attach wraps an existing segment word array as a new handle. The array
// must come from Words() of a handle whose segment was initialized by
// Create (or by InitLockQueue after a reset). Lock traffic on both handles
// contends on the same shared words.
func Attach(words []uint64, opts ...Option) (*Database, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = stderrLogger()
	}
	db, err := segment.Attach(words, cfg.log)
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// Words exposes the backing segment for Attach by another handle.
func (d *Database) Words() []uint64 {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Words()
}

// Protocol reports the lock algorithm recorded in the segment.
func (d *Database) Protocol() Protocol {
	if err := d.check(); err != nil {
		return DefaultProtocol
	}
	return wlock.ProtocolOf(d.db)
}

// InitLockQueue resets all lock state in the segment: control words,
// protocol, and the node freelist. Single-threaded; any outstanding token
// is invalidated. Exposed for segment re-initialization.
func (d *Database) InitLockQueue(opts ...Option) error {
	if err := d.check(); err != nil {
		return err
	}
	cfg := config{
		maxNodes: int(d.db.Load(segment.OffMaxNodes)),
		proto:    wlock.ProtocolOf(d.db),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return wlock.InitLockQueue(d.db, cfg.proto, cfg.maxNodes)
}

// StartWrite blocks until the caller holds the database exclusively.
// On failure the returned token is zero and EndWrite must not be called.
func (d *Database) StartWrite() (Token, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	tok, err := wlock.StartWrite(d.db)
	if err != nil {
		d.allocFailure.Add(1)
		return 0, err
	}
	d.writes.Add(1)
	return tok, nil
}

// EndWrite releases the exclusive hold. The token must be the value
// returned by the matching StartWrite.
func (d *Database) EndWrite(tok Token) error {
	if err := d.check(); err != nil {
		return err
	}
	return wlock.EndWrite(d.db, tok)
}

// StartRead blocks until no writer is active. Readers run in parallel with
// other readers. On failure the returned token is zero and EndRead must
// not be called.
func (d *Database) StartRead() (Token, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	tok, err := wlock.StartRead(d.db)
	if err != nil {
		d.allocFailure.Add(1)
		return 0, err
	}
	d.reads.Add(1)
	return tok, nil
}

// EndRead releases a shared hold.
func (d *Database) EndRead(tok Token) error {
	if err := d.check(); err != nil {
		return err
	}
	return wlock.EndRead(d.db, tok)
}

// Stats returns this handle's acquisition counters.
func (d *Database) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Reads:        d.reads.Load(),
		Writes:       d.writes.Load(),
		AllocFailure: d.allocFailure.Load(),
	}
}

// maxNodes reads the pool capacity from the segment header.
func (d *Database) maxNodes() int {
	return int(d.db.Load(segment.OffMaxNodes))
}

func (d *Database) check() error {
	if d == nil || d.db == nil {
		stderrLogger().Error("operation on invalid database handle")
		return ErrInvalidDatabase
	}
	if err := d.db.Check(); err != nil {
		d.db.Logger().Error("operation on invalid database handle", zap.Error(err))
		return err
	}
	return nil
}
