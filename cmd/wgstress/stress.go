package main

import (
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marksweiss/whitedb/wgdb"
)

// harness holds the shared invariant counters the workers check on every
// acquisition. writersIn and readersIn shadow the lock's own state: both
// non-zero at once, or writersIn above one, means exclusion broke.
type harness struct {
	db        *wgdb.Database
	writersIn atomic.Int64
	readersIn atomic.Int64
	value     uint64 // guarded by the write lock
	failures  atomic.Uint64
}

func (h *harness) writer(iters int) error {
	for i := 0; i < iters; i++ {
		tok, err := h.db.StartWrite()
		if err != nil {
			return fmt.Errorf("start_write: %w", err)
		}
		if n := h.writersIn.Add(1); n != 1 {
			h.failures.Add(1)
		}
		if h.readersIn.Load() != 0 {
			h.failures.Add(1)
		}
		h.value++
		h.writersIn.Add(-1)
		if err := h.db.EndWrite(tok); err != nil {
			return fmt.Errorf("end_write: %w", err)
		}
	}
	return nil
}

func (h *harness) reader(iters int) error {
	for i := 0; i < iters; i++ {
		tok, err := h.db.StartRead()
		if err != nil {
			return fmt.Errorf("start_read: %w", err)
		}
		h.readersIn.Add(1)
		if h.writersIn.Load() != 0 {
			h.failures.Add(1)
		}
		_ = h.value
		h.readersIn.Add(-1)
		if err := h.db.EndRead(tok); err != nil {
			return fmt.Errorf("end_read: %w", err)
		}
	}
	return nil
}

func stressCommand(args []string) {
	fs := flag.NewFlagSet("stress", flag.ExitOnError)
	writers := fs.Int("writers", 4, "number of writer goroutines")
	readers := fs.Int("readers", 16, "number of reader goroutines")
	iters := fs.Int("iters", 10000, "acquisitions per goroutine")
	nodes := fs.Int("nodes", 0, "queue-node pool size (0 = writers+readers+8)")
	protocol := fs.String("protocol", "queued", "lock algorithm: queued or global")
	fs.Parse(args)

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	proto := wgdb.Queued
	if *protocol == "global" {
		proto = wgdb.GlobalFlag
	}
	poolSize := *nodes
	if poolSize <= 0 {
		poolSize = *writers + *readers + 8
	}

	db, err := wgdb.Create(
		wgdb.WithProtocol(proto),
		wgdb.WithMaxNodes(poolSize),
		wgdb.WithLogger(log),
	)
	if err != nil {
		log.Fatal("database create failed", zap.Error(err))
	}

	log.Info("stress run starting",
		zap.String("protocol", proto.String()),
		zap.Int("writers", *writers),
		zap.Int("readers", *readers),
		zap.Int("iters", *iters),
		zap.Int("nodes", poolSize),
	)

	h := &harness{db: db}
	start := time.Now()

	var g errgroup.Group
	for i := 0; i < *writers; i++ {
		g.Go(func() error { return h.writer(*iters) })
	}
	for i := 0; i < *readers; i++ {
		g.Go(func() error { return h.reader(*iters) })
	}
	if err := g.Wait(); err != nil {
		log.Fatal("stress run aborted", zap.Error(err))
	}
	elapsed := time.Since(start)

	stats := db.Stats()
	wantWrites := uint64(*writers) * uint64(*iters)
	ok := h.failures.Load() == 0 && h.value == wantWrites

	log.Info("stress run finished",
		zap.Duration("elapsed", elapsed),
		zap.Uint64("write_acquisitions", stats.Writes),
		zap.Uint64("read_acquisitions", stats.Reads),
		zap.Uint64("counter", h.value),
		zap.Uint64("counter_expected", wantWrites),
		zap.Uint64("invariant_failures", h.failures.Load()),
	)

	if !ok {
		log.Error("INVARIANT VIOLATION: lock exclusion broke under stress")
		os.Exit(1)
	}
	fmt.Printf("ok: %d writers x %d, %d readers x %d, %s protocol, %v\n",
		*writers, *iters, *readers, *iters, proto, elapsed.Round(time.Millisecond))
}
