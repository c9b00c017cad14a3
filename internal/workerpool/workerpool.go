// Package workerpool implements the W-worker scheduling model of spec
// §5: a fixed pool of goroutines serving requests, each owning private
// per-query scratch buffers ("the search allocation") drawn from a
// sync.Pool, sharing only the immutable index handles that live above
// this package. Adapted from entitydb's storage/pools buffer pools,
// generalised from ad hoc byte buffers to the query engine's own scratch
// arena shape.
package workerpool

import (
	"context"
	"sync"

	"github.com/alexandria-go/alexidx/internal/logx"
	"github.com/alexandria-go/alexidx/internal/metrics"
)

// Arena is one worker's search allocation: reusable slices sized to the
// previous request, reset (not reallocated) at the start of each one
// (spec §9 "per-worker scratch arenas").
type Arena struct {
	Scores []float32
	Keys   []uint64
	Buf    []byte
}

func (a *Arena) reset() {
	a.Scores = a.Scores[:0]
	a.Keys = a.Keys[:0]
	a.Buf = a.Buf[:0]
}

// Pool is the fixed-size worker pool. Jobs are submitted via Run, which
// blocks until a worker slot is free; each accepted job runs with its
// own Arena, drawn from a sync.Pool and reused across jobs.
type Pool struct {
	sem    chan struct{}
	arenas sync.Pool

	// acceptMu serialises the single conceptual accept-loop point (spec
	// §5 "process-wide mutex to serialise accept on a single listening
	// socket"). alexidx's transport is net/http, which already
	// serialises accept in the runtime's netpoller; acceptMu exists so a
	// caller that wants the same at-most-one-accept-in-flight semantics
	// the source asserts can opt into it explicitly via Accept.
	acceptMu sync.Mutex
}

// New creates a Pool with workerCount concurrent job slots.
func New(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		sem: make(chan struct{}, workerCount),
	}
	p.arenas.New = func() interface{} { return &Arena{} }
	return p
}

// Accept serialises entry the way spec §5 describes the accept-mutex:
// only one caller proceeds past it at a time. The HTTP server's own
// accept loop already does this at the socket level; Accept is exposed
// for the binary-protocol `i=` path, which otherwise bypasses net/http's
// framing.
func (p *Pool) Accept() func() {
	p.acceptMu.Lock()
	return p.acceptMu.Unlock
}

// Run executes fn on a worker slot with a private Arena, blocking until
// a slot is available or ctx is cancelled. The Arena is reset before fn
// runs and returned to the pool unconditionally after, so a panicking
// fn never leaks a dirty arena to the next job — though fn itself must
// never panic past this boundary (spec §7 "the query path never panics
// the worker").
func (p *Pool) Run(ctx context.Context, fn func(*Arena) error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	metrics.WorkersInFlight.Inc()
	defer func() {
		<-p.sem
		metrics.WorkersInFlight.Dec()
	}()

	arena := p.arenas.Get().(*Arena)
	arena.reset()
	defer p.arenas.Put(arena)

	defer func() {
		if r := recover(); r != nil {
			logx.Error("workerpool: recovered panic in job: %v", r)
		}
	}()
	return fn(arena)
}

// InFlight returns the number of job slots currently occupied.
func (p *Pool) InFlight() int { return len(p.sem) }

// Capacity returns W, the configured worker count.
func (p *Pool) Capacity() int { return cap(p.sem) }
