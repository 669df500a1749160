package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// Standard errors.
var (
	// ErrStopped is returned when posting to, or running, a worker that has
	// stopped. Posted callables are discarded, never queued, once stop has
	// been signalled.
	ErrStopped = errors.New("worker: worker has stopped")

	// ErrAlreadyRunning is returned when Run is called on a running worker.
	ErrAlreadyRunning = errors.New("worker: worker is already running")

	// ErrReentrantRun is returned when Run is called from the worker itself.
	ErrReentrantRun = errors.New("worker: cannot call Run from within the worker")

	// ErrNilCallable is returned by Post when fn is nil.
	ErrNilCallable = errors.New("worker: nil callable")
)

// Worker is a single cooperative worker: one goroutine draining a FIFO of
// callables. Posted callables execute serially, each to completion; posts
// from one source goroutine preserve submission order.
//
// Instances must be created via [New].
type Worker struct {
	_ [0]func() // prevent copying

	name  string
	state lifecycle

	mu    sync.Mutex
	tasks taskQueue

	// wake is a 1-buffered signal; the non-blocking send in Post dedups
	// wake-ups the same way the loop would otherwise need a pending flag
	// for.
	wake   chan struct{}
	resume chan struct{}
	jolted chan struct{}
	stop   chan struct{}
	done   chan struct{}

	joltOnce sync.Once
	stopOnce sync.Once

	// gid is the run-loop goroutine's ID while running, 0 otherwise.
	gid atomic.Uint64
}

// options holds configuration for New.
type options struct {
	joltGate bool
}

// Option configures a Worker.
type Option interface {
	apply(*options)
}

type optionImpl struct {
	applyFunc func(*options)
}

func (o *optionImpl) apply(opts *options) { o.applyFunc(opts) }

// WithJoltGate creates the worker gated: its run loop will not process
// callables until [Worker.Jolt] is called. This lets workers be constructed
// (and posted to) during global initialization without racing it.
func WithJoltGate() Option {
	return &optionImpl{func(o *options) { o.joltGate = true }}
}

// New creates a worker. It does not start a goroutine; call [Worker.Run],
// typically as `go w.Run(ctx)`.
func New(name string, opts ...Option) *Worker {
	var cfg options
	for _, o := range opts {
		if o != nil {
			o.apply(&cfg)
		}
	}

	w := &Worker{
		name:   name,
		wake:   make(chan struct{}, 1),
		resume: make(chan struct{}, 1),
		jolted: make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if !cfg.joltGate {
		close(w.jolted)
	}
	return w
}

// Name identifies the worker.
func (w *Worker) Name() string { return w.name }

// State returns the worker's lifecycle state.
func (w *Worker) State() State { return w.state.load() }

// OnThread reports whether the caller is executing on this worker, i.e.
// inside a callable posted to it.
func (w *Worker) OnThread() bool {
	gid := w.gid.Load()
	return gid != 0 && gid == goroutineID()
}

// Post enqueues fn to the worker's FIFO. Safe to call from any goroutine,
// including from callables running on this or other workers. Returns
// ErrStopped (discarding fn) once stop has been signalled.
func (w *Worker) Post(fn func()) error {
	if fn == nil {
		return ErrNilCallable
	}

	select {
	case <-w.stop:
		return ErrStopped
	default:
	}

	w.mu.Lock()
	w.tasks.push(fn)
	w.mu.Unlock()

	w.wakeUp()
	return nil
}

// Len returns the number of queued callables.
func (w *Worker) Len() int {
	w.mu.Lock()
	n := w.tasks.len()
	w.mu.Unlock()
	return n
}

func (w *Worker) wakeUp() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Jolt releases a worker created with [WithJoltGate] into its run loop.
// Idempotent; a no-op for ungated workers.
func (w *Worker) Jolt() {
	w.joltOnce.Do(func() { close(w.jolted) })
}

// Pause requests the worker block after the currently queued work reaches
// the pause point. The pause is applied on-thread: it is posted like any
// other callable, and callables posted before it still run first. done, if
// non-nil, is invoked on the worker immediately before it blocks (the worker
// cannot invoke anything afterwards until resumed).
func (w *Worker) Pause(done func()) error {
	return w.Post(func() {
		if !w.state.transition(StateRunning, StatePaused) {
			return
		}
		if done != nil {
			done()
		}
	})
}

// Resume unblocks a paused worker. done, if non-nil, is posted to the worker
// and runs once the loop is processing again. A no-op if not paused.
func (w *Worker) Resume(done func()) error {
	if !w.state.transition(StatePaused, StateRunning) {
		return nil
	}
	select {
	case w.resume <- struct{}{}:
	default:
	}
	if done != nil {
		return w.Post(done)
	}
	return nil
}

// Stop signals termination. A running worker drains already-queued callables
// before its run loop exits; a worker stopped before Run, or while still held
// at its jolt gate, exits without running them. Subsequent posts are
// discarded with ErrStopped. Stop does not wait; use [Worker.Await].
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		for {
			s := w.state.load()
			if s == StateStopping || s == StateStopped {
				break
			}
			if w.state.transition(s, StateStopping) {
				break
			}
		}
		close(w.stop)
		w.wakeUp()
	})
}

// Await blocks until the worker's run loop has exited, or ctx expires.
func (w *Worker) Await(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run runs the worker and blocks until it stops, via [Worker.Stop] or ctx
// cancellation. To run in a separate goroutine use `go w.Run(ctx)`.
func (w *Worker) Run(ctx context.Context) error {
	if w.OnThread() {
		return ErrReentrantRun
	}
	if !w.state.transition(StateCreated, StateRunning) {
		switch w.state.load() {
		case StateStopping, StateStopped:
			return ErrStopped
		default:
			return ErrAlreadyRunning
		}
	}

	defer close(w.done)
	defer w.state.store(StateStopped)

	w.gid.Store(goroutineID())
	defer w.gid.Store(0)

	// Jolt gate: hold here until released, stopped, or cancelled.
	select {
	case <-w.jolted:
	case <-w.stop:
		return nil
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	}

	for {
		if err := ctx.Err(); err != nil {
			w.Stop()
			w.drain()
			return err
		}
		select {
		case <-w.stop:
			w.drain()
			return nil
		default:
		}

		if w.state.load() == StatePaused {
			select {
			case <-w.resume:
			case <-w.stop:
			case <-ctx.Done():
				w.Stop()
			}
			continue
		}

		if fn, ok := w.pop(); ok {
			w.execute(fn)
			continue
		}

		select {
		case <-w.wake:
		case <-w.stop:
		case <-ctx.Done():
			w.Stop()
		}
	}
}

func (w *Worker) pop() (func(), bool) {
	w.mu.Lock()
	fn, ok := w.tasks.pop()
	w.mu.Unlock()
	return fn, ok
}

// requiredEmptyChecks is the number of consecutive empty polls drain
// requires before concluding no racing post remains in flight.
const requiredEmptyChecks = 3

// drain runs all remaining queued callables. Post rejects once stop is
// signalled, so the drain terminates; the repeated empty checks catch a post
// that passed its stop check just before stop was signalled.
func (w *Worker) drain() {
	for empty := 0; empty < requiredEmptyChecks; {
		if fn, ok := w.pop(); ok {
			w.execute(fn)
			empty = 0
			continue
		}
		empty++
		runtime.Gosched()
	}
}

// execute runs one callable with panic recovery: a panicking callable must
// not take down the worker, or every other queued callable is lost with it.
func (w *Worker) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(w.name, r)
		}
	}()
	fn()
}
