package qutex

import (
	"sync/atomic"

	floyds "github.com/joeycumines/go-detect-cycle/floyds"
)

// ChainLink is one node of the continuation chain: a record of one
// asynchronous step, pointing at the step that initiated it.
// The chain forms a DAG rooted at application-entry continuations; each
// child keeps its parent reachable, so history walks are always safe.
//
// Concrete links are [NonPosted], [Posted], and [Serialized]; chain walks
// type-switch on [Serialized] rather than probing dynamic type hierarchies,
// which keeps the "examine only serialized ancestors" operation explicit.
type ChainLink interface {
	// Parent returns the caller step's chain link, or nil at a sequence
	// root.
	Parent() ChainLink
}

// Callback pairs the original callback of an asynchronous operation with the
// continuation of the step that supplied it. Carrying the caller's
// continuation is what makes the ancestor chain walkable, which in turn is
// what the deadlock detector and held-lock reconstruction are built on.
//
// Arguments to the original callback are bound by closure; Fn may be nil if
// the caller does not want completion notification.
type Callback struct {
	// Caller is the continuation of the calling step, or nil at a sequence
	// root.
	Caller ChainLink
	// Fn is the original callback.
	Fn func()
}

// continuation is the common state of all chain link variants.
type continuation struct {
	callback Callback
	// err conveys a callee-reported failure to the original caller. It is
	// written by the callee's step and read by the original callback, both
	// of which execute serially on their respective workers, never
	// concurrently with one another.
	err error
}

// Parent returns the caller step's chain link, or nil at a sequence root.
func (c *continuation) Parent() ChainLink { return c.callback.Caller }

// Fail records err for the original caller. A callee that encounters an
// error in the data it was given reports it here rather than panicking
// across a post boundary; the caller reads it via Err after the original
// callback runs.
func (c *continuation) Fail(err error) { c.err = err }

// Err returns the error recorded via Fail, if any.
func (c *continuation) Err() error { return c.err }

// NonPosted is a continuation whose original callback is invoked
// synchronously on whatever thread completes the step. Only valid when the
// original caller either lives on that thread or tolerates synchronous
// completion on an arbitrary thread.
//
// There is deliberately no locked form of NonPosted: locking without posting
// could only be implemented by spinning or sleeping the worker, which would
// forfeit the entire point of spinqueueing. This is a design invariant, not
// a gap.
type NonPosted struct {
	continuation
}

// NewNonPosted creates a non-posted continuation for the given callback.
func NewNonPosted(callback Callback) *NonPosted {
	return &NonPosted{continuation{callback: callback}}
}

// CallOriginal invokes the original callback synchronously on the current
// thread.
func (c *NonPosted) CallOriginal() {
	if c.callback.Fn != nil {
		c.callback.Fn()
	}
}

// Posted is a continuation whose original callback is posted back to the
// caller's thread, guaranteeing the caller observes completion on its own
// worker.
type Posted struct {
	continuation
	caller Thread
}

// NewPosted creates a posted continuation. The original callback will run on
// caller.
func NewPosted(caller Thread, callback Callback) *Posted {
	return &Posted{continuation{callback: callback}, caller}
}

// CallOriginal posts the original callback to the caller's thread. If the
// caller has stopped the callback is discarded.
func (c *Posted) CallOriginal() {
	if c.callback.Fn == nil {
		return
	}
	if err := c.caller.Post(traceCallable(1, c.callback.Fn)); err != nil {
		logger().Debug().
			Err(err).
			Str("thread", c.caller.Name()).
			Log("qutex: original callback discarded, caller thread stopped")
	}
}

// Serialized is a posted continuation that additionally owns a [LockSet] and
// participates in qutex queues. The serialized step's work runs only once
// the entire lock set has been acquired; the original callback runs only
// after the lock set has been released (fully, or explicitly early for
// specific qutexes), so the caller always observes consistent state.
type Serialized struct {
	posted Posted
	locks  *LockSet
	// awake suppresses duplicate posts when multiple qutexes wake this
	// step's lockvoker simultaneously. It is the only atomic visible to the
	// lockvoker protocol.
	awake atomic.Bool
}

// NewSerialized creates a serialized continuation requiring the given
// qutexes, in declaration order. The original callback will run on caller
// after the lock set is released.
//
// The continuation does nothing until [Serialized.Invoke] schedules work
// against it.
func NewSerialized(caller Thread, callback Callback, qutexes ...*Qutex) *Serialized {
	c := &Serialized{posted: Posted{continuation{callback: callback}, caller}}
	c.locks = newLockSet(c, qutexes)
	return c
}

// Parent returns the caller step's chain link, or nil at a sequence root.
func (c *Serialized) Parent() ChainLink { return c.posted.Parent() }

// Fail records err for the original caller. See [continuation.Fail].
func (c *Serialized) Fail(err error) { c.posted.Fail(err) }

// Err returns the error recorded via Fail, if any.
func (c *Serialized) Err() error { return c.posted.Err() }

// Locks returns the continuation's lock set.
func (c *Serialized) Locks() *LockSet { return c.locks }

// CallOriginal releases the lock set, then posts the original callback to
// the caller's thread. Release happens first, unconditionally: downstream
// waiters must be woken even when the caller declined a callback.
func (c *Serialized) CallOriginal() {
	c.locks.release()
	c.posted.CallOriginal()
}

// ReleaseEarly releases q ahead of the step's completion and marks it so the
// final release skips it. It panics (protocol violation) unless the lock set
// is currently fully acquired and lists q.
func (c *Serialized) ReleaseEarly(q *Qutex) {
	c.locks.releaseEarly(q)
}

// allowAwakening re-arms the awake flag; the next qutex wake will post the
// lockvoker again.
func (c *Serialized) allowAwakening() { c.awake.Store(false) }

// acquiredQutexHistory returns the qutexes held along the continuation's
// ancestor chain: every qutex listed by every serialized ancestor,
// excluding the continuation's own lock set (it is the one failing to
// acquire).
func (c *Serialized) acquiredQutexHistory() []*Qutex {
	var held []*Qutex
	walkSerializedAncestors(c.Parent(), func(ancestor *Serialized) bool {
		for i := range ancestor.locks.locks {
			held = append(held, ancestor.locks.locks[i].qutex)
		}
		return true
	})
	return held
}

// walkSerializedAncestors walks the chain from the given link toward the
// root, invoking visit for each serialized link, stopping early if visit
// returns false.
//
// The walk is guarded with a Floyd's cycle detector: the chain is acyclic by
// construction, so observing a cycle means the chain was corrupted, and an
// unguarded walk would never terminate.
func walkSerializedAncestors(from ChainLink, visit func(*Serialized) bool) {
	if from == nil {
		return
	}
	detector := floyds.NewBranchingDetector(from, nil)
	defer func() { detector.Clear() }()
	for link := from; link != nil; {
		if s, ok := link.(*Serialized); ok && !visit(s) {
			return
		}
		next := link.Parent()
		if next == nil {
			return
		}
		nd := detector.Hare(next)
		ok := detector.Ok()
		detector = nd
		if !ok {
			protocolViolation(`walkSerializedAncestors`, ``,
				`continuation ancestor chain contains a cycle`)
		}
		link = next
	}
}
