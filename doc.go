// Package qutex implements a queue-based asynchronous mutex ("qutex") for
// strictly single-threaded, event-loop-driven components that cooperate via
// message passing, together with the continuation and detection machinery
// built around it.
//
// # Architecture
//
// The central primitive is [Qutex], a spinlock-guarded FIFO of waiting
// acquirers combined with an ownership flag. It never blocks a worker: an
// acquirer that cannot take all of its locks simply returns from its worker's
// run queue and is re-posted ("spinqueued") when a qutex event wakes it.
//
// A [Serialized] continuation binds a [LockSet] (the ordered collection of
// qutexes one asynchronous step needs) to the step's caller. Invoking it
// constructs a lockvoker, the callable form of the pending step: the
// lockvoker registers into every qutex's queue, posts itself to the target
// [Thread], and on execution attempts an all-or-nothing acquisition. On
// success it unregisters from all queues and runs the step's work; on
// failure it backs off any partially acquired qutexes and goes dormant,
// remaining in the queues until the next wake.
//
// # Admission and rotation
//
// Acquisition uses a fair-share "top 1/N" rule: a waiter whose lock set has N
// qutexes is admissible at a qutex of queue length L iff it sits outside the
// rearmost L/N entries (a single-lock waiter must be strictly first). On
// backoff, a failed acquirer at the head of a queue is rotated toward
// position N, which breaks the symmetric NxN configuration where every
// participant heads one queue while sitting outside the admissible window of
// another.
//
// # Detection
//
// With debug lock tracking enabled (see [Configure]), two detectors run:
//
//   - Deadlock (same-sequence re-acquisition): at lockvoker construction, the
//     continuation's ancestor chain is walked; if any ancestor step still
//     holds a qutex the new step wants, [Serialized.Invoke] fails with
//     [ErrDeadlockDetected].
//   - Gridlock (cross-sequence cycle): when a timed-out lockvoker goes
//     dormant, it records itself in a global acquisition-history tracker and
//     runs a two-stage check, a pairwise heuristic, then a complete DFS
//     cycle search over the "wants a lock held by" dependency graph.
//
// Detector reports are structured log events (see [SetLogger]). The
// heuristic-stage report and the per-lockvoker gridlock report are rate
// limited per qutex, so a hot backoff path cannot flood the sink with them;
// deadlock reports and the complete stage's cycle reports are not rate
// limited.
//
// # Thread model
//
// The core is written against the [Thread] interface alone: a worker with a
// FIFO of callables, executed serially, plus an identity check. The worker
// subpackage provides a concrete implementation. All qutex bookkeeping is
// guarded by per-qutex spin locks; cross-thread hand-offs are always posts.
package qutex
