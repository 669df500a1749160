package qutex

import (
	"fmt"
	"time"
)

// lockvoker is the callable form of a pending serialized step: it wraps the
// step's work with the acquisition of the step's lock set. When run on its
// target thread it either acquires everything and invokes the work, or backs
// off and returns quietly, dropping out of the thread's run queue while
// remaining in every qutex queue ("spinqueueing"). Qutex release/backoff
// events re-post it.
//
// One lockvoker exists per invoked serialized continuation. Its identity IS
// that continuation: the references held by qutex queues and the posting
// queue all serve the same logical acquirer, and equality is defined
// accordingly (see is).
type lockvoker struct {
	cont   *Serialized
	target Thread
	work   func()
	// created is recorded with debug lock tracking enabled; lockvoker age
	// past the configured gridlock timeout is what arms the detectors.
	created time.Time
}

// is reports whether other serves the same serialized continuation. Never
// compare lockvokers by reference: queue entries and posted callables may in
// principle be distinct handles for the same logical acquirer.
func (lv *lockvoker) is(other *lockvoker) bool {
	return other != nil && lv.cont == other.cont
}

// Invoke schedules work against the continuation: it constructs the
// lockvoker, registers it into every qutex queue of the lock set, and posts
// it to target. The work runs on target once the entire lock set is
// acquired, and is responsible for eventually completing the step (normally
// via [Serialized.CallOriginal], which releases the lock set).
//
// With debug lock tracking enabled, the continuation's ancestor chain is
// first checked for same-sequence re-acquisition: if an ancestor step's lock
// set intersects this one, the sequence would wait on itself forever, and
// Invoke fails with [ErrDeadlockDetected] without scheduling anything.
//
// Invoke must be called at most once per continuation.
func (c *Serialized) Invoke(target Thread, work func()) error {
	lv := &lockvoker{cont: c, target: target, work: work}

	if cfg().debugLockTracking {
		lv.created = time.Now()
		if dup := lv.traceHistoryForDeadlock(); dup != nil {
			counters.deadlocksDetected.Add(1)
			logger().Err().
				Str("qutex", dup.Name()).
				Str("continuation", contID(c)).
				Log("qutex: deadlock: step would re-acquire a qutex held by an ancestor")
			return fmt.Errorf("%w: qutex %q is already held along the continuation's ancestor chain",
				ErrDeadlockDetected, dup.Name())
		}
	}

	lv.firstWake()
	return nil
}

// firstWake registers the lockvoker in its qutex queues and posts it for the
// first time. The awake flag is set before registering so that none of the
// just-registered queues can wake a duplicate copy onto the target; the
// forced awaken then guarantees at least one scheduling despite the flag.
func (lv *lockvoker) firstWake() {
	lv.cont.awake.Store(true)
	lv.cont.locks.registerInQueues(lv)
	lv.awaken(true)
}

// awaken posts the lockvoker to its target thread. The awake flag suppresses
// duplicate posts when multiple qutexes release simultaneously: if it was
// already set and force is false, an existing posted copy will reach the
// acquisition attempt, and there is nothing to do. Posts to a stopped target
// are discarded; the handle stays queued until program teardown.
func (lv *lockvoker) awaken(force bool) {
	if lv.cont.awake.Swap(true) && !force {
		counters.suppressedWakes.Add(1)
		return
	}
	counters.wakes.Add(1)
	if err := lv.target.Post(traceCallable(1, lv.run)); err != nil {
		logger().Debug().
			Err(err).
			Str("thread", lv.target.Name()).
			Log("qutex: lockvoker wake discarded, target thread stopped")
	}
}

// run is the posted callable: one acquisition attempt.
func (lv *lockvoker) run() {
	if !lv.target.OnThread() {
		panic(fmt.Errorf("%w: target %q", ErrNotOnTargetThread, lv.target.Name()))
	}

	// Evaluated before the attempt so the diagnosis reflects the age at
	// entry, not time burnt inside the attempt itself.
	deadlockLikely := lv.timedOut()
	gridlockLikely := deadlockLikely

	ok, firstFailed := lv.cont.locks.tryAcquireOrBackoff(lv)
	if !ok {
		counters.failedAttempts.Add(1)
		// Dormant: from here the lockvoker is absent from its thread's run
		// queue, and only a qutex event will post it again. Re-arm first;
		// the detectors below are advisory and must not delay wakes.
		lv.cont.allowAwakening()
		if !deadlockLikely && !gridlockLikely {
			return
		}
		lv.diagnoseStall(firstFailed, gridlockLikely)
		return
	}

	// Free the queue slots immediately: queue length and position feed into
	// every other waiter's admission window, and this step may hold its
	// locks across genuinely slow operations.
	lv.cont.locks.unregisterFromQueues()
	counters.acquisitions.Add(1)

	if gridlockLikely && cfg().debugLockTracking {
		// The continuation was registered as a gridlock suspect but went on
		// to acquire everything: a false positive caused by a timed delay
		// or long-running operation upstream.
		if sharedTracker.remove(lv.cont) {
			counters.gridlockFalsePositives.Add(1)
			logger().Warning().
				Str("continuation", contID(lv.cont)).
				Log("qutex: false positive gridlock suspect acquired its lock set")
		}
	}

	lv.work()
}

// timedOut reports whether the lockvoker's age exceeds the configured
// gridlock timeout. Always false without debug lock tracking.
func (lv *lockvoker) timedOut() bool {
	c := cfg()
	if !c.debugLockTracking || lv.created.IsZero() {
		return false
	}
	return time.Since(lv.created) >= c.gridlockTimeout
}

// diagnoseStall runs the detectors after a timed-out failed attempt. Purely
// advisory: it affects logs and counters, never acquisition behavior.
func (lv *lockvoker) diagnoseStall(firstFailed *Qutex, gridlockLikely bool) {
	if !cfg().debugLockTracking || firstFailed == nil {
		return
	}

	isDeadlock := lv.traceHistoryForDeadlockOn(firstFailed)

	var heuristic, complete bool
	if gridlockLikely {
		held := lv.cont.acquiredQutexHistory()
		sharedTracker.addIfNotExists(lv.cont, firstFailed, held)
		heuristic = sharedTracker.heuristicGridlockCheck(firstFailed, lv.cont)
		if heuristic {
			complete = sharedTracker.completeGridlockCheck()
		}
	}
	isGridlock := heuristic || complete

	if !isDeadlock && !isGridlock {
		return
	}

	age := time.Since(lv.created)
	if isDeadlock {
		counters.deadlocksDetected.Add(1)
		logger().Err().
			Str("qutex", firstFailed.Name()).
			Str("continuation", contID(lv.cont)).
			Dur("waiting", age).
			Log("qutex: deadlock: wanted qutex is held along this sequence's ancestor chain")
	}
	if isGridlock {
		counters.gridlocksDetected.Add(1)
		if allowReport(firstFailed.Name()) {
			logger().Err().
				Str("qutex", firstFailed.Name()).
				Str("continuation", contID(lv.cont)).
				Dur("waiting", age).
				Bool("confirmedCycle", complete).
				Log("qutex: gridlock: circular wait across sequences")
		}
	}
}

// traceHistoryForDeadlock checks every qutex of the lock set against the
// ancestor chain, returning the first qutex already held by an ancestor
// step, or nil.
func (lv *lockvoker) traceHistoryForDeadlock() *Qutex {
	for _, q := range lv.cont.locks.Qutexes() {
		if lv.traceHistoryForDeadlockOn(q) {
			return q
		}
	}
	return nil
}

// traceHistoryForDeadlockOn reports whether q appears in the lock set of any
// serialized ancestor of this lockvoker's continuation. The continuation's
// own lock set is excluded: it necessarily contains q.
func (lv *lockvoker) traceHistoryForDeadlockOn(q *Qutex) (found bool) {
	walkSerializedAncestors(lv.cont.Parent(), func(ancestor *Serialized) bool {
		if ancestor.locks.contains(q) {
			found = true
			return false
		}
		return true
	})
	return
}

// contID renders a continuation's identity for diagnostics.
func contID(c *Serialized) string {
	return fmt.Sprintf("%p", c)
}
