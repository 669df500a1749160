package qutex

// Qutex is a queue-based asynchronous mutex: a spin-lock-guarded FIFO of
// waiting lockvokers plus an ownership flag. It admits acquirers via the
// top-1/N rule and never blocks a worker thread; failed acquirers are
// re-posted to their workers by release/backoff events.
//
// A Qutex is created by [New] (typically statically, or by an owning
// component) and lives until program teardown. All methods are safe for
// concurrent use; each holds the qutex's spin lock while it reads or changes
// the queue and ownership state, so those operations on a given qutex are
// strictly serialized. Wakes are posted after the spin lock is released.
type Qutex struct {
	name  string
	lock  SpinLock
	queue waiterQueue
	owned bool
	// owner is the lockvoker that owns the qutex, recorded only with debug
	// lock tracking enabled. Diagnostic state, never consulted by the
	// admission protocol.
	owner *lockvoker
}

// New creates a qutex. The name appears in protocol errors and detector
// reports.
func New(name string) *Qutex {
	return &Qutex{name: name}
}

// Name returns the qutex's name.
func (q *Qutex) Name() string { return q.name }

// Owner returns the continuation whose lockvoker currently owns the qutex,
// or nil. Only recorded with debug lock tracking enabled; diagnostic use
// only, the value may be stale by the time it is returned.
func (q *Qutex) Owner() *Serialized {
	q.lock.Acquire()
	defer q.lock.Release()
	if q.owner == nil {
		return nil
	}
	return q.owner.cont
}

// registerInQueue appends lv to the queue, returning a stable position token
// that remains valid across rotations.
func (q *Qutex) registerInQueue(lv *lockvoker) *waiterPos {
	q.lock.Acquire()
	pos := q.queue.pushBack(lv)
	q.lock.Release()
	return pos
}

// unregisterFromQueue removes the entry at pos. With shouldLock false the
// caller must already hold the qutex's spin lock.
func (q *Qutex) unregisterFromQueue(pos *waiterPos, shouldLock bool) {
	if shouldLock {
		q.lock.Acquire()
		q.queue.remove(pos)
		q.lock.Release()
	} else {
		q.queue.remove(pos)
	}
}

// tryAcquire attempts to acquire the qutex on behalf of lv, whose lock set
// requires nRequired qutexes in total.
//
// Admission rule: with queue length L, the rear window is L/nRequired
// (integer division). A single entry, or a rear window below one, succeeds
// immediately. A single-lock acquirer must be at the head. A multi-lock
// acquirer succeeds iff it is NOT within the rearmost L/nRequired entries;
// the wider window offsets the lower probability that all of its qutexes
// line up at once.
//
// lv must be registered in the queue; tryAcquire on an empty queue is a
// protocol violation (registration always precedes acquisition, because the
// admission rule is computed against the queue the acquirer occupies).
func (q *Qutex) tryAcquire(lv *lockvoker, nRequired int) bool {
	q.lock.Acquire()

	n := q.queue.len()
	if n < 1 {
		q.lock.Release()
		protocolViolation(`tryAcquire`, q.name, `called on empty queue`)
	}

	if q.owned {
		q.lock.Release()
		return false
	}

	rearWindow := n / nRequired

	if n == 1 || rearWindow < 1 {
		q.setOwnedLocked(lv)
		q.lock.Release()
		return true
	}

	if nRequired == 1 {
		ok := q.queue.front().is(lv)
		if ok {
			q.setOwnedLocked(lv)
		}
		q.lock.Release()
		return ok
	}

	if q.queue.containsInRear(lv, rearWindow) {
		q.lock.Release()
		return false
	}

	q.setOwnedLocked(lv)
	q.lock.Release()
	return true
}

// setOwnedLocked marks the qutex owned by lv. Caller holds the spin lock.
func (q *Qutex) setOwnedLocked(lv *lockvoker) {
	q.owned = true
	if cfg().debugLockTracking {
		q.owner = lv
	}
}

// backoff is called on each qutex lv acquired during a failed all-or-nothing
// attempt. It clears the ownership taken in that attempt, rotates the queue
// when lv is at the head (see below), and wakes the new head.
//
// Rotation breaks the symmetric NxN stall: with queues like
// q1=[A,B], q2=[B,A] and both acquirers requiring both qutexes, each wakeup
// reproduces the same state - each acquirer takes the qutex it heads and
// fails the other's rear window. Moving the failed head toward position
// nRequired reorders the queues so that one of them can line up. With queue
// length at most nRequired the failed head is spliced to the absolute tail.
//
// The new head is always woken (unless it is lv itself, which only happens
// in a single-entry queue): backoff means the caller failed its whole lock
// set, and a waiter that was passed over via the top-1/N window would
// otherwise never be posted again.
//
// Protocol violations: empty queue; lv at the head with nRequired == 1 (a
// single-lock acquirer at the head always succeeds); lv still at the head
// after rotation with more than one entry queued.
func (q *Qutex) backoff(lv *lockvoker, nRequired int) {
	q.lock.Acquire()

	n := q.queue.len()
	if n < 1 {
		q.lock.Release()
		protocolViolation(`backoff`, q.name, `called on empty queue`)
	}

	atFront := q.queue.front().is(lv)
	if atFront && nRequired == 1 {
		q.lock.Release()
		protocolViolation(`backoff`, q.name,
			`failed acquirer at front of queue with a single-lock set; it should have succeeded`)
	}

	if atFront && n > 1 {
		// With more entries than the lock set size, the mark sits at index
		// nRequired (counting the moving head); otherwise rotateFront
		// splices to the absolute tail.
		q.queue.rotateFront(nRequired)
		counters.rotations.Add(1)
	}

	q.owned = false
	q.owner = nil
	newFront := q.queue.front()

	q.lock.Release()

	if newFront.is(lv) && n > 1 {
		protocolViolation(`backoff`, q.name,
			`failed acquirer still at front of queue after rotation`)
	}

	if n > 1 {
		newFront.awaken(false)
	}
}

// release releases the qutex and wakes the head waiter, if any. The head is
// woken unconditionally, not only when the releaser was at the head: an
// acquirer may have taken the qutex from inside the top-1/N window, and the
// waiter it overtook would otherwise sleep forever.
//
// Releasing an unowned qutex is a protocol violation.
func (q *Qutex) release() {
	q.lock.Acquire()

	if !q.owned || (cfg().debugLockTracking && q.owner == nil) {
		q.lock.Release()
		protocolViolation(`release`, q.name, `called on unowned qutex`)
	}

	q.owned = false
	q.owner = nil

	// The releaser unregistered on acquisition, so the queue may be empty.
	front := q.queue.front()
	q.lock.Release()

	if front != nil {
		front.awaken(false)
	}
}
