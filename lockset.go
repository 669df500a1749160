package qutex

// lockUsage tracks one qutex a lock set must acquire, together with the
// position token of the owning lockvoker in that qutex's queue and whether
// the qutex has been released ahead of the set's final release.
type lockUsage struct {
	qutex    *Qutex
	pos      *waiterPos
	released bool
}

// LockSet is the ordered collection of qutexes one serialized step needs,
// acquired all-or-nothing. It is owned exclusively by its [Serialized]
// continuation and moves through the states initial, registered,
// all-acquired, then released; a released set may not be reused.
//
// A LockSet's methods are driven by the lockvoker protocol on the step's
// target thread; they are not for concurrent use.
type LockSet struct {
	cont        *Serialized
	locks       []lockUsage
	registered  bool
	allAcquired bool
}

// newLockSet creates the lock set for cont over the given qutexes, in
// declaration order. Position tokens are filled in during registration.
func newLockSet(cont *Serialized, qutexes []*Qutex) *LockSet {
	s := &LockSet{cont: cont, locks: make([]lockUsage, 0, len(qutexes))}
	for _, q := range qutexes {
		s.locks = append(s.locks, lockUsage{qutex: q})
	}
	return s
}

// Size returns the number of qutexes in the set.
func (s *LockSet) Size() int { return len(s.locks) }

// Qutexes returns the set's qutexes in declaration order.
func (s *LockSet) Qutexes() []*Qutex {
	out := make([]*Qutex, len(s.locks))
	for i := range s.locks {
		out[i] = s.locks[i].qutex
	}
	return out
}

// usage returns the usage record for q, or nil if the set does not list q.
func (s *LockSet) usage(q *Qutex) *lockUsage {
	for i := range s.locks {
		if s.locks[i].qutex == q {
			return &s.locks[i]
		}
	}
	return nil
}

// contains reports whether the set lists q.
func (s *LockSet) contains(q *Qutex) bool { return s.usage(q) != nil }

// registerInQueues registers lv at the tail of every qutex's queue, in
// declaration order, storing the returned position tokens. Registration must
// precede any acquisition attempt: the top-1/N admission rule is computed
// against the queue the acquirer occupies.
//
// There is no unregistration on failure. A lockvoker that cannot acquire its
// set stays in every queue until it eventually succeeds; the wake chain
// depends on its continued presence.
func (s *LockSet) registerInQueues(lv *lockvoker) {
	for i := range s.locks {
		s.locks[i].pos = s.locks[i].qutex.registerInQueue(lv)
	}
	s.registered = true
}

// unregisterFromQueues removes the lockvoker from every qutex's queue.
// Called immediately after a successful all-acquired transition: queue
// length and position feed directly into other waiters' admission windows,
// and the step may hold its locks across genuinely slow operations.
// (Ownership alone keeps the qutexes unavailable.)
func (s *LockSet) unregisterFromQueues() {
	if !s.registered {
		protocolViolation(`unregisterFromQueues`, ``, `lock set not registered in qutex queues`)
	}
	for i := range s.locks {
		s.locks[i].qutex.unregisterFromQueue(s.locks[i].pos, true)
	}
}

// tryAcquireOrBackoff attempts to acquire every qutex in declaration order
// on behalf of lv. On the first failure it backs off each qutex acquired in
// this attempt, in reverse order, and returns the qutex that failed. On full
// success it marks the set all-acquired.
//
// The all-or-nothing contract: on a false return lv holds none of the set's
// qutexes; on a true return it holds all of them.
func (s *LockSet) tryAcquireOrBackoff(lv *lockvoker) (ok bool, firstFailed *Qutex) {
	if !s.registered {
		protocolViolation(`tryAcquireOrBackoff`, ``, `lock set not registered in qutex queues`)
	}
	if s.allAcquired {
		protocolViolation(`tryAcquireOrBackoff`, ``, `lock set already fully acquired`)
	}

	nRequired := len(s.locks)
	nAcquired := 0
	for i := range s.locks {
		if !s.locks[i].qutex.tryAcquire(lv, nRequired) {
			firstFailed = s.locks[i].qutex
			break
		}
		nAcquired++
	}

	if nAcquired < nRequired {
		for i := nAcquired - 1; i >= 0; i-- {
			s.locks[i].qutex.backoff(lv, nRequired)
		}
		return false, firstFailed
	}

	s.allAcquired = true
	return true, nil
}

// release releases every qutex not already released early, in declaration
// order, and clears the all-acquired state. Release on a set that is not
// registered or not fully acquired is a protocol violation.
func (s *LockSet) release() {
	if !s.registered {
		protocolViolation(`release`, ``, `lock set not registered in qutex queues`)
	}
	if !s.allAcquired {
		protocolViolation(`release`, ``, `lock set not fully acquired`)
	}

	for i := range s.locks {
		if s.locks[i].released {
			continue
		}
		s.locks[i].qutex.release()
	}

	s.allAcquired = false
}

// releaseEarly releases q ahead of the final release and marks it so release
// skips it. A repeat early release of the same qutex is a no-op.
func (s *LockSet) releaseEarly(q *Qutex) {
	if !s.allAcquired {
		protocolViolation(`releaseEarly`, q.Name(), `lock set not fully acquired`)
	}

	u := s.usage(q)
	if u == nil {
		protocolViolation(`releaseEarly`, q.Name(), `qutex not in this lock set`)
	}

	if !u.released {
		u.qutex.release()
		u.released = true
	}
}
