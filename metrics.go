package qutex

import "sync/atomic"

// Metrics is a snapshot of package-level counters, via [Snapshot].
type Metrics struct {
	// Acquisitions counts successful all-or-nothing lock set acquisitions.
	Acquisitions uint64
	// FailedAttempts counts lockvoker runs that ended in backoff.
	FailedAttempts uint64
	// Rotations counts anti-deadlock queue rotations performed by backoff.
	Rotations uint64
	// Wakes counts lockvoker posts: the initial post at invocation and those
	// triggered by release/backoff events.
	Wakes uint64
	// SuppressedWakes counts awaken calls absorbed by the awake flag.
	SuppressedWakes uint64
	// DeadlocksDetected counts same-sequence re-acquisition reports.
	DeadlocksDetected uint64
	// GridlocksDetected counts cross-sequence cycle reports (heuristic or
	// complete stage).
	GridlocksDetected uint64
	// GridlockFalsePositives counts tracked continuations that later
	// acquired their lock sets.
	GridlockFalsePositives uint64
}

// counters holds the live values. Plain atomic counters: the hot paths
// already serialize on the qutex spin lock, so there is no need for
// per-qutex sharding.
var counters struct {
	acquisitions           atomic.Uint64
	failedAttempts         atomic.Uint64
	rotations              atomic.Uint64
	wakes                  atomic.Uint64
	suppressedWakes        atomic.Uint64
	deadlocksDetected      atomic.Uint64
	gridlocksDetected      atomic.Uint64
	gridlockFalsePositives atomic.Uint64
}

// Snapshot returns the current values of the package-level counters.
//
// The fields are read individually, not as one atomic unit; under load the
// snapshot may straddle concurrent updates.
func Snapshot() Metrics {
	return Metrics{
		Acquisitions:           counters.acquisitions.Load(),
		FailedAttempts:         counters.failedAttempts.Load(),
		Rotations:              counters.rotations.Load(),
		Wakes:                  counters.wakes.Load(),
		SuppressedWakes:        counters.suppressedWakes.Load(),
		DeadlocksDetected:      counters.deadlocksDetected.Load(),
		GridlocksDetected:      counters.gridlocksDetected.Load(),
		GridlockFalsePositives: counters.gridlockFalsePositives.Load(),
	}
}
