package qutex

// historyEntry records, for one gridlock-suspect continuation, the qutex it
// wants but cannot acquire (the first acquisition failure of the timed-out
// attempt) and the qutexes held along its ancestor chain at registration
// time.
type historyEntry struct {
	wanted *Qutex
	held   []*Qutex
}

// AcquisitionHistoryTracker is the global table of continuations suspected
// of being gridlocked. A lockvoker that is still failing past the configured
// timeout registers itself here; later-arriving suspects analyze their
// predecessors' entries, which is how multi-sequence cycles become visible
// to any single participant.
//
// Entries are removed when a suspect later acquires its lock set (false
// positive), or persist until program teardown.
//
// The table is guarded by a [SpinLock], never a [Qutex]: it is reached from
// inside the lockvoker's own acquisition path, and serializing it with the
// primitive under test would close a cycle in the primitive's bootstrap.
type AcquisitionHistoryTracker struct {
	lock    SpinLock
	entries map[*Serialized]historyEntry
}

// sharedTracker is the process-wide instance.
var sharedTracker = &AcquisitionHistoryTracker{
	entries: make(map[*Serialized]historyEntry),
}

// Tracker returns the process-wide acquisition-history tracker.
func Tracker() *AcquisitionHistoryTracker { return sharedTracker }

// addIfNotExists inserts an entry for cont; an existing entry is left
// untouched (the first registration's view stands until the suspect either
// progresses or the program ends).
func (t *AcquisitionHistoryTracker) addIfNotExists(cont *Serialized, wanted *Qutex, held []*Qutex) {
	t.lock.Acquire()
	if _, ok := t.entries[cont]; !ok {
		t.entries[cont] = historyEntry{wanted: wanted, held: held}
	}
	t.lock.Release()
}

// remove deletes cont's entry, reporting whether it was present.
func (t *AcquisitionHistoryTracker) remove(cont *Serialized) bool {
	t.lock.Acquire()
	_, ok := t.entries[cont]
	if ok {
		delete(t.entries, cont)
	}
	t.lock.Release()
	return ok
}

// size returns the number of tracked suspects.
func (t *AcquisitionHistoryTracker) size() int {
	t.lock.Acquire()
	n := len(t.entries)
	t.lock.Release()
	return n
}

// clear empties the table. Test support.
func (t *AcquisitionHistoryTracker) clear() {
	t.lock.Acquire()
	clear(t.entries)
	t.lock.Release()
}

// heuristicGridlockCheck is the cheap first stage: scan every other entry
// for one whose held list contains the qutex current wants. Two timed-out
// sequences where one holds what the other wants is, heuristically, a
// likely gridlock; it is not algorithmically complete (circularity is only
// established by the second stage), but it catches the common two-sequence
// case at O(entries x average held).
func (t *AcquisitionHistoryTracker) heuristicGridlockCheck(wanted *Qutex, current *Serialized) bool {
	t.lock.Acquire()

	for cont, entry := range t.entries {
		if cont == current {
			continue
		}
		for _, held := range entry.held {
			if held != wanted {
				continue
			}
			t.lock.Release()

			if allowReport(wanted.Name()) {
				logger().Err().
					Str("qutex", wanted.Name()).
					Str("continuation", contID(current)).
					Str("holder", contID(cont)).
					Log("qutex: likely gridlock: wanted qutex is held by another stalled sequence")
			}
			return true
		}
	}

	t.lock.Release()
	return false
}

// completeGridlockCheck is the algorithmically complete second stage: build
// the dependency graph over all tracked suspects and search it for cycles.
// Without this stage, a long delay upstream of a lock holder would be
// indistinguishable from a true circular wait; only a closed cycle means no
// participant can ever progress.
//
// Each cycle found is reported edge by edge with the qutex names on the
// path.
func (t *AcquisitionHistoryTracker) completeGridlockCheck() bool {
	t.lock.Acquire()

	graph := t.generateGraphLocked()
	if !graph.hasCycles() {
		t.lock.Release()
		return false
	}

	cycles := graph.findCycles()
	for _, c := range cycles {
		for i := 0; i+1 < len(c); i++ {
			t.reportDependencyLocked(c[i], c[i+1])
		}
	}

	t.lock.Release()

	logger().Err().
		Int("cycles", len(cycles)).
		Log("qutex: gridlock confirmed: circular dependencies in lock wait graph")
	return true
}

// reportDependencyLocked logs one edge of a cycle. Caller holds the lock.
func (t *AcquisitionHistoryTracker) reportDependencyLocked(from, to *Serialized) {
	b := logger().Err().
		Str("continuation", contID(from)).
		Str("holder", contID(to))
	if entry, ok := t.entries[from]; ok {
		b = b.Str("wants", entry.wanted.Name())
	}
	b.Log("qutex: gridlock cycle edge")
}

// GenerateGraph builds the dependency graph over the current entries: nodes
// are tracked continuations, and an edge A -> B means A's wanted qutex is in
// B's held list. The graph is a transient analysis artifact; a cycle that
// has not yet been reported to the tracker will not appear in it.
func (t *AcquisitionHistoryTracker) GenerateGraph() *DependencyGraph {
	t.lock.Acquire()
	g := t.generateGraphLocked()
	t.lock.Release()
	return g
}

// generateGraphLocked builds the graph. Caller holds the lock.
func (t *AcquisitionHistoryTracker) generateGraphLocked() *DependencyGraph {
	g := newDependencyGraph()

	for cont := range t.entries {
		g.addNode(cont)
	}

	for cont, entry := range t.entries {
		for other, otherEntry := range t.entries {
			if cont == other {
				continue
			}
			for _, held := range otherEntry.held {
				if held == entry.wanted {
					g.addEdge(cont, other)
					break
				}
			}
		}
	}

	return g
}
