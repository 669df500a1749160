package qutex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// queueOrder renders the queue front-to-back using the provided labels.
func queueOrder(q *waiterQueue, labels map[*lockvoker]string) []string {
	var out []string
	for e := q.frontElement(); e != nil; e = e.Next() {
		out = append(out, labels[e.Value.(*lockvoker)])
	}
	return out
}

func newLabelledQueue(t *testing.T, n int) (*waiterQueue, []*lockvoker, map[*lockvoker]string) {
	t.Helper()
	th := newManualThread("queue-test")
	q := &waiterQueue{}
	lvs := make([]*lockvoker, n)
	labels := make(map[*lockvoker]string, n)
	for i := range lvs {
		lvs[i] = newTestLockvoker(th)
		labels[lvs[i]] = string(rune('A' + i))
		q.pushBack(lvs[i])
	}
	return q, lvs, labels
}

func TestWaiterQueue_PushFrontRemove(t *testing.T) {
	q, lvs, labels := newLabelledQueue(t, 3)

	require.Equal(t, 3, q.len())
	require.Equal(t, []string{"A", "B", "C"}, queueOrder(q, labels))
	require.True(t, q.front().is(lvs[0]))

	// remove by stable position: middle entry
	mid := q.at(1)
	q.remove(mid)
	require.Equal(t, []string{"A", "C"}, queueOrder(q, labels))
	require.Equal(t, 2, q.len())
}

func TestWaiterQueue_ContainsInRear(t *testing.T) {
	q, lvs, _ := newLabelledQueue(t, 4)

	// rear window of 1: only D
	require.True(t, q.containsInRear(lvs[3], 1))
	require.False(t, q.containsInRear(lvs[2], 1))

	// rear window of 2: C and D
	require.True(t, q.containsInRear(lvs[2], 2))
	require.False(t, q.containsInRear(lvs[1], 2))

	// window larger than the queue scans everything
	require.True(t, q.containsInRear(lvs[0], 10))
}

func TestWaiterQueue_RotateFront(t *testing.T) {
	t.Run("markWithinQueue", func(t *testing.T) {
		// [A,B,C,D,E], mark index 2: A lands before C.
		q, _, labels := newLabelledQueue(t, 5)
		q.rotateFront(2)
		require.Equal(t, []string{"B", "A", "C", "D", "E"}, queueOrder(q, labels))
	})

	t.Run("markOutOfRange", func(t *testing.T) {
		// [A,B], mark index 2 out of range: A splices to the tail.
		q, _, labels := newLabelledQueue(t, 2)
		q.rotateFront(2)
		require.Equal(t, []string{"B", "A"}, queueOrder(q, labels))
	})

	t.Run("positionTokensSurviveRotation", func(t *testing.T) {
		q, lvs, labels := newLabelledQueue(t, 4)
		posA := q.frontElement()
		q.rotateFront(2)
		require.Equal(t, []string{"B", "A", "C", "D"}, queueOrder(q, labels))

		// The token taken before the rotation still locates A.
		require.Same(t, lvs[0], posA.Value.(*lockvoker))
		q.remove(posA)
		require.Equal(t, []string{"B", "C", "D"}, queueOrder(q, labels))
	})

	t.Run("emptyQueueNoop", func(t *testing.T) {
		q := &waiterQueue{}
		q.rotateFront(3)
		require.Equal(t, 0, q.len())
	})
}
