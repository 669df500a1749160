package qutex

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNonPosted_CallOriginal(t *testing.T) {
	var called bool
	c := NewNonPosted(Callback{Fn: func() { called = true }})
	c.CallOriginal()
	require.True(t, called, "non-posted callback runs synchronously")

	// nil callback is fine
	NewNonPosted(Callback{}).CallOriginal()
}

func TestPosted_CallOriginal(t *testing.T) {
	th := newManualThread("caller")
	var called bool
	c := NewPosted(th, Callback{Fn: func() { called = true }})

	c.CallOriginal()
	require.False(t, called, "posted callback must not run synchronously")
	require.Equal(t, 1, th.posts)

	th.run(t, 10)
	require.True(t, called)
}

func TestPosted_CallOriginal_StoppedCaller(t *testing.T) {
	th := newManualThread("caller")
	th.stopped = true
	c := NewPosted(th, Callback{Fn: func() { t.Fatal("must not run") }})
	c.CallOriginal() // discarded, no panic
	require.Zero(t, th.posts)
}

func TestContinuation_FailErr(t *testing.T) {
	th := newManualThread("caller")

	c := NewPosted(th, Callback{})
	require.NoError(t, c.Err())
	c.Fail(io.ErrUnexpectedEOF)
	require.True(t, errors.Is(c.Err(), io.ErrUnexpectedEOF))

	s := NewSerialized(th, Callback{})
	s.Fail(io.EOF)
	require.True(t, errors.Is(s.Err(), io.EOF))
}

func TestChainLink_Parent(t *testing.T) {
	th := newManualThread("t")

	root := NewSerialized(th, Callback{}, New("qr"))
	mid := NewPosted(th, Callback{Caller: root})
	leaf := NewSerialized(th, Callback{Caller: mid}, New("ql"))

	require.Same(t, mid, leaf.Parent().(*Posted))
	require.Same(t, root, mid.Parent().(*Serialized))
	require.Nil(t, root.Parent())
}

func TestWalkSerializedAncestors(t *testing.T) {
	th := newManualThread("t")

	qr, qm := New("qr"), New("qm")
	root := NewSerialized(th, Callback{}, qr)
	posted := NewPosted(th, Callback{Caller: root})
	mid := NewSerialized(th, Callback{Caller: posted}, qm)
	nonPosted := NewNonPosted(Callback{Caller: mid})
	leaf := NewSerialized(th, Callback{Caller: nonPosted})

	var seen []*Serialized
	walkSerializedAncestors(leaf.Parent(), func(s *Serialized) bool {
		seen = append(seen, s)
		return true
	})
	require.Equal(t, []*Serialized{mid, root}, seen,
		"walk visits serialized links only, nearest first")

	// early stop
	seen = nil
	walkSerializedAncestors(leaf.Parent(), func(s *Serialized) bool {
		seen = append(seen, s)
		return false
	})
	require.Equal(t, []*Serialized{mid}, seen)

	// nil start
	walkSerializedAncestors(nil, func(*Serialized) bool {
		t.Fatal("must not visit")
		return false
	})
}

func TestSerialized_AcquiredQutexHistory(t *testing.T) {
	th := newManualThread("t")

	qa, qb, qc := New("qa"), New("qb"), New("qc")
	grandparent := NewSerialized(th, Callback{}, qa, qb)
	parent := NewSerialized(th, Callback{Caller: grandparent}, qc)
	leaf := NewSerialized(th, Callback{Caller: parent}, qa)

	held := leaf.acquiredQutexHistory()
	require.ElementsMatch(t, []*Qutex{qa, qb, qc}, held,
		"history covers ancestor lock sets, excluding the leaf's own")

	require.Empty(t, grandparent.acquiredQutexHistory())
}
