package qutex

import (
	"errors"
	"testing"
)

var errManualThreadStopped = errors.New("manual thread stopped")

// manualThread is a deterministic Thread for scenario tests: posts queue up
// and run only when the test steps the thread, so interleavings are fully
// scripted.
type manualThread struct {
	name    string
	queue   []func()
	running bool
	stopped bool
	posts   int
}

func newManualThread(name string) *manualThread {
	return &manualThread{name: name}
}

func (t *manualThread) Post(fn func()) error {
	if t.stopped {
		return errManualThreadStopped
	}
	t.queue = append(t.queue, fn)
	t.posts++
	return nil
}

func (t *manualThread) OnThread() bool { return t.running }

func (t *manualThread) Name() string { return t.name }

// step runs the oldest queued callable, reporting whether one was available.
func (t *manualThread) step() bool {
	if len(t.queue) == 0 {
		return false
	}
	fn := t.queue[0]
	t.queue = t.queue[1:]
	t.running = true
	defer func() { t.running = false }()
	fn()
	return true
}

// run steps until the queue is empty, failing the test past limit steps.
func (t *manualThread) run(tb testing.TB, limit int) int {
	tb.Helper()
	steps := 0
	for t.step() {
		steps++
		if steps > limit {
			tb.Fatalf("thread %q still busy after %d steps", t.name, limit)
		}
	}
	return steps
}

// requireProtocolViolation asserts fn panics with a *ProtocolError.
func requireProtocolViolation(tb testing.TB, fn func()) *ProtocolError {
	tb.Helper()
	var pe *ProtocolError
	func() {
		defer func() {
			r := recover()
			if r == nil {
				tb.Fatal("expected a protocol violation panic")
			}
			var ok bool
			pe, ok = r.(*ProtocolError)
			if !ok {
				tb.Fatalf("expected *ProtocolError, got %T: %v", r, r)
			}
		}()
		fn()
	}()
	return pe
}

// configureForTest applies options for the duration of the test, restoring
// defaults afterwards.
func configureForTest(tb testing.TB, options ...Option) {
	tb.Helper()
	if err := Configure(options...); err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := Configure(); err != nil {
			tb.Fatal(err)
		}
	})
}

// newTestLockvoker builds a lockvoker for queue/qutex level tests. The
// continuation is deliberately minimal; identity is all these tests need.
func newTestLockvoker(t *manualThread) *lockvoker {
	cont := NewSerialized(t, Callback{})
	return &lockvoker{cont: cont, target: t}
}
