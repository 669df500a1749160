package qutex

import (
	"sync/atomic"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

// testEvent is a minimal logiface.Event implementation; the tests only care
// that events reach the writer, not about field contents.
type testEvent struct {
	logiface.UnimplementedEvent
	level logiface.Level
}

func (e *testEvent) Level() logiface.Level { return e.level }

func (e *testEvent) AddField(string, any) {}

// newCaptureLogger returns a generic logger counting written events.
func newCaptureLogger(count *atomic.Int64) *logiface.Logger[logiface.Event] {
	typed := logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](logiface.NewEventFactoryFunc(func(level logiface.Level) *testEvent {
			return &testEvent{level: level}
		})),
		logiface.WithWriter[*testEvent](logiface.NewWriterFunc(func(*testEvent) error {
			count.Add(1)
			return nil
		})),
		logiface.WithLevel[*testEvent](logiface.LevelTrace),
	)
	return typed.Logger()
}

func useCaptureLogger(t *testing.T) *atomic.Int64 {
	t.Helper()
	var count atomic.Int64
	SetLogger(newCaptureLogger(&count))
	t.Cleanup(func() { SetLogger(nil) })
	return &count
}

func TestLogging_NilLoggerSafe(t *testing.T) {
	SetLogger(nil)
	// all call sites build on the nil logger; none may panic
	logger().Err().Str("k", "v").Log("nope")
	logger().Debug().Log("nope")
}

func TestLogging_HeuristicGridlockReport(t *testing.T) {
	count := useCaptureLogger(t)

	tr := &AcquisitionHistoryTracker{entries: map[*Serialized]historyEntry{}}
	th := newManualThread("t")
	qa := New("log-heuristic-qa")
	qb := New("log-heuristic-qb")
	a := NewSerialized(th, Callback{})
	b := NewSerialized(th, Callback{})
	tr.addIfNotExists(a, qb, []*Qutex{qa})
	tr.addIfNotExists(b, qa, []*Qutex{qb})

	require.True(t, tr.heuristicGridlockCheck(qa, b))
	require.GreaterOrEqual(t, count.Load(), int64(1))
}

func TestLogging_ReportRateLimited(t *testing.T) {
	count := useCaptureLogger(t)

	tr := &AcquisitionHistoryTracker{entries: map[*Serialized]historyEntry{}}
	th := newManualThread("t")
	qa := New("log-limited-qa")
	qb := New("log-limited-qb")
	a := NewSerialized(th, Callback{})
	b := NewSerialized(th, Callback{})
	tr.addIfNotExists(a, qb, []*Qutex{qa})
	tr.addIfNotExists(b, qa, []*Qutex{qb})

	// hammer the same category; the limiter must cap emissions well below
	// the call count
	for i := 0; i < 50; i++ {
		require.True(t, tr.heuristicGridlockCheck(qa, b))
	}
	require.Less(t, count.Load(), int64(10))
}

func TestTraceCallable_Disabled(t *testing.T) {
	configureForTest(t)
	ran := false
	fn := func() { ran = true }
	wrapped := traceCallable(0, fn)
	wrapped()
	require.True(t, ran)
}

func TestTraceCallable_Enabled(t *testing.T) {
	configureForTest(t, WithTraceCallables(true))
	count := useCaptureLogger(t)

	ran := false
	wrapped := traceCallable(0, func() { ran = true })
	require.NotNil(t, wrapped)
	wrapped()
	require.True(t, ran)
	require.Equal(t, int64(1), count.Load(), "one trace event per execution")

	require.Nil(t, traceCallable(0, nil))
}
