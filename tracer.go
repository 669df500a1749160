package qutex

import "runtime"

// traceCallable wraps fn with creator metadata (function, file, line of the
// caller skip frames up) and emits a trace-level log event when the wrapped
// callable runs. With tracing disabled it returns fn unchanged, so the
// common path carries no overhead.
//
// This exists to debug cases where a posted callable misbehaves long after
// its creator returned: the metadata survives in the closure and in the
// emitted event.
func traceCallable(skip int, fn func()) func() {
	if !cfg().traceCallables || fn == nil {
		return fn
	}

	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return fn
	}
	creator := "unknown"
	if f := runtime.FuncForPC(pc); f != nil {
		creator = f.Name()
	}

	return func() {
		logger().Trace().
			Str("creator", creator).
			Str("file", file).
			Int("line", line).
			Log("qutex: running traced callable")
		fn()
	}
}
