package qutex

// Thread is the cooperative worker abstraction the coordination core is
// written against. A Thread owns a FIFO of callables; posted callables
// execute serially, each running to completion before the next. The core
// never blocks a Thread: it only posts to it.
//
// The worker subpackage provides a concrete implementation; any event loop
// with equivalent semantics may be substituted.
type Thread interface {
	// Post enqueues fn to the worker's FIFO. It is safe to call from any
	// goroutine, and posts from a single source are executed in order.
	// Post returns an error if the worker has stopped, in which case fn is
	// discarded.
	Post(fn func()) error

	// OnThread reports whether the caller is currently executing on this
	// worker, i.e. inside a callable posted to it.
	OnThread() bool

	// Name identifies the worker, for diagnostics.
	Name() string
}
