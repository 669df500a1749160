// Package worker provides the cooperative worker thread the qutex
// coordination core is written against: a single goroutine owning a FIFO of
// callables, executed serially, with posting from any goroutine.
//
// A [Worker] implements the core's Thread interface (Post / OnThread /
// Name). Beyond that minimal surface it carries the usual lifecycle of an
// event-loop component: a jolt gate for deferred startup, pause/resume,
// graceful stop with queue drain, and optional CPU pinning (Linux).
//
// There is no preemption: a posted callable runs to completion before the
// next, and long-running callables stall the worker. Posts from a single
// source goroutine are executed in submission order.
package worker
