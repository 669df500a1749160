package qutex

import (
	"sync/atomic"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// pkgLogger is the package-level structured logger. Logging is an
// infrastructure cross-cutting concern shared by all qutex instances, so it
// is registered once, at the package level, rather than threaded through
// every constructor.
var pkgLogger atomic.Pointer[logiface.Logger[logiface.Event]]

// reportLimiter throttles detector diagnostics per category (qutex name).
// A gridlocked lockvoker is re-posted on every wake of every involved qutex,
// so an undamped detector would emit the same report at wake frequency.
var reportLimiter = catrate.NewLimiter(map[time.Duration]int{
	time.Second: 2,
	time.Minute: 10,
})

// SetLogger sets the package-level structured logger, used for detector
// reports and (with [WithTraceCallables]) callable tracing. A nil logger
// disables emission; all logging call sites are nil-safe.
//
// Use [logiface.Logger.Logger] to obtain the generic form of a typed logger.
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	pkgLogger.Store(logger)
}

// logger returns the package-level logger, possibly nil (nil is safe to use).
func logger() *logiface.Logger[logiface.Event] {
	return pkgLogger.Load()
}

// allowReport reports whether a detector diagnostic for the given category
// is within the rate limit.
func allowReport(category string) bool {
	_, ok := reportLimiter.Allow(category)
	return ok
}
