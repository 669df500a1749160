package worker

import (
	"fmt"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// pkgLogger is the package-level structured logger.
var pkgLogger atomic.Pointer[logiface.Logger[logiface.Event]]

// SetLogger sets the package-level structured logger, used for callable
// panics and pinning diagnostics. A nil logger disables emission; all
// logging call sites are nil-safe.
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	pkgLogger.Store(logger)
}

func log() *logiface.Logger[logiface.Event] {
	return pkgLogger.Load()
}

// logPanic reports a recovered callable panic.
func logPanic(worker string, recovered any) {
	var err error
	if e, ok := recovered.(error); ok {
		err = e
	} else {
		err = fmt.Errorf("panic: %v", recovered)
	}
	log().Err().
		Err(err).
		Str("worker", worker).
		Log("worker: callable panicked")
}
