package worker

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrInvalidCPU is returned by PinToCPU for a negative CPU ID.
var ErrInvalidCPU = errors.New("worker: invalid CPU id")

// AvailableCPUCount returns the number of CPUs available to the process.
func AvailableCPUCount() (int, error) {
	return availableCPUCount()
}

// PinToCPU pins the worker's goroutine to the given CPU. The pin is applied
// on-thread, like any other posted callable: affinity is a property of the
// OS thread, so the worker locks itself to its OS thread and then restricts
// that thread. The OS thread stays locked for the remainder of the worker's
// life.
//
// done, if non-nil, is invoked on the worker with the outcome. On platforms
// without affinity support the outcome is [errors.ErrUnsupported].
func (w *Worker) PinToCPU(cpu int, done func(error)) error {
	if cpu < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCPU, cpu)
	}
	return w.Post(func() {
		var err error
		if pinningSupported {
			runtime.LockOSThread()
			err = setAffinity(cpu)
			if err != nil {
				runtime.UnlockOSThread()
			}
		} else {
			err = setAffinity(cpu)
		}
		if err != nil {
			log().Warning().
				Err(err).
				Str("worker", w.name).
				Int("cpu", cpu).
				Log("worker: CPU pinning failed")
		}
		if done != nil {
			done(err)
		}
	})
}
