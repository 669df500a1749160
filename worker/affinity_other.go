//go:build !linux

package worker

import (
	"errors"
	"runtime"
)

const pinningSupported = false

func setAffinity(int) error {
	return errors.ErrUnsupported
}

func availableCPUCount() (int, error) {
	return runtime.NumCPU(), nil
}
