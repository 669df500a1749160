//go:build linux

package worker

import "golang.org/x/sys/unix"

const pinningSupported = true

// setAffinity restricts the calling OS thread to the given CPU. The caller
// must have locked itself to its OS thread first.
func setAffinity(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

// availableCPUCount returns the number of CPUs available to the process.
func availableCPUCount() (int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0, err
	}
	return set.Count(), nil
}
