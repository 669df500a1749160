package worker

import "runtime"

// goroutineID returns the current goroutine's ID, parsed from the stack
// header. There is no supported API for this; it is used only for the
// OnThread identity check, never for correctness of scheduling.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
