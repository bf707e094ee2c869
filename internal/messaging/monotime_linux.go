package messaging

import "golang.org/x/sys/unix"

// MonoTime is the event clock: CLOCK_MONOTONIC in nanoseconds. Every process
// on the host reads the same clock and wall clock steps do not move it.
func MonoTime() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return sinceStart()
	}
	return ts.Nano()
}
