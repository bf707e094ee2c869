//go:build !linux

package messaging

// MonoTime is the event clock in nanoseconds. Off Linux it is only comparable
// within one process.
func MonoTime() int64 {
	return sinceStart()
}
