// Package realtime pins the daemon to a CPU core and raises it to a
// real-time scheduling class.
package realtime

import "errors"

// ErrUnsupported is returned on platforms without affinity or FIFO scheduling.
var ErrUnsupported = errors.New("realtime: unsupported platform")

// Setup pins the calling thread to core and sets SCHED_FIFO at priority.
// Callers should runtime.LockOSThread first.
func Setup(core, priority int) error {
	if err := SetCoreAffinity(core); err != nil {
		return err
	}
	return SetRealtimePriority(priority)
}
