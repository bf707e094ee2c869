//go:build linux

package realtime

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SetCoreAffinity restricts the calling thread to core.
func SetCoreAffinity(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("set affinity to core %d: %w", core, err)
	}
	return nil
}

type schedParam struct {
	priority int32
}

// SetRealtimePriority switches the calling thread to SCHED_FIFO.
func SetRealtimePriority(priority int) error {
	if priority < 1 || priority > 99 {
		return fmt.Errorf("realtime priority %d out of range", priority)
	}
	p := schedParam{priority: int32(priority)}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, uintptr(unix.SCHED_FIFO), uintptr(unsafe.Pointer(&p)))
	if errno != 0 {
		return fmt.Errorf("set SCHED_FIFO priority %d: %w", priority, errno)
	}
	return nil
}
