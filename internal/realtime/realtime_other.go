//go:build !linux

package realtime

func SetCoreAffinity(int) error { return ErrUnsupported }

func SetRealtimePriority(int) error { return ErrUnsupported }
