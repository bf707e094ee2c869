package messaging

import "time"

var processStart = time.Now()

// sinceStart is a monotonic clock local to this process. It never returns 0.
func sinceStart() int64 {
	return int64(time.Since(processStart)) + 1
}
