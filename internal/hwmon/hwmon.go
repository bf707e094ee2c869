// Package hwmon samples the slow platform power sensors off the control loop.
package hwmon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultInterval is the pause between samples.
	DefaultInterval = 500 * time.Millisecond
	// SlowReadThreshold is the read duration that triggers a warning.
	SlowReadThreshold = 50 * time.Millisecond
)

// Sensor reads voltage (mV) and current (mA). Reads may block.
type Sensor interface {
	Voltage() (uint32, error)
	Current() (uint32, error)
}

// Snapshot is the most recent sensor sample. Zero means never sampled.
type Snapshot struct {
	Voltage uint32
	Current uint32
}

// Reader owns the snapshot. Run is the only writer.
type Reader struct {
	sensor   Sensor
	log      *slog.Logger
	interval time.Duration

	mu   sync.Mutex
	snap Snapshot
}

// NewReader returns a reader sampling every interval. A non-positive interval uses DefaultInterval.
func NewReader(sensor Sensor, interval time.Duration, log *slog.Logger) *Reader {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reader{sensor: sensor, log: log, interval: interval}
}

// Snapshot returns the last stored pair without blocking on the sensor.
func (r *Reader) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

func (r *Reader) store(s Snapshot) {
	r.mu.Lock()
	r.snap = s
	r.mu.Unlock()
}

// Run samples until ctx is cancelled.
func (r *Reader) Run(ctx context.Context) {
	r.log.Debug("hwmon reader started", "interval", r.interval)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("hwmon reader stopped")
			return
		case <-timer.C:
		}
		r.sample()
		timer.Reset(r.interval)
	}
}

func (r *Reader) sample() {
	start := time.Now()
	v, err := r.sensor.Voltage()
	if err != nil {
		r.log.Error("read voltage failed", "err", err)
		return
	}
	c, err := r.sensor.Current()
	if err != nil {
		r.log.Error("read current failed", "err", err)
		return
	}
	if d := time.Since(start); d > SlowReadThreshold {
		r.log.Warn("hwmon read took too long", "ms", d.Milliseconds())
	}
	r.store(Snapshot{Voltage: v, Current: c})
}
