// Package hardware reads the host platform's power sensors and drives its IR LEDs.
package hardware

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNoSensor is returned when a sensor path is not configured.
var ErrNoSensor = errors.New("hardware: sensor not available")

// Platform is the host the daemon runs on.
type Platform interface {
	// PC reports a desktop or simulation host without platform sensors.
	PC() bool
	Voltage() (uint32, error) // mV
	Current() (uint32, error) // mA
	SetIRPower(percent int) error
}

// Sysfs reads hwmon attributes. Empty paths disable the respective sensor.
type Sysfs struct {
	VoltagePath string
	CurrentPath string
	IRPath      string
}

func (s *Sysfs) PC() bool { return false }

func (s *Sysfs) Voltage() (uint32, error) { return readUint(s.VoltagePath) }

func (s *Sysfs) Current() (uint32, error) { return readUint(s.CurrentPath) }

// SetIRPower writes the percentage to the IR LED attribute. Without a path it is a no-op.
func (s *Sysfs) SetIRPower(percent int) error {
	if s.IRPath == "" {
		return nil
	}
	if percent < 0 || percent > 100 {
		return fmt.Errorf("ir power %d out of range", percent)
	}
	if err := os.WriteFile(s.IRPath, []byte(strconv.Itoa(percent)), 0o644); err != nil {
		return fmt.Errorf("set ir power: %w", err)
	}
	return nil
}

func readUint(path string) (uint32, error) {
	if path == "" {
		return 0, ErrNoSensor
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	// sysfs current may be reported negative while charging
	if v < 0 {
		v = -v
	}
	return uint32(v), nil
}

// PCPlatform is a host without platform sensors.
type PCPlatform struct{}

func (PCPlatform) PC() bool { return true }
func (PCPlatform) Voltage() (uint32, error) { return 0, nil }
func (PCPlatform) Current() (uint32, error) { return 0, nil }
func (PCPlatform) SetIRPower(_ int) error { return nil }
