// Package device defines the transceiver boundary: a typed, synchronous handle
// to the CAN-to-host bridge and the drivers that open it.
package device

import "errors"

// BusCount is the number of physical CAN buses on one transceiver.
const BusCount = 3

// SerialDebug is the debug console channel for SerialRead.
const SerialDebug = 0

var (
	// ErrNotConnected is returned by any call made after the device went away.
	ErrNotConnected = errors.New("device: not connected")
	// ErrUnsupported is returned by operations the backing hardware cannot perform.
	ErrUnsupported = errors.New("device: operation not supported")
	// ErrInvalidBus is returned for a bus index outside [0, BusCount).
	ErrInvalidBus = errors.New("device: invalid bus index")
)

// Frame is one CAN frame as seen by the host. Bus is the source bus on receive
// and the destination bus on send.
type Frame struct {
	Address uint32
	Data    []byte
	Bus     uint8
}

// Device is a connected transceiver. Every call is synchronous and must only be
// issued from the goroutine that owns the handle.
type Device interface {
	Serial() string
	HardwareType() HardwareType
	Connected() bool
	UpToDate() bool

	Health() (Health, error)
	CanHealth(bus int) (CanHealth, error)

	CanRecv() ([]Frame, error)
	CanSendMany(frames []Frame) error
	SetCanLoopback(enabled bool) error
	SetCanFDAuto(bus int, enabled bool) error

	SetSafetyMode(model SafetyModel, param uint16) error
	SetAlternativeExperience(mask uint16) error
	SetPowerSave(enabled bool) error
	SendHeartbeat(engaged bool) error

	SetFanPower(percent int) error
	SetIRPower(value int) error
	FanRPM() (int, error)

	SerialRead(port int) ([]byte, error)
	Close() error
}

// Driver discovers and opens transceivers.
type Driver interface {
	List() ([]string, error)
	Open(serial string) (Device, error)
}

func validBus(bus int) bool {
	return bus >= 0 && bus < BusCount
}
