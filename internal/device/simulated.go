package device

import (
	"fmt"
	"strings"
	"time"
)

// SimDriver opens in-process simulated transceivers.
type SimDriver struct {
	Serials []string
}

// List returns the configured serials, or a single default one.
func (d SimDriver) List() ([]string, error) {
	if len(d.Serials) == 0 {
		return []string{"sim-0"}, nil
	}
	return d.Serials, nil
}

// Open returns a new simulated device.
func (d SimDriver) Open(serial string) (Device, error) {
	return NewSimDevice(serial), nil
}

// SimDevice is a transceiver implemented in memory. It enforces the same host
// write policy as the firmware and loops frames back when loopback is enabled.
type SimDevice struct {
	serial    string
	hwType    HardwareType
	started   time.Time
	connected bool
	upToDate  bool

	ignitionLine bool
	ignitionCan  bool
	voltage      uint32
	current      uint32
	faults       uint32
	fanRPM       int

	safetyModel SafetyModel
	safetyParam uint16
	altExp      uint16
	powerSave   bool
	engaged     bool
	lastBeat    time.Time
	fanPower    int
	irPower     int
	loopback    bool
	canfdAuto   [BusCount]bool

	rx      []Frame
	console strings.Builder
	tx      [BusCount]uint32
	txLost  [BusCount]uint32
	rxCnt   [BusCount]uint32
	blocked uint32

	now func() time.Time
}

// NewSimDevice creates a connected simulated device booted in SILENT mode.
func NewSimDevice(serial string) *SimDevice {
	return &SimDevice{
		serial:      serial,
		hwType:      HwCuatro,
		started:     time.Now(),
		connected:   true,
		upToDate:    true,
		voltage:     12000,
		current:     500,
		safetyModel: SafetySilent,
		now:         time.Now,
	}
}

// SetIgnition sets the simulated ignition inputs.
func (d *SimDevice) SetIgnition(line, can bool) {
	d.ignitionLine = line
	d.ignitionCan = can
}

// InjectRx queues frames as if received from the vehicle.
func (d *SimDevice) InjectRx(frames ...Frame) {
	d.rx = append(d.rx, frames...)
}

// WriteConsole appends text to the debug console.
func (d *SimDevice) WriteConsole(s string) {
	d.console.WriteString(s)
}

// Disconnect simulates an unplugged device.
func (d *SimDevice) Disconnect() {
	d.connected = false
}

// SetFaults sets the fault bitset reported by Health.
func (d *SimDevice) SetFaults(bits uint32) {
	d.faults = bits
}

// SafetyMode returns the active model and param.
func (d *SimDevice) SafetyMode() (SafetyModel, uint16) {
	return d.safetyModel, d.safetyParam
}

// IRPower returns the last IR value written, in device units.
func (d *SimDevice) IRPower() int { return d.irPower }

// FanPower returns the last fan percentage written.
func (d *SimDevice) FanPower() int { return d.fanPower }

func (d *SimDevice) Serial() string             { return d.serial }
func (d *SimDevice) HardwareType() HardwareType { return d.hwType }
func (d *SimDevice) Connected() bool            { return d.connected }
func (d *SimDevice) UpToDate() bool             { return d.upToDate }

func (d *SimDevice) controlsAllowed() bool {
	return d.engaged && d.now().Sub(d.lastBeat) < time.Second
}

func (d *SimDevice) Health() (Health, error) {
	if !d.connected {
		return Health{}, ErrNotConnected
	}
	beatLost := !d.lastBeat.IsZero() && d.now().Sub(d.lastBeat) > time.Second
	return Health{
		Voltage:               d.voltage,
		Current:               d.current,
		Uptime:                uint32(d.now().Sub(d.started) / time.Second),
		SafetyTxBlocked:       d.blocked,
		IgnitionLine:          d.ignitionLine,
		IgnitionCan:           d.ignitionCan,
		ControlsAllowed:       d.controlsAllowed(),
		SafetyModel:           d.safetyModel,
		SafetyParam:           d.safetyParam,
		Faults:                d.faults,
		PowerSaveEnabled:      d.powerSave,
		HeartbeatLost:         beatLost,
		AlternativeExperience: d.altExp,
		HarnessStatus:         HarnessNormal,
		FanPower:              uint8(d.fanPower),
		SBU1VoltageMV:         3300,
		SBU2VoltageMV:         3300,
	}, nil
}

func (d *SimDevice) CanHealth(bus int) (CanHealth, error) {
	if !d.connected {
		return CanHealth{}, ErrNotConnected
	}
	if !validBus(bus) {
		return CanHealth{}, fmt.Errorf("%w: %d", ErrInvalidBus, bus)
	}
	return CanHealth{
		TotalTxCnt:     d.tx[bus],
		TotalRxCnt:     d.rxCnt[bus],
		TotalTxLostCnt: d.txLost[bus],
		CanSpeed:       500,
		CanDataSpeed:   2000,
		CanfdEnabled:   d.canfdAuto[bus],
		BrsEnabled:     d.canfdAuto[bus],
	}, nil
}

func (d *SimDevice) CanRecv() ([]Frame, error) {
	if !d.connected {
		return nil, ErrNotConnected
	}
	frames := d.rx
	d.rx = nil
	for _, f := range frames {
		if validBus(int(f.Bus)) {
			d.rxCnt[f.Bus]++
		}
	}
	return frames, nil
}

func (d *SimDevice) CanSendMany(frames []Frame) error {
	if !d.connected {
		return ErrNotConnected
	}
	policy := TxPolicy{Model: d.safetyModel, Param: d.safetyParam, ControlsAllowed: d.controlsAllowed()}
	for _, f := range frames {
		if !validBus(int(f.Bus)) {
			continue
		}
		if !policy.Allowed(f) {
			d.blocked++
			d.txLost[f.Bus]++
			continue
		}
		d.tx[f.Bus]++
		if d.loopback {
			d.rx = append(d.rx, f)
		}
	}
	return nil
}

func (d *SimDevice) SetCanLoopback(enabled bool) error {
	d.loopback = enabled
	return nil
}

func (d *SimDevice) SetCanFDAuto(bus int, enabled bool) error {
	if !validBus(bus) {
		return fmt.Errorf("%w: %d", ErrInvalidBus, bus)
	}
	d.canfdAuto[bus] = enabled
	return nil
}

func (d *SimDevice) SetSafetyMode(model SafetyModel, param uint16) error {
	if !d.connected {
		return ErrNotConnected
	}
	d.safetyModel = model
	d.safetyParam = param
	return nil
}

func (d *SimDevice) SetAlternativeExperience(mask uint16) error {
	d.altExp = mask
	return nil
}

func (d *SimDevice) SetPowerSave(enabled bool) error {
	d.powerSave = enabled
	return nil
}

func (d *SimDevice) SendHeartbeat(engaged bool) error {
	if !d.connected {
		return ErrNotConnected
	}
	d.engaged = engaged
	d.lastBeat = d.now()
	return nil
}

func (d *SimDevice) SetFanPower(percent int) error {
	d.fanPower = percent
	d.fanRPM = percent * 65
	return nil
}

func (d *SimDevice) SetIRPower(value int) error {
	d.irPower = value
	return nil
}

func (d *SimDevice) FanRPM() (int, error) {
	if !d.connected {
		return 0, ErrNotConnected
	}
	return d.fanRPM, nil
}

func (d *SimDevice) SerialRead(port int) ([]byte, error) {
	if port != SerialDebug {
		return nil, ErrUnsupported
	}
	if d.console.Len() == 0 {
		return nil, nil
	}
	out := []byte(d.console.String())
	d.console.Reset()
	return out, nil
}

func (d *SimDevice) Close() error {
	d.connected = false
	return nil
}
