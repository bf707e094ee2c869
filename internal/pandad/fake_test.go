package pandad

import (
	"errors"
	"fmt"

	"pandad/internal/device"
)

type safetyCall struct {
	Model device.SafetyModel
	Param uint16
}

// fakeDevice records every call made by the daemon.
type fakeDevice struct {
	serial    string
	connected bool
	upToDate  bool

	health    device.Health
	healthErr error
	canHealth [device.BusCount]device.CanHealth
	canErr    [device.BusCount]error
	rx        []device.Frame
	recvErr   error
	sendErr   error
	safetyErr error
	fanRPM    int
	fanRPMErr error
	console   [][]byte

	calls         []string
	sent          [][]device.Frame
	safety        []safetyCall
	altExp        []uint16
	powerSave     []bool
	heartbeats    []bool
	fan           []int
	ir            []int
	loopback      bool
	fdAuto        []int
	healthQueries int
	closed        bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		serial:    "fake-0",
		connected: true,
		upToDate:  true,
		health:    device.Health{Voltage: 12000, Current: 500, SafetyModel: device.SafetyNoOutput},
	}
}

func (d *fakeDevice) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDevice) Serial() string                    { return d.serial }
func (d *fakeDevice) HardwareType() device.HardwareType { return device.HwCuatro }
func (d *fakeDevice) Connected() bool                   { return d.connected }
func (d *fakeDevice) UpToDate() bool                    { return d.upToDate }

func (d *fakeDevice) Health() (device.Health, error) {
	d.healthQueries++
	if d.healthErr != nil {
		return device.Health{}, d.healthErr
	}
	return d.health, nil
}

func (d *fakeDevice) CanHealth(bus int) (device.CanHealth, error) {
	if bus < 0 || bus >= device.BusCount {
		return device.CanHealth{}, device.ErrInvalidBus
	}
	return d.canHealth[bus], d.canErr[bus]
}

func (d *fakeDevice) CanRecv() ([]device.Frame, error) {
	if d.recvErr != nil {
		return nil, d.recvErr
	}
	rx := d.rx
	d.rx = nil
	return rx, nil
}

func (d *fakeDevice) CanSendMany(frames []device.Frame) error {
	d.record("can_send_many")
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, frames)
	return nil
}

func (d *fakeDevice) SetCanLoopback(enabled bool) error {
	d.loopback = enabled
	return nil
}

func (d *fakeDevice) SetCanFDAuto(bus int, enabled bool) error {
	if enabled {
		d.fdAuto = append(d.fdAuto, bus)
	}
	return nil
}

func (d *fakeDevice) SetSafetyMode(model device.SafetyModel, param uint16) error {
	d.record("set_safety_mode %d %d", model, param)
	if d.safetyErr != nil {
		return d.safetyErr
	}
	d.safety = append(d.safety, safetyCall{model, param})
	d.health.SafetyModel = model
	d.health.SafetyParam = param
	return nil
}

func (d *fakeDevice) SetAlternativeExperience(mask uint16) error {
	d.record("set_alternative_experience %d", mask)
	d.altExp = append(d.altExp, mask)
	return nil
}

func (d *fakeDevice) SetPowerSave(enabled bool) error {
	d.powerSave = append(d.powerSave, enabled)
	d.health.PowerSaveEnabled = enabled
	return nil
}

func (d *fakeDevice) SendHeartbeat(engaged bool) error {
	d.heartbeats = append(d.heartbeats, engaged)
	return nil
}

func (d *fakeDevice) SetFanPower(percent int) error {
	d.fan = append(d.fan, percent)
	return nil
}

func (d *fakeDevice) SetIRPower(value int) error {
	d.ir = append(d.ir, value)
	return nil
}

func (d *fakeDevice) FanRPM() (int, error) { return d.fanRPM, d.fanRPMErr }

func (d *fakeDevice) SerialRead(port int) ([]byte, error) {
	if len(d.console) == 0 {
		return nil, nil
	}
	b := d.console[0]
	d.console = d.console[1:]
	return b, nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	d.connected = false
	return nil
}

func (d *fakeDevice) lastSafety() (safetyCall, bool) {
	if len(d.safety) == 0 {
		return safetyCall{}, false
	}
	return d.safety[len(d.safety)-1], true
}

var errFake = errors.New("fake device failure")

type fakeDriver struct {
	serials []string
	dev     *fakeDevice
	openErr []error
	opens   int
}

func (d *fakeDriver) List() ([]string, error) { return d.serials, nil }

func (d *fakeDriver) Open(serial string) (device.Device, error) {
	d.opens++
	if len(d.openErr) > 0 {
		err := d.openErr[0]
		d.openErr = d.openErr[1:]
		if err != nil {
			return nil, err
		}
	}
	if d.dev == nil {
		return nil, errFake
	}
	return d.dev, nil
}

type fakeIR struct{ set []int }

func (f *fakeIR) SetIRPower(percent int) error {
	f.set = append(f.set, percent)
	return nil
}
