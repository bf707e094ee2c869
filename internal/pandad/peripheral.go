package pandad

import (
	"log/slog"
	"math"
	"time"

	"pandad/internal/device"
	"pandad/internal/filter"
	"pandad/internal/messaging"
	"pandad/internal/params"
)

const (
	maxIRDeviceValue   = 50
	cutoffIntegLines   = 400
	saturateIntegLines = 1000

	peripheralDT        = 0.05
	integLinesRC        = 30.0
	integLinesRCPreview = 5.0

	// forceResendEvery bounds how long a target can go without being re-sent.
	forceResendEvery = 100
	driverCamTimeout = time.Second

	// sentinels that never match a real target so the first update always sends
	unsentPercent = 999
	noFrameID     = math.MaxUint32
)

// IRSink drives the platform IR LEDs in percent.
type IRSink interface {
	SetIRPower(percent int) error
}

// PeripheralController turns deviceState and driverCameraState into fan and IR commands.
type PeripheralController struct {
	dev          device.Device
	platform     IRSink
	params       params.Store
	sm           *messaging.SubMaster
	noFanControl bool
	log          *slog.Logger
	now          func() int64

	frame           uint64
	fanTarget       int
	haveFanTarget   bool
	prevFanSpeed    int
	irPower         int
	prevIRPower     int
	prevFrameID     uint32
	lastDriverCamT  int64
	driverView      bool
	integLines      *filter.FirstOrder
	integLinesDView *filter.FirstOrder
}

// NewPeripheralController subscribes to deviceState and driverCameraState.
func NewPeripheralController(dev device.Device, platform IRSink, store params.Store, sub messaging.Subscriber, noFanControl bool, log *slog.Logger) (*PeripheralController, error) {
	sm, err := messaging.NewSubMaster(sub, messaging.TopicDeviceState, messaging.TopicDriverCameraState)
	if err != nil {
		return nil, err
	}
	p := &PeripheralController{
		dev:          dev,
		platform:     platform,
		params:       store,
		sm:           sm,
		noFanControl: noFanControl,
		log:          log,
		now:          messaging.MonoTime,
		prevFanSpeed: unsentPercent,
		prevIRPower:  unsentPercent,
		prevFrameID:  noFrameID,
	}
	p.resetFilters()
	return p, nil
}

func (p *PeripheralController) resetFilters() {
	p.integLines = filter.NewFirstOrder(0, integLinesRC, peripheralDT)
	p.integLinesDView = filter.NewFirstOrder(0, integLinesRCPreview, peripheralDT)
}

// IRPower is the current IR target in percent.
func (p *PeripheralController) IRPower() int { return p.irPower }

// Update runs one 20 Hz step.
func (p *PeripheralController) Update() {
	p.sm.Update()
	p.frame++
	force := p.frame%forceResendEvery == 0

	if !p.noFanControl {
		p.updateFan(force)
	}
	p.updateIR(force)
}

func (p *PeripheralController) updateFan(force bool) {
	updated := p.sm.Updated(messaging.TopicDeviceState)
	if updated {
		if ev, _ := p.sm.Latest(messaging.TopicDeviceState); ev.DeviceState != nil {
			p.fanTarget = ev.DeviceState.FanSpeedPercentDesired
			p.haveFanTarget = true
		}
	}
	if !p.haveFanTarget || !(updated || force) {
		return
	}
	if p.fanTarget != p.prevFanSpeed || force {
		if err := p.dev.SetFanPower(p.fanTarget); err != nil {
			p.log.Error("set fan power failed", "percent", p.fanTarget, "err", err)
			return
		}
		p.prevFanSpeed = p.fanTarget
	}
}

func (p *PeripheralController) updateIR(force bool) {
	if p.sm.Updated(messaging.TopicDriverCameraState) {
		ev, _ := p.sm.Latest(messaging.TopicDriverCameraState)
		if cam := ev.DriverCameraState; cam != nil {
			// camera restarted
			if cam.FrameID < p.prevFrameID {
				p.resetFilters()
				p.driverView = p.params.GetBool(params.IsDriverViewEnabled)
			}
			p.prevFrameID = cam.FrameID

			var lines float64
			if p.driverView {
				lines = p.integLinesDView.Update(cam.IntegLines)
			} else {
				lines = p.integLines.Update(cam.IntegLines)
			}
			p.lastDriverCamT = ev.LogMonoTime
			p.irPower = IRPowerFromIntegLines(lines)
		}
	}

	if time.Duration(p.now()-p.lastDriverCamT) > driverCamTimeout {
		p.irPower = 0
	}

	if p.irPower != p.prevIRPower || force {
		if err := p.dev.SetIRPower(IRDeviceValue(p.irPower)); err != nil {
			p.log.Debug("set device ir power failed", "err", err)
		}
		if err := p.platform.SetIRPower(p.irPower); err != nil {
			p.log.Debug("set platform ir power failed", "err", err)
		}
		p.prevIRPower = p.irPower
	}
}

// IRPowerFromIntegLines maps filtered exposure lines to IR percent.
func IRPowerFromIntegLines(lines float64) int {
	switch {
	case lines <= cutoffIntegLines:
		return 0
	case lines > saturateIntegLines:
		return 100
	default:
		return int(math.Floor(100 * (lines - cutoffIntegLines) / (saturateIntegLines - cutoffIntegLines)))
	}
}

// IRDeviceValue scales percent to the device range, rounding half to even.
func IRDeviceValue(percent int) int {
	return int(math.RoundToEven(float64(percent) * maxIRDeviceValue / 100))
}
