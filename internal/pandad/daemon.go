// Package pandad runs the transceiver control loop: CAN forwarding, health
// reporting, peripheral control and the safety-mode handshake.
package pandad

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pandad/internal/config"
	"pandad/internal/device"
	"pandad/internal/hardware"
	"pandad/internal/hwmon"
	"pandad/internal/messaging"
	"pandad/internal/params"
	"pandad/internal/ratekeeper"
)

// Reasons the loop stops on its own.
var (
	ErrDeviceLost        = errors.New("pandad: device disconnected")
	ErrHealthQuery       = errors.New("pandad: health query failed")
	ErrCommsUnhealthy    = errors.New("pandad: communication to device not healthy")
	ErrFirmwareOutOfDate = errors.New("pandad: device firmware out of date")
)

// DefaultRateHz is the control loop rate.
const DefaultRateHz = 100

// Options wires the daemon's collaborators.
type Options struct {
	Bus      messaging.Bus
	Params   params.Store
	Platform hardware.Platform
	Env      config.Env

	RateHz              float64
	PrintDelayThreshold time.Duration
	// HwmonInterval overrides the sensor sampling period.
	HwmonInterval time.Duration
	Logger        *slog.Logger
}

func (o *Options) defaults() {
	if o.RateHz <= 0 {
		o.RateHz = DefaultRateHz
	}
	if o.Platform == nil {
		o.Platform = hardware.PCPlatform{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// DaemonContext owns the device and every piece of loop state for one connection.
type DaemonContext struct {
	dev      device.Device
	params   params.Store
	platform hardware.Platform
	log      *slog.Logger
	rk       *ratekeeper.Ratekeeper
	hwmon    *hwmon.Reader

	selfdrive  *messaging.SubMaster
	bridge     *CanBridge
	health     *HealthReporter
	peripheral *PeripheralController
	safety     *SafetyStateMachine

	engaged      bool
	onroad       bool
	commsHealthy bool
}

// NewDaemonContext builds the loop around an open device.
func NewDaemonContext(dev device.Device, opts Options) (*DaemonContext, error) {
	opts.defaults()
	if opts.Bus == nil || opts.Params == nil {
		return nil, errors.New("pandad: bus and params are required")
	}
	log := opts.Logger.With("serial", dev.Serial())

	d := &DaemonContext{
		dev:          dev,
		params:       opts.Params,
		platform:     opts.Platform,
		log:          log,
		rk:           ratekeeper.New(opts.RateHz, opts.PrintDelayThreshold, log),
		hwmon:        hwmon.NewReader(opts.Platform, opts.HwmonInterval, log.With("component", "hwmon")),
		commsHealthy: true,
	}

	var err error
	if d.selfdrive, err = messaging.NewSubMaster(opts.Bus, messaging.TopicSelfdriveState); err != nil {
		return nil, err
	}
	if d.bridge, err = NewCanBridge(dev, opts.Bus, opts.Bus, opts.Env.Loopback, opts.Env.FakeSend, log.With("component", "bridge")); err != nil {
		return nil, err
	}
	d.health = NewHealthReporter(dev, opts.Bus, d.hwmon, opts.Env.SpoofStarted, log.With("component", "health"))
	if d.peripheral, err = NewPeripheralController(dev, opts.Platform, opts.Params, opts.Bus, opts.Env.NoFanControl, log.With("component", "peripheral")); err != nil {
		return nil, err
	}
	d.safety = NewSafetyStateMachine(dev, opts.Params, log.With("component", "safety"))
	return d, nil
}

// Safety exposes the handshake state.
func (d *DaemonContext) Safety() *SafetyStateMachine { return d.safety }

// Run ticks until ctx is cancelled or the loop decides to stop. Cancellation
// returns nil; any other stop returns its reason. On every return the relay is
// closed when onroad and not engaged.
func (d *DaemonContext) Run(ctx context.Context) error {
	defer d.closeRelay()

	if !d.platform.PC() {
		hctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go d.hwmon.Run(hctx)
	}

	d.log.Info("control loop started", "interval", d.rk.Interval(), "hw_type", d.dev.HardwareType())
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := d.Step(); err != nil {
			return err
		}
		if _, err := d.rk.KeepTime(ctx); err != nil {
			return nil
		}
	}
}

// Step runs one tick. The frame counter advances in the rate keeper.
func (d *DaemonContext) Step() error {
	if !d.dev.Connected() {
		return ErrDeviceLost
	}

	d.commsHealthy = d.bridge.Recv()
	d.bridge.Send()

	frame := d.rk.Frame()
	if frame%5 == 0 {
		d.peripheral.Update()
	}

	if frame%10 == 0 {
		d.selfdrive.Update()
		ev, _ := d.selfdrive.Latest(messaging.TopicSelfdriveState)
		d.engaged = d.selfdrive.AllChecks() && ev.SelfdriveState != nil && ev.SelfdriveState.Enabled
		d.onroad = d.params.GetBool(params.IsOnroad)

		ignition, err := d.health.PublishDeviceState(d.onroad)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHealthQuery, err)
		}
		if !ignition && !d.commsHealthy {
			d.log.Error("reconnecting, communication to panda not healthy")
			return ErrCommsUnhealthy
		}

		if err := d.dev.SendHeartbeat(d.engaged); err != nil {
			d.log.Error("send heartbeat failed", "err", err)
		}
		if err := d.safety.Configure(d.onroad); err != nil {
			d.log.Error("configure safety mode failed", "state", d.safety.State(), "err", err)
		}
	}

	if frame%50 == 0 {
		if err := d.health.PublishPeripheralState(); err != nil {
			d.log.Error("publish peripheral state failed", "err", err)
		}
	}

	d.forwardDebugLog()
	return nil
}

func (d *DaemonContext) forwardDebugLog() {
	data, err := d.dev.SerialRead(device.SerialDebug)
	if err != nil || len(data) == 0 {
		return
	}
	line := strings.ToValidUTF8(string(data), "�")
	if strings.Contains(line, "Register 0x") {
		d.log.Error("panda log", "line", line)
	} else {
		d.log.Debug("panda log", "line", line)
	}
}

// closeRelay leaves the device in NO_OUTPUT so the relay does not fault.
func (d *DaemonContext) closeRelay() {
	if !d.onroad || d.engaged || !d.dev.Connected() {
		return
	}
	d.log.Warn("closing relay on exit")
	if err := d.dev.SetSafetyMode(device.SafetyNoOutput, 0); err != nil {
		d.log.Error("set no output on exit failed", "err", err)
	}
}
