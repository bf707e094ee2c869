package pandad

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pandad/internal/config"
	"pandad/internal/device"
	"pandad/internal/logging"
)

// ConnectBackoff is the delay between connection attempts.
const ConnectBackoff = 100 * time.Millisecond

// Connect opens serial and applies the common device setup.
func Connect(drv device.Driver, serial string, env config.Env) (device.Device, error) {
	dev, err := drv.Open(serial)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", serial, err)
	}
	if env.Loopback {
		if err := dev.SetCanLoopback(true); err != nil {
			dev.Close()
			return nil, fmt.Errorf("enable can loopback: %w", err)
		}
	}
	for bus := 0; bus < device.BusCount; bus++ {
		if err := dev.SetCanFDAuto(bus, true); err != nil {
			dev.Close()
			return nil, fmt.Errorf("enable canfd auto on bus %d: %w", bus, err)
		}
	}
	if !dev.UpToDate() && !env.SkipFirmwareCheck {
		dev.Close()
		return nil, ErrFirmwareOutOfDate
	}
	return dev, nil
}

// Main connects to serial, or the first listed device when serial is empty,
// and runs the loop until it stops. Returning nil lets a supervisor restart it.
// The logger defaults to the one carried by ctx.
func Main(ctx context.Context, drv device.Driver, serial string, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = logging.FromContext(ctx)
	}
	opts.defaults()
	log := opts.Logger
	log.Warn("starting pandad")

	if serial == "" {
		serials, err := drv.List()
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		if len(serials) == 0 {
			log.Warn("no pandas found, exiting")
			return nil
		}
		serial = serials[0]
	}

	log.Warn("connecting to panda", "serial", serial)
	var dev device.Device
	for {
		var err error
		dev, err = Connect(drv, serial, opts.Env)
		if err == nil {
			break
		}
		if errors.Is(err, ErrFirmwareOutOfDate) {
			return err
		}
		log.Debug("connect failed", "err", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(ConnectBackoff):
		}
	}
	defer dev.Close()
	log.Warn("connected to panda", "serial", serial, "hw_type", dev.HardwareType())

	d, err := NewDaemonContext(dev, opts)
	if err != nil {
		return err
	}
	if reason := d.Run(ctx); reason != nil {
		log.Error("control loop stopped", "reason", reason)
	}
	return nil
}
