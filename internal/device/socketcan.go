package device

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brutella/can"
)

const (
	canEffFlag   uint32 = 1 << 31
	canEffMask   uint32 = 0x1FFFFFFF
	canSffMask   uint32 = 0x7FF
	rxQueueDepth        = 4096
)

// SocketCANDriver opens a transceiver made of up to BusCount SocketCAN
// interfaces. The serial is the name of the bus 0 interface.
type SocketCANDriver struct {
	// Buses are the interface names for bus 0..2. When empty, Open uses the serial alone.
	Buses []string
	// DebugPort is an optional UART carrying the debug console.
	DebugPort string
	DebugBaud int
	Logger    *slog.Logger
}

// List returns the names of the CAN interfaces present on the host.
func (d SocketCANDriver) List() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	var serials []string
	for _, iface := range ifaces {
		if strings.HasPrefix(iface.Name, "can") || strings.HasPrefix(iface.Name, "vcan") {
			serials = append(serials, iface.Name)
		}
	}
	return serials, nil
}

// Open connects every configured bus and starts their readers.
func (d SocketCANDriver) Open(serial string) (Device, error) {
	names := d.Buses
	if len(names) == 0 || names[0] != serial {
		names = []string{serial}
	}
	if len(names) > BusCount {
		names = names[:BusCount]
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dev := &SocketCAN{
		serial:      serial,
		started:     time.Now(),
		rx:          make(chan Frame, rxQueueDepth),
		safetyModel: SafetySilent,
		log:         logger.With("device", serial),
	}
	dev.connected.Store(true)

	for i, name := range names {
		bus, err := can.NewBusForInterfaceWithName(name)
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		idx := uint8(i)
		bus.Subscribe(can.NewHandler(func(f can.Frame) {
			dev.handleRx(idx, f)
		}))
		dev.buses = append(dev.buses, bus)
		go func(name string, bus *can.Bus) {
			if err := bus.ConnectAndPublish(); err != nil {
				dev.log.Error("bus reader stopped", "iface", name, "err", err)
			}
			dev.connected.Store(false)
		}(name, bus)
	}

	if d.DebugPort != "" {
		console, err := OpenConsole(d.DebugPort, d.DebugBaud)
		if err != nil {
			dev.log.Warn("debug console unavailable", "port", d.DebugPort, "err", err)
		} else {
			dev.console = console
		}
	}
	return dev, nil
}

type busCounters struct {
	rx     atomic.Uint32
	rxLost atomic.Uint32
	tx     uint32
	txLost uint32
	errors uint32
}

// SocketCAN is a transceiver backed by Linux SocketCAN interfaces. The host
// write policy of the safety model is enforced in software.
type SocketCAN struct {
	serial    string
	started   time.Time
	buses     []*can.Bus
	rx        chan Frame
	lastRx    atomic.Int64
	connected atomic.Bool
	counters  [BusCount]busCounters
	console   *Console
	log       *slog.Logger

	safetyModel SafetyModel
	safetyParam uint16
	altExp      uint16
	powerSave   bool
	engaged     bool
	lastBeat    time.Time
	fanPower    int
	loopback    bool
	blocked     uint32
}

func (d *SocketCAN) handleRx(bus uint8, f can.Frame) {
	n := int(f.Length)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	data := make([]byte, n)
	copy(data, f.Data[:n])
	addr := f.ID & canSffMask
	if f.ID&canEffFlag != 0 {
		addr = f.ID & canEffMask
	}
	select {
	case d.rx <- Frame{Address: addr, Data: data, Bus: bus}:
		d.counters[bus].rx.Add(1)
		d.lastRx.Store(time.Now().UnixNano())
	default:
		d.counters[bus].rxLost.Add(1)
	}
}

func (d *SocketCAN) Serial() string             { return d.serial }
func (d *SocketCAN) HardwareType() HardwareType { return HwUnknown }
func (d *SocketCAN) Connected() bool            { return d.connected.Load() }
func (d *SocketCAN) UpToDate() bool             { return true }

func (d *SocketCAN) controlsAllowed() bool {
	return d.engaged && time.Since(d.lastBeat) < time.Second
}

// Health reports software counters. Ignition-by-bus is inferred from receive activity in the last second.
func (d *SocketCAN) Health() (Health, error) {
	if !d.Connected() {
		return Health{}, ErrNotConnected
	}
	var rxLost uint32
	for i := range d.counters {
		rxLost += d.counters[i].rxLost.Load()
	}
	lastRx := d.lastRx.Load()
	return Health{
		Uptime:                uint32(time.Since(d.started) / time.Second),
		SafetyTxBlocked:       d.blocked,
		IgnitionCan:           lastRx != 0 && time.Since(time.Unix(0, lastRx)) < time.Second,
		ControlsAllowed:       d.controlsAllowed(),
		RxBufferOverflow:      rxLost,
		SafetyModel:           d.safetyModel,
		SafetyParam:           d.safetyParam,
		PowerSaveEnabled:      d.powerSave,
		HeartbeatLost:         !d.lastBeat.IsZero() && time.Since(d.lastBeat) > time.Second,
		AlternativeExperience: d.altExp,
		HarnessStatus:         HarnessNormal,
		FanPower:              uint8(d.fanPower),
	}, nil
}

func (d *SocketCAN) CanHealth(bus int) (CanHealth, error) {
	if !d.Connected() {
		return CanHealth{}, ErrNotConnected
	}
	if !validBus(bus) {
		return CanHealth{}, fmt.Errorf("%w: %d", ErrInvalidBus, bus)
	}
	c := &d.counters[bus]
	return CanHealth{
		TotalErrorCnt:  c.errors,
		TotalTxCnt:     c.tx,
		TotalTxLostCnt: c.txLost,
		TotalRxCnt:     c.rx.Load(),
		TotalRxLostCnt: c.rxLost.Load(),
		CanSpeed:       500,
		CanDataSpeed:   500,
	}, nil
}

// CanRecv drains every frame queued by the bus readers without blocking.
func (d *SocketCAN) CanRecv() ([]Frame, error) {
	if !d.Connected() {
		return nil, ErrNotConnected
	}
	var frames []Frame
	for {
		select {
		case f := <-d.rx:
			frames = append(frames, f)
		default:
			return frames, nil
		}
	}
}

func (d *SocketCAN) CanSendMany(frames []Frame) error {
	if !d.Connected() {
		return ErrNotConnected
	}
	policy := TxPolicy{Model: d.safetyModel, Param: d.safetyParam, ControlsAllowed: d.controlsAllowed()}
	for _, f := range frames {
		if int(f.Bus) >= len(d.buses) || len(f.Data) > 8 {
			continue
		}
		c := &d.counters[f.Bus]
		if !policy.Allowed(f) {
			d.blocked++
			c.txLost++
			continue
		}
		out := can.Frame{ID: f.Address, Length: uint8(len(f.Data))}
		if f.Address > canSffMask {
			out.ID = (f.Address & canEffMask) | canEffFlag
		}
		copy(out.Data[:], f.Data)
		if err := d.buses[f.Bus].Publish(out); err != nil {
			c.errors++
			c.txLost++
			return fmt.Errorf("publish on bus %d: %w", f.Bus, err)
		}
		c.tx++
		if d.loopback {
			select {
			case d.rx <- f:
			default:
				c.rxLost.Add(1)
			}
		}
	}
	return nil
}

func (d *SocketCAN) SetCanLoopback(enabled bool) error {
	d.loopback = enabled
	return nil
}

// SetCanFDAuto is accepted for any valid bus; bit rates are owned by the interface configuration.
func (d *SocketCAN) SetCanFDAuto(bus int, enabled bool) error {
	if !validBus(bus) {
		return fmt.Errorf("%w: %d", ErrInvalidBus, bus)
	}
	return nil
}

func (d *SocketCAN) SetSafetyMode(model SafetyModel, param uint16) error {
	if !d.Connected() {
		return ErrNotConnected
	}
	d.safetyModel = model
	d.safetyParam = param
	d.log.Info("safety mode set", "model", model, "param", param)
	return nil
}

func (d *SocketCAN) SetAlternativeExperience(mask uint16) error {
	d.altExp = mask
	return nil
}

func (d *SocketCAN) SetPowerSave(enabled bool) error {
	d.powerSave = enabled
	return nil
}

func (d *SocketCAN) SendHeartbeat(engaged bool) error {
	if !d.Connected() {
		return ErrNotConnected
	}
	d.engaged = engaged
	d.lastBeat = time.Now()
	return nil
}

func (d *SocketCAN) SetFanPower(percent int) error {
	d.fanPower = percent
	return nil
}

func (d *SocketCAN) SetIRPower(value int) error { return ErrUnsupported }

func (d *SocketCAN) FanRPM() (int, error) { return 0, ErrUnsupported }

func (d *SocketCAN) SerialRead(port int) ([]byte, error) {
	if port != SerialDebug || d.console == nil {
		return nil, ErrUnsupported
	}
	return d.console.Read()
}

func (d *SocketCAN) Close() error {
	d.connected.Store(false)
	var firstErr error
	for _, bus := range d.buses {
		if err := bus.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.console != nil {
		if err := d.console.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
