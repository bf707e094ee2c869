package pandad

import (
	"fmt"
	"log/slog"

	"pandad/internal/device"
	"pandad/internal/hwmon"
	"pandad/internal/messaging"
)

// SnapshotSource provides the latest platform power reading.
type SnapshotSource interface {
	Snapshot() hwmon.Snapshot
}

// HealthReporter publishes pandaStates and peripheralState.
type HealthReporter struct {
	dev          device.Device
	pub          messaging.Publisher
	hwmon        SnapshotSource
	hwType       device.HardwareType
	spoofStarted bool
	log          *slog.Logger
}

// NewHealthReporter reads the hardware type once.
func NewHealthReporter(dev device.Device, pub messaging.Publisher, hw SnapshotSource, spoofStarted bool, log *slog.Logger) *HealthReporter {
	return &HealthReporter{
		dev:          dev,
		pub:          pub,
		hwmon:        hw,
		hwType:       dev.HardwareType(),
		spoofStarted: spoofStarted,
		log:          log,
	}
}

// PublishDeviceState reads device and bus health, enforces the offroad safety
// mode and publishes pandaStates. It returns the local ignition state. On any
// read failure nothing is published.
func (h *HealthReporter) PublishDeviceState(onroad bool) (bool, error) {
	health, err := h.dev.Health()
	if err != nil {
		return false, fmt.Errorf("read health: %w", err)
	}
	var cans [device.BusCount]device.CanHealth
	for i := range cans {
		cans[i], err = h.dev.CanHealth(i)
		if err != nil {
			return false, fmt.Errorf("read can health bus %d: %w", i, err)
		}
	}

	if h.spoofStarted {
		health.IgnitionLine = true
	}
	ignition := health.IgnitionLine || health.IgnitionCan

	// fingerprinting needs the buses live, SILENT keeps them quiet
	noOutputSent := false
	if health.SafetyModel == device.SafetySilent {
		h.setNoOutput()
		noOutputSent = true
	}

	if wantPowerSave := !ignition; health.PowerSaveEnabled != wantPowerSave {
		if err := h.dev.SetPowerSave(wantPowerSave); err != nil {
			h.log.Error("set power save failed", "enabled", wantPowerSave, "err", err)
		}
	}

	closeRelay := !ignition || !onroad
	if closeRelay && health.SafetyModel != device.SafetyNoOutput && !noOutputSent {
		h.setNoOutput()
	}

	state := pandaStateFromHealth(h.hwType, health, cans)
	ev := messaging.Event{Valid: true, PandaStates: []messaging.PandaState{state}}
	if err := h.pub.Publish(messaging.TopicPandaStates, ev); err != nil {
		h.log.Error("publish pandaStates failed", "err", err)
	}
	return ignition, nil
}

func (h *HealthReporter) setNoOutput() {
	if err := h.dev.SetSafetyMode(device.SafetyNoOutput, 0); err != nil {
		h.log.Error("set safety mode failed", "model", device.SafetyNoOutput, "err", err)
	}
}

// PublishPeripheralState publishes power and fan readings. Device read
// failures are tolerated.
func (h *HealthReporter) PublishPeripheralState() error {
	snap := h.hwmon.Snapshot()
	ps := &messaging.PeripheralState{
		PandaType: h.hwType.String(),
		Voltage:   snap.Voltage,
		Current:   snap.Current,
	}
	if ps.Voltage == 0 && ps.Current == 0 {
		if health, err := h.dev.Health(); err == nil {
			ps.Voltage = health.Voltage
			ps.Current = health.Current
		}
	}
	if rpm, err := h.dev.FanRPM(); err == nil {
		ps.FanSpeedRpm = &rpm
	}
	if err := h.pub.Publish(messaging.TopicPeripheralState, messaging.Event{Valid: true, PeripheralState: ps}); err != nil {
		return fmt.Errorf("publish peripheralState: %w", err)
	}
	return nil
}

func pandaStateFromHealth(hw device.HardwareType, h device.Health, cans [device.BusCount]device.CanHealth) messaging.PandaState {
	ps := messaging.PandaState{
		Voltage:               h.Voltage,
		Current:               h.Current,
		Uptime:                h.Uptime,
		SafetyTxBlocked:       h.SafetyTxBlocked,
		SafetyRxInvalid:       h.SafetyRxInvalid,
		IgnitionLine:          h.IgnitionLine,
		IgnitionCan:           h.IgnitionCan,
		ControlsAllowed:       h.ControlsAllowed,
		TxBufferOverflow:      h.TxBufferOverflow,
		RxBufferOverflow:      h.RxBufferOverflow,
		PandaType:             hw.String(),
		SafetyModel:           uint16(h.SafetyModel),
		SafetyParam:           h.SafetyParam,
		FaultStatus:           h.Faults,
		PowerSaveEnabled:      h.PowerSaveEnabled,
		HeartbeatLost:         h.HeartbeatLost,
		AlternativeExperience: h.AlternativeExperience,
		HarnessStatus:         h.HarnessStatus.String(),
		InterruptLoad:         h.InterruptLoad,
		FanPower:              h.FanPower,
		SafetyRxChecksInvalid: h.SafetyRxChecksInvalid,
		SpiErrorCount:         h.SpiErrorCount,
		Sbu1Voltage:           float64(h.SBU1VoltageMV) / 1000.0,
		Sbu2Voltage:           float64(h.SBU2VoltageMV) / 1000.0,
		Faults:                h.FaultSet(),
	}
	for i, cs := range ps.CanStates() {
		*cs = canStateFromHealth(cans[i])
	}
	return ps
}

func canStateFromHealth(c device.CanHealth) messaging.PandaCanState {
	return messaging.PandaCanState{
		BusOff:              c.BusOff,
		BusOffCnt:           c.BusOffCnt,
		ErrorWarning:        c.ErrorWarning,
		ErrorPassive:        c.ErrorPassive,
		LastError:           c.LastError.String(),
		LastStoredError:     c.LastStoredError.String(),
		LastDataError:       c.LastDataError.String(),
		LastDataStoredError: c.LastDataStoredError.String(),
		ReceiveErrorCnt:     c.ReceiveErrorCnt,
		TransmitErrorCnt:    c.TransmitErrorCnt,
		TotalErrorCnt:       c.TotalErrorCnt,
		TotalTxLostCnt:      c.TotalTxLostCnt,
		TotalRxLostCnt:      c.TotalRxLostCnt,
		TotalTxCnt:          c.TotalTxCnt,
		TotalRxCnt:          c.TotalRxCnt,
		TotalFwdCnt:         c.TotalFwdCnt,
		CanSpeed:            c.CanSpeed,
		CanDataSpeed:        c.CanDataSpeed,
		CanfdEnabled:        c.CanfdEnabled,
		BrsEnabled:          c.BrsEnabled,
		CanfdNonIso:         c.CanfdNonIso,
		Irq0CallRate:        c.Irq0CallRate,
		Irq1CallRate:        c.Irq1CallRate,
		Irq2CallRate:        c.Irq2CallRate,
		CanCoreResetCnt:     c.CanCoreResetCnt,
	}
}
