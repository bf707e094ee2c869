package pandad

import (
	"errors"
	"reflect"
	"testing"

	"pandad/internal/device"
	"pandad/internal/hwmon"
	"pandad/internal/logging"
	"pandad/internal/messaging"
)

type fixedSnapshot hwmon.Snapshot

func (s fixedSnapshot) Snapshot() hwmon.Snapshot { return hwmon.Snapshot(s) }

func newTestReporter(dev *fakeDevice, snap hwmon.Snapshot, spoof bool) (*HealthReporter, *messaging.MemoryBus) {
	bus := messaging.NewMemoryBus(16)
	return NewHealthReporter(dev, bus, fixedSnapshot(snap), spoof, logging.Discard()), bus
}

func TestPublishDeviceStateOffroadForcesNoOutput(t *testing.T) {
	for _, tc := range []struct {
		name     string
		ignition bool
		onroad   bool
	}{
		{"ignition off onroad", false, true},
		{"ignition on offroad", true, false},
		{"ignition off offroad", false, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.health.SafetyModel = device.SafetyModel(2)
			dev.health.IgnitionLine = tc.ignition
			h, _ := newTestReporter(dev, hwmon.Snapshot{}, false)
			if _, err := h.PublishDeviceState(tc.onroad); err != nil {
				t.Fatalf("PublishDeviceState: %v", err)
			}
			if dev.health.SafetyModel != device.SafetyNoOutput {
				t.Fatalf("safety model = %v", dev.health.SafetyModel)
			}
			if len(dev.safety) != 1 {
				t.Fatalf("safety writes = %v", dev.safety)
			}
		})
	}
}

func TestPublishDeviceStateNoOutputIsIdempotent(t *testing.T) {
	dev := newFakeDevice()
	h, _ := newTestReporter(dev, hwmon.Snapshot{}, false)
	if _, err := h.PublishDeviceState(false); err != nil {
		t.Fatalf("PublishDeviceState: %v", err)
	}
	if len(dev.safety) != 0 {
		t.Fatalf("unexpected safety writes %v", dev.safety)
	}
}

func TestPublishDeviceStateSilentWritesNoOutputOnce(t *testing.T) {
	dev := newFakeDevice()
	dev.health.SafetyModel = device.SafetySilent
	h, _ := newTestReporter(dev, hwmon.Snapshot{}, false)
	if _, err := h.PublishDeviceState(false); err != nil {
		t.Fatalf("PublishDeviceState: %v", err)
	}
	want := []safetyCall{{device.SafetyNoOutput, 0}}
	if !reflect.DeepEqual(dev.safety, want) {
		t.Fatalf("safety writes = %v, want %v", dev.safety, want)
	}
}

func TestPublishDeviceStateOnroadKeepsVehicleMode(t *testing.T) {
	dev := newFakeDevice()
	dev.health.SafetyModel = device.SafetyModel(2)
	dev.health.IgnitionCan = true
	h, _ := newTestReporter(dev, hwmon.Snapshot{}, false)
	ignition, err := h.PublishDeviceState(true)
	if err != nil || !ignition {
		t.Fatalf("ignition=%v err=%v", ignition, err)
	}
	if len(dev.safety) != 0 {
		t.Fatalf("vehicle mode must be left alone, got %v", dev.safety)
	}
}

func TestPublishDeviceStatePowerSave(t *testing.T) {
	dev := newFakeDevice()
	h, _ := newTestReporter(dev, hwmon.Snapshot{}, false)
	_, _ = h.PublishDeviceState(false)
	if !reflect.DeepEqual(dev.powerSave, []bool{true}) {
		t.Fatalf("power save writes = %v", dev.powerSave)
	}
	_, _ = h.PublishDeviceState(false)
	if len(dev.powerSave) != 1 {
		t.Fatalf("power save must only toggle on disagreement: %v", dev.powerSave)
	}
	dev.health.IgnitionLine = true
	_, _ = h.PublishDeviceState(false)
	if !reflect.DeepEqual(dev.powerSave, []bool{true, false}) {
		t.Fatalf("power save writes = %v", dev.powerSave)
	}
}

func TestPublishDeviceStateSpoofedIgnition(t *testing.T) {
	dev := newFakeDevice()
	h, _ := newTestReporter(dev, hwmon.Snapshot{}, true)
	ignition, err := h.PublishDeviceState(true)
	if err != nil || !ignition {
		t.Fatalf("spoofed ignition=%v err=%v", ignition, err)
	}
}

func TestPublishDeviceStateHealthFailurePublishesNothing(t *testing.T) {
	dev := newFakeDevice()
	dev.health.SafetyModel = device.SafetyModel(2)
	dev.healthErr = errFake
	h, bus := newTestReporter(dev, hwmon.Snapshot{}, false)
	ch, _ := bus.Subscribe(messaging.TopicPandaStates)
	if _, err := h.PublishDeviceState(false); !errors.Is(err, errFake) {
		t.Fatalf("err = %v", err)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected publish %+v", ev)
	default:
	}
}

func TestPublishDeviceStateBusHealthFailurePublishesNothing(t *testing.T) {
	dev := newFakeDevice()
	dev.canErr[2] = errFake
	h, bus := newTestReporter(dev, hwmon.Snapshot{}, false)
	ch, _ := bus.Subscribe(messaging.TopicPandaStates)
	if _, err := h.PublishDeviceState(true); !errors.Is(err, errFake) {
		t.Fatalf("err = %v", err)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected publish %+v", ev)
	default:
	}
	if len(dev.safety) != 0 || len(dev.powerSave) != 0 {
		t.Fatalf("no side effects expected on a failed read")
	}
}

func TestPublishDeviceStateMessage(t *testing.T) {
	dev := newFakeDevice()
	dev.health.Faults = 0b101
	dev.health.SBU1VoltageMV = 1500
	dev.health.HarnessStatus = device.HarnessFlipped
	dev.canHealth[1] = device.CanHealth{LastError: device.LecUnknown, LastStoredError: device.LecCRCError, TotalRxCnt: 42}
	h, bus := newTestReporter(dev, hwmon.Snapshot{}, false)
	ch, _ := bus.Subscribe(messaging.TopicPandaStates)
	if _, err := h.PublishDeviceState(true); err != nil {
		t.Fatalf("PublishDeviceState: %v", err)
	}
	ev := <-ch
	if !ev.Valid || len(ev.PandaStates) != 1 {
		t.Fatalf("event %+v", ev)
	}
	ps := ev.PandaStates[0]
	if !reflect.DeepEqual(ps.Faults, []int{0, 2}) {
		t.Fatalf("faults = %v", ps.Faults)
	}
	if ps.Sbu1Voltage != 1.5 || ps.PandaType != "cuatro" || ps.HarnessStatus != "flipped" {
		t.Fatalf("panda state %+v", ps)
	}
	if ps.CanState1.LastError != "unknown" || ps.CanState1.LastStoredError != "crcError" || ps.CanState1.TotalRxCnt != 42 {
		t.Fatalf("can state 1 = %+v", ps.CanState1)
	}
	if ps.CanState0.LastError != "noError" {
		t.Fatalf("can state 0 = %+v", ps.CanState0)
	}
}

func TestPublishDeviceStateOmitsEmptyFaults(t *testing.T) {
	dev := newFakeDevice()
	h, bus := newTestReporter(dev, hwmon.Snapshot{}, false)
	ch, _ := bus.Subscribe(messaging.TopicPandaStates)
	_, _ = h.PublishDeviceState(true)
	ev := <-ch
	if ev.PandaStates[0].Faults != nil {
		t.Fatalf("faults = %v", ev.PandaStates[0].Faults)
	}
}

func TestPublishPeripheralStateUsesHwmon(t *testing.T) {
	dev := newFakeDevice()
	dev.fanRPM = 3000
	h, bus := newTestReporter(dev, hwmon.Snapshot{Voltage: 11800, Current: 900}, false)
	ch, _ := bus.Subscribe(messaging.TopicPeripheralState)
	if err := h.PublishPeripheralState(); err != nil {
		t.Fatalf("PublishPeripheralState: %v", err)
	}
	ps := (<-ch).PeripheralState
	if ps.Voltage != 11800 || ps.Current != 900 || ps.FanSpeedRpm == nil || *ps.FanSpeedRpm != 3000 {
		t.Fatalf("peripheral %+v", ps)
	}
	if dev.healthQueries != 0 {
		t.Fatalf("device health should not be read when hwmon has data")
	}
}

func TestPublishPeripheralStateFallsBackToDevice(t *testing.T) {
	dev := newFakeDevice()
	dev.fanRPMErr = device.ErrUnsupported
	h, bus := newTestReporter(dev, hwmon.Snapshot{}, false)
	ch, _ := bus.Subscribe(messaging.TopicPeripheralState)
	if err := h.PublishPeripheralState(); err != nil {
		t.Fatalf("PublishPeripheralState: %v", err)
	}
	ev := <-ch
	ps := ev.PeripheralState
	if !ev.Valid || ps.Voltage != 12000 || ps.Current != 500 || ps.FanSpeedRpm != nil {
		t.Fatalf("peripheral %+v", ps)
	}
}

func TestPublishPeripheralStateToleratesHealthFailure(t *testing.T) {
	dev := newFakeDevice()
	dev.healthErr = errFake
	h, bus := newTestReporter(dev, hwmon.Snapshot{}, false)
	ch, _ := bus.Subscribe(messaging.TopicPeripheralState)
	if err := h.PublishPeripheralState(); err != nil {
		t.Fatalf("PublishPeripheralState: %v", err)
	}
	if ps := (<-ch).PeripheralState; ps.Voltage != 0 || ps.Current != 0 {
		t.Fatalf("peripheral %+v", ps)
	}
}
