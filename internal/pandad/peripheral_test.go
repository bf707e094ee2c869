package pandad

import (
	"reflect"
	"testing"
	"time"

	"pandad/internal/logging"
	"pandad/internal/messaging"
	"pandad/internal/params"
)

type peripheralRig struct {
	dev   *fakeDevice
	ir    *fakeIR
	bus   *messaging.MemoryBus
	store *params.MemStore
	pc    *PeripheralController
	now   int64
}

func newPeripheralRig(t *testing.T, noFan bool) *peripheralRig {
	t.Helper()
	r := &peripheralRig{
		dev:   newFakeDevice(),
		ir:    &fakeIR{},
		bus:   messaging.NewMemoryBus(16),
		store: params.NewMemStore(),
		now:   testNow,
	}
	pc, err := NewPeripheralController(r.dev, r.ir, r.store, r.bus, noFan, logging.Discard())
	if err != nil {
		t.Fatalf("NewPeripheralController: %v", err)
	}
	pc.now = func() int64 { return r.now }
	r.pc = pc
	return r
}

func (r *peripheralRig) publishFan(pct int) {
	_ = r.bus.Publish(messaging.TopicDeviceState, messaging.Event{Valid: true, DeviceState: &messaging.DeviceState{FanSpeedPercentDesired: pct}})
}

func (r *peripheralRig) publishCam(frameID uint32, lines float64) {
	_ = r.bus.Publish(messaging.TopicDriverCameraState, messaging.Event{
		LogMonoTime:       r.now,
		Valid:             true,
		DriverCameraState: &messaging.DriverCameraState{FrameID: frameID, IntegLines: lines},
	})
}

func TestIRPowerFromIntegLines(t *testing.T) {
	for _, tc := range []struct {
		lines float64
		want  int
	}{
		{300, 0},
		{400, 0},
		{700, 50},
		{1000, 100},
		{1001, 100},
		{401, 0},
		{406, 1},
	} {
		if got := IRPowerFromIntegLines(tc.lines); got != tc.want {
			t.Errorf("IRPowerFromIntegLines(%v) = %d, want %d", tc.lines, got, tc.want)
		}
	}
}

func TestIRDeviceValueRoundsHalfToEven(t *testing.T) {
	for pct, want := range map[int]int{0: 0, 1: 0, 3: 2, 5: 2, 50: 25, 99: 50, 100: 50} {
		if got := IRDeviceValue(pct); got != want {
			t.Errorf("IRDeviceValue(%d) = %d, want %d", pct, got, want)
		}
	}
}

func TestFanSentOnChangeAndCadence(t *testing.T) {
	r := newPeripheralRig(t, false)
	r.pc.Update()
	if len(r.dev.fan) != 0 {
		t.Fatalf("fan sent without a target: %v", r.dev.fan)
	}
	r.publishFan(40)
	r.pc.Update()
	r.publishFan(40)
	r.pc.Update()
	if !reflect.DeepEqual(r.dev.fan, []int{40}) {
		t.Fatalf("fan writes = %v", r.dev.fan)
	}
	r.publishFan(60)
	r.pc.Update()
	if !reflect.DeepEqual(r.dev.fan, []int{40, 60}) {
		t.Fatalf("fan writes = %v", r.dev.fan)
	}
	// run up to the 100th update without new deviceState
	for r.pc.frame < 99 {
		r.pc.Update()
	}
	if len(r.dev.fan) != 2 {
		t.Fatalf("unexpected resend before cadence: %v", r.dev.fan)
	}
	r.pc.Update()
	if !reflect.DeepEqual(r.dev.fan, []int{40, 60, 60}) {
		t.Fatalf("fan writes = %v", r.dev.fan)
	}
}

func TestNoFanControl(t *testing.T) {
	r := newPeripheralRig(t, true)
	r.publishFan(40)
	r.pc.Update()
	if len(r.dev.fan) != 0 {
		t.Fatalf("fan writes with fan control disabled: %v", r.dev.fan)
	}
}

func TestIRFollowsCameraAndTimesOut(t *testing.T) {
	r := newPeripheralRig(t, false)
	r.pc.Update()
	// first update always sends the initial zero
	if !reflect.DeepEqual(r.dev.ir, []int{0}) || !reflect.DeepEqual(r.ir.set, []int{0}) {
		t.Fatalf("initial ir = %v / %v", r.dev.ir, r.ir.set)
	}

	// saturate the filter well past the linear range
	for i := uint32(1); i <= 400; i++ {
		r.now += int64(50 * time.Millisecond)
		r.publishCam(i, 5000)
		r.pc.Update()
	}
	if r.pc.IRPower() != 100 {
		t.Fatalf("ir power = %d", r.pc.IRPower())
	}
	if r.ir.set[len(r.ir.set)-1] != 100 || r.dev.ir[len(r.dev.ir)-1] != 50 {
		t.Fatalf("last ir writes platform=%d device=%d", r.ir.set[len(r.ir.set)-1], r.dev.ir[len(r.dev.ir)-1])
	}

	r.now += int64(1100 * time.Millisecond)
	r.pc.Update()
	if r.pc.IRPower() != 0 || r.dev.ir[len(r.dev.ir)-1] != 0 {
		t.Fatalf("ir should time out, power=%d", r.pc.IRPower())
	}
}

func TestIRFilterResetsWhenCameraRestarts(t *testing.T) {
	r := newPeripheralRig(t, false)
	for i := uint32(1); i <= 400; i++ {
		r.now += int64(50 * time.Millisecond)
		r.publishCam(i, 5000)
		r.pc.Update()
	}
	if r.pc.integLines.X() < 1000 {
		t.Fatalf("filter did not charge: %v", r.pc.integLines.X())
	}
	_ = r.store.PutBool(params.IsDriverViewEnabled, true)
	r.now += int64(50 * time.Millisecond)
	r.publishCam(1, 0)
	r.pc.Update()
	if !r.pc.driverView {
		t.Fatalf("driver view flag not re-read on restart")
	}
	if r.pc.integLines.X() != 0 || r.pc.integLinesDView.X() != 0 {
		t.Fatalf("filters not reset: %v %v", r.pc.integLines.X(), r.pc.integLinesDView.X())
	}
	if r.pc.IRPower() != 0 {
		t.Fatalf("ir power = %d", r.pc.IRPower())
	}
}
