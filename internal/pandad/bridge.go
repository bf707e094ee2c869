package pandad

import (
	"log/slog"
	"time"

	"pandad/internal/device"
	"pandad/internal/messaging"
)

const (
	// MaxSendcanAge is the oldest outbound command batch that is still written to the device.
	MaxSendcanAge = time.Second
	// MaxSendcanSkew is how far in the future a batch stamp may be before it is treated as corrupt.
	MaxSendcanSkew = 10 * time.Millisecond
)

// CanBridge moves frames between the device and the bus.
type CanBridge struct {
	dev      device.Device
	pub      messaging.Publisher
	sendcan  *messaging.SubMaster
	loopback bool
	fakeSend bool
	log      *slog.Logger
	now      func() int64
}

// NewCanBridge subscribes to sendcan on sub.
func NewCanBridge(dev device.Device, pub messaging.Publisher, sub messaging.Subscriber, loopback, fakeSend bool, log *slog.Logger) (*CanBridge, error) {
	sm, err := messaging.NewSubMaster(sub, messaging.TopicSendcan)
	if err != nil {
		return nil, err
	}
	return &CanBridge{
		dev:      dev,
		pub:      pub,
		sendcan:  sm,
		loopback: loopback,
		fakeSend: fakeSend,
		log:      log,
		now:      messaging.MonoTime,
	}, nil
}

// Recv publishes one can batch and reports whether the device read succeeded.
// A failed read publishes an empty batch marked invalid.
func (b *CanBridge) Recv() bool {
	frames, err := b.dev.CanRecv()
	healthy := err == nil
	if err != nil {
		b.log.Debug("can recv failed", "err", err)
		frames = nil
	}
	ev := messaging.Event{Valid: healthy, Can: make([]messaging.CanData, 0, len(frames))}
	for _, f := range frames {
		ev.Can = append(ev.Can, messaging.CanData{Address: f.Address, Dat: f.Data, Src: f.Bus})
	}
	if err := b.pub.Publish(messaging.TopicCan, ev); err != nil {
		b.log.Error("publish can failed", "err", err)
	}
	return healthy
}

// Send writes the newest sendcan batch, if any arrived since the last call.
// It reports whether frames were handed to the device.
func (b *CanBridge) Send() bool {
	b.sendcan.Update()
	if !b.sendcan.Updated(messaging.TopicSendcan) {
		return false
	}
	ev, _ := b.sendcan.Latest(messaging.TopicSendcan)
	cur := b.now()
	age := time.Duration(cur - ev.LogMonoTime)
	if age < -MaxSendcanSkew {
		b.log.Error("sendcan stamped in the future", "now", cur, "msg_time", ev.LogMonoTime, "age", age)
		return false
	}
	if age >= MaxSendcanAge && !b.loopback {
		b.log.Error("sendcan too old to send", "now", cur, "msg_time", ev.LogMonoTime, "age", age)
		return false
	}
	if b.fakeSend {
		b.log.Info("fake send", "frames", len(ev.Sendcan))
		return false
	}
	frames := make([]device.Frame, len(ev.Sendcan))
	for i, c := range ev.Sendcan {
		frames[i] = device.Frame{Address: c.Address, Data: c.Dat, Bus: c.Src}
	}
	if err := b.dev.CanSendMany(frames); err != nil {
		b.log.Error("can send failed", "frames", len(frames), "err", err)
		return false
	}
	return true
}
