// Package sink records published health events to telemetry backends.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pandad/internal/messaging"
)

// Writer persists one event of a topic.
type Writer interface {
	WriteEvent(topic messaging.Topic, ev messaging.Event) error
}

// HealthTopics are the topics forwarded to sinks by default.
var HealthTopics = []messaging.Topic{messaging.TopicPandaStates, messaging.TopicPeripheralState}

type tagged struct {
	topic messaging.Topic
	ev    messaging.Event
}

// Forwarder merges the subscriptions of several topics. Events published after
// Subscribe returns are queued by the bus until Run drains them.
type Forwarder struct {
	merged chan tagged
	done   chan struct{}
}

// Subscribe registers every topic on sub, HealthTopics when none are given.
func Subscribe(sub messaging.Subscriber, topics ...messaging.Topic) (*Forwarder, error) {
	if len(topics) == 0 {
		topics = HealthTopics
	}
	chans := make([]<-chan messaging.Event, len(topics))
	for i, t := range topics {
		ch, err := sub.Subscribe(t)
		if err != nil {
			return nil, err
		}
		chans[i] = ch
	}

	f := &Forwarder{merged: make(chan tagged), done: make(chan struct{})}
	var wg sync.WaitGroup
	for i, ch := range chans {
		wg.Add(1)
		go func(t messaging.Topic, ch <-chan messaging.Event) {
			defer wg.Done()
			for ev := range ch {
				select {
				case f.merged <- tagged{t, ev}:
				case <-f.done:
					return
				}
			}
		}(topics[i], ch)
	}
	go func() {
		wg.Wait()
		close(f.merged)
	}()
	return f, nil
}

// Run hands every event to w until ctx is cancelled or every subscription is
// closed by the bus. Write errors are logged and do not stop forwarding. Run
// must be called at most once.
func (f *Forwarder) Run(ctx context.Context, w Writer, log *slog.Logger) error {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-f.merged:
			if !ok {
				return nil
			}
			if err := w.WriteEvent(m.topic, m.ev); err != nil {
				log.Error("sink write failed", "topic", m.topic, "err", err)
			}
		}
	}
}

// Forward subscribes to topics and runs the forwarder.
func Forward(ctx context.Context, sub messaging.Subscriber, w Writer, log *slog.Logger, topics ...messaging.Topic) error {
	f, err := Subscribe(sub, topics...)
	if err != nil {
		return err
	}
	return f.Run(ctx, w, log)
}

func eventTime(ev messaging.Event) time.Time {
	return ev.WallTime().UTC()
}
