package messaging

import (
	"errors"
	"time"
)

// ErrClosed is returned by a bus after Close.
var ErrClosed = errors.New("messaging: bus closed")

// DefaultQueueDepth is the per-subscription buffer.
const DefaultQueueDepth = 64

// Publisher sends events on a topic. Publish must not block on slow consumers.
type Publisher interface {
	Publish(topic Topic, ev Event) error
}

// Subscriber delivers events of a topic on a channel.
type Subscriber interface {
	Subscribe(topic Topic) (<-chan Event, error)
}

// Bus is a full publish/subscribe transport.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// offer delivers ev without blocking. When ch is full the oldest queued event is dropped.
func offer(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

func stamp(ev Event) Event {
	if ev.LogMonoTime == 0 {
		ev.LogMonoTime = MonoTime()
	}
	if ev.LogTime == 0 {
		ev.LogTime = time.Now().UnixNano()
	}
	return ev
}
