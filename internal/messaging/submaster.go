package messaging

import (
	"fmt"
	"time"
)

// DefaultAliveTimeout is how old the latest event may be for AllChecks to pass.
const DefaultAliveTimeout = time.Second

// SubMaster polls a set of topics without blocking and keeps the latest event of each.
type SubMaster struct {
	topics  []Topic
	chans   map[Topic]<-chan Event
	latest  map[Topic]Event
	seen    map[Topic]bool
	updated map[Topic]bool

	// Now is the event clock. Defaults to MonoTime.
	Now func() int64
	// AliveTimeout bounds the age of an event considered alive.
	AliveTimeout time.Duration
}

// NewSubMaster subscribes to every topic.
func NewSubMaster(sub Subscriber, topics ...Topic) (*SubMaster, error) {
	sm := &SubMaster{
		topics:       topics,
		chans:        make(map[Topic]<-chan Event, len(topics)),
		latest:       make(map[Topic]Event, len(topics)),
		seen:         make(map[Topic]bool, len(topics)),
		updated:      make(map[Topic]bool, len(topics)),
		Now:          MonoTime,
		AliveTimeout: DefaultAliveTimeout,
	}
	for _, t := range topics {
		ch, err := sub.Subscribe(t)
		if err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", t, err)
		}
		sm.chans[t] = ch
	}
	return sm, nil
}

// Update drains every subscription. Updated reports true for topics that received at least one event.
func (sm *SubMaster) Update() {
	for _, t := range sm.topics {
		sm.updated[t] = false
		ch := sm.chans[t]
	drain:
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					break drain
				}
				sm.latest[t] = ev
				sm.seen[t] = true
				sm.updated[t] = true
			default:
				break drain
			}
		}
	}
}

// Updated reports whether the last Update received an event on t.
func (sm *SubMaster) Updated(t Topic) bool {
	return sm.updated[t]
}

// Latest returns the most recent event on t.
func (sm *SubMaster) Latest(t Topic) (Event, bool) {
	ev, ok := sm.latest[t]
	return ev, ok
}

// LogMonoTime returns the time of the most recent event on t, 0 if none.
func (sm *SubMaster) LogMonoTime(t Topic) int64 {
	return sm.latest[t].LogMonoTime
}

// AllChecks reports whether every topic has a valid event younger than AliveTimeout.
func (sm *SubMaster) AllChecks(topics ...Topic) bool {
	if len(topics) == 0 {
		topics = sm.topics
	}
	now := sm.Now()
	for _, t := range topics {
		if !sm.seen[t] {
			return false
		}
		ev := sm.latest[t]
		if !ev.Valid {
			return false
		}
		if time.Duration(now-ev.LogMonoTime) > sm.AliveTimeout {
			return false
		}
	}
	return true
}
