package messaging

import "sync"

// MemoryBus is an in-process Bus.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[Topic][]chan Event
	depth  int
	closed bool
}

// NewMemoryBus creates an in-process bus. depth <= 0 uses DefaultQueueDepth.
func NewMemoryBus(depth int) *MemoryBus {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &MemoryBus{subs: make(map[Topic][]chan Event), depth: depth}
}

// Publish stamps ev and offers it to every subscriber of topic.
func (b *MemoryBus) Publish(topic Topic, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	ev = stamp(ev)
	for _, ch := range b.subs[topic] {
		offer(ch, ev)
	}
	return nil
}

// Subscribe registers a new subscription on topic.
func (b *MemoryBus) Subscribe(topic Topic) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	ch := make(chan Event, b.depth)
	b.subs[topic] = append(b.subs[topic], ch)
	return ch, nil
}

// Close closes every subscription channel.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = nil
	return nil
}
