package events

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 64

// Bus fans events out to any number of subscribers. Slow subscribers drop
// events rather than block the publisher.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]chan Event
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Emit implements Emitter.
func (b *Bus) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber
// buffer was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscribe registers a new listener. The returned cancel func closes the
// channel and must be called once the caller is done reading.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
