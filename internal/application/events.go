package application

import (
	"sync"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

// DefaultEventBuffer is the per-subscriber queue length.
const DefaultEventBuffer = 32

// EventBus fans vault events out to subscribers. Publish never blocks: when a
// subscriber's queue is full the oldest queued event is dropped.
type EventBus struct {
	mu     sync.Mutex
	subs   map[int]chan model.Event
	nextID int
	buffer int
}

// NewEventBus creates a bus whose subscribers each queue up to buffer events.
func NewEventBus(buffer int) *EventBus {
	if buffer < 1 {
		buffer = DefaultEventBuffer
	}
	return &EventBus{
		subs:   make(map[int]chan model.Event),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (b *EventBus) Subscribe() (<-chan model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan model.Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers e to every subscriber.
func (b *EventBus) Publish(e model.Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
			continue
		default:
		}
		// Full: drop the oldest and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (b *EventBus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
