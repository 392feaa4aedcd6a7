package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const defaultBuffer = 64

// Publisher is the narrow view of the bus used by services that emit events.
type Publisher interface {
	Publish(eventType Type, data map[string]any)
}

// Bus fans hub events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	buffer  int
	dropped atomic.Uint64
	closed  bool
	now     func() time.Time
	logger  zerolog.Logger
}

// NewBus returns an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: defaultBuffer,
		now:    time.Now,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a new subscriber. The returned cancel func removes it
// and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if existing, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(existing)
			}
		})
	}
}

// Publish stamps and delivers an event to every subscriber.
func (b *Bus) Publish(eventType Type, data map[string]any) {
	event := Event{
		Object: "event",
		Type:   eventType,
		At:     b.now().UTC(),
		Data:   data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Warn().Int("subscriber", id).Str("type", string(eventType)).Msg("subscriber buffer full, event dropped")
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was
// not keeping up.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
