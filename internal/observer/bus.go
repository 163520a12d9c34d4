// Package observer delivers coordinator state changes to consumers. The bus
// is an in-memory fanout: publishes never block, subscribers receive
// immutable snapshots on buffered channels, and slow subscribers drop events
// rather than stalling a coordinator. Consumers that cannot subscribe may
// instead poll the coordinators' State/ActiveJob accessors on a short timer;
// the bus exists so tests and the UI do not have to.
package observer

import (
	"sync"
	"time"

	"podbay/internal/episodekey"
)

// Kind partitions events by the coordinator that produced them.
type Kind string

const (
	KindDownload      Kind = "download"
	KindTranscription Kind = "transcription"
	KindReconcile     Kind = "reconcile"
)

// Event is one immutable state snapshot. Payload is the publishing
// coordinator's snapshot type and must not be mutated by receivers.
type Event struct {
	Kind    Kind
	Key     episodekey.Key
	Time    time.Time
	Payload any
}

// Bus is the fanout contract exposed to coordinators and consumers.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (<-chan Event, func())
}

// New returns an in-memory bus. It owns no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.Mutex
	subs map[uint64]chan Event
	seq  uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	channels := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		channels = append(channels, ch)
	}
	b.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- e:
		default:
			// Slow subscriber: drop rather than block the coordinator.
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	return ch, unsubscribe
}
