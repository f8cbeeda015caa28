// Package journal records lock lifecycle events for auditing and for
// the live watch feed. Journals are advisory: a failed write never
// affects the lock protocol.
package journal

import (
	"context"
	"sync"
	"time"
)

// Kind classifies a lifecycle event.
type Kind string

const (
	KindQueued    Kind = "queued"
	KindActivated Kind = "activated"
	KindReleased  Kind = "released"
	KindStalled   Kind = "stalled"
	KindStuck     Kind = "stuck"
)

// Event is one lock lifecycle transition.
type Event struct {
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	RequestID string    `json:"requestId"`
	Detail    string    `json:"detail,omitempty"`
}

// Journal receives lifecycle events.
type Journal interface {
	Record(ctx context.Context, ev Event) error
}

const defaultCapacity = 1024

// InMemory keeps the most recent events in a ring buffer and fans them
// out to subscribers.
type InMemory struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	subs     []chan Event
}

// NewInMemory returns an in-memory journal holding up to capacity
// events; capacity <= 0 uses the default.
func NewInMemory(capacity int) *InMemory {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &InMemory{capacity: capacity}
}

// Record implements Journal.Record.
func (j *InMemory) Record(ctx context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	j.mu.Lock()
	j.events = append(j.events, ev)
	if len(j.events) > j.capacity {
		j.events = j.events[len(j.events)-j.capacity:]
	}
	subs := append([]chan Event(nil), j.subs...)
	j.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Events returns a copy of the buffered events, oldest first.
func (j *InMemory) Events() []Event {
	j.mu.Lock()
	out := append([]Event(nil), j.events...)
	j.mu.Unlock()
	return out
}

// Subscribe returns a channel receiving future events. Slow consumers
// drop events rather than block the recorder.
func (j *InMemory) Subscribe() chan Event {
	ch := make(chan Event, 64)
	j.mu.Lock()
	j.subs = append(j.subs, ch)
	j.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (j *InMemory) Unsubscribe(ch chan Event) {
	j.mu.Lock()
	for i, c := range j.subs {
		if c == ch {
			j.subs[i] = j.subs[len(j.subs)-1]
			j.subs = j.subs[:len(j.subs)-1]
			close(c)
			break
		}
	}
	j.mu.Unlock()
}
