// Package events carries change notifications between the repository, the
// selection set, the deletion ledger and their dependents.
package events

import (
	"sync"
	"time"
)

// Topic names the state that changed.
type Topic string

const (
	TopicContent   Topic = "content"
	TopicSelection Topic = "selection"
	TopicLedger    Topic = "ledger"
)

// Event is delivered to subscribers after a mutation has been applied.
type Event struct {
	Topic Topic
	At    time.Time
}

// Handler receives events. Handlers run synchronously on the publishing
// goroutine and may read or mutate other components, but must not block.
type Handler func(Event)

type subscription struct {
	id int
	h  Handler
}

// Bus is a synchronous publish/subscribe hub. The zero value is not usable;
// call New. A nil *Bus is valid and drops every event.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic][]subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			next := make([]subscription, 0, len(list))
			for _, s := range list {
				if s.id != id {
					next = append(next, s)
				}
			}
			b.subs[topic] = next
		})
	}
}

// Publish delivers an event for topic to every current subscriber, in
// subscription order. Callers must not hold locks that handlers may take.
func (b *Bus) Publish(topic Topic) {
	if b == nil {
		return
	}
	b.mu.RLock()
	list := b.subs[topic]
	b.mu.RUnlock()

	ev := Event{Topic: topic, At: time.Now()}
	for _, s := range list {
		s.h(ev)
	}
}
