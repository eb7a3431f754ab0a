package selection

import (
	"sync"

	"github.com/eargollo/reclaim/internal/events"
	"github.com/eargollo/reclaim/internal/media"
)

// Ledger records the variants the backend confirmed deleted during this
// session. It only grows, except on Reset. It never talks to the backend.
type Ledger struct {
	bus *events.Bus

	mu    sync.RWMutex
	items map[int64]media.MediaVariant
}

// NewLedger creates an empty ledger. bus may be nil.
func NewLedger(bus *events.Bus) *Ledger {
	return &Ledger{bus: bus, items: map[int64]media.MediaVariant{}}
}

// Record adds v to the ledger.
func (l *Ledger) Record(v media.MediaVariant) {
	l.mu.Lock()
	l.recordLocked(v)
	l.mu.Unlock()
	l.bus.Publish(events.TopicLedger)
}

func (l *Ledger) recordLocked(v media.MediaVariant) {
	next := make(map[int64]media.MediaVariant, len(l.items)+1)
	for id, m := range l.items {
		next[id] = m
	}
	next[v.ID] = v
	l.items = next
}

// Reset empties the ledger.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.items = map[int64]media.MediaVariant{}
	l.mu.Unlock()
	l.bus.Publish(events.TopicLedger)
}

// Has reports whether id was deleted.
func (l *Ledger) Has(id int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.items[id]
	return ok
}

// Size is the number of deleted variants.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// TotalSizeBytes sums the size of every deleted variant.
func (l *Ledger) TotalSizeBytes() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sumSizes(l.items)
}

// Items returns the deleted variants in no particular order.
func (l *Ledger) Items() []media.MediaVariant {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return values(l.items)
}

func sumSizes(items map[int64]media.MediaVariant) int64 {
	var total int64
	for _, v := range items {
		total += v.TotalSize()
	}
	return total
}

func values(items map[int64]media.MediaVariant) []media.MediaVariant {
	out := make([]media.MediaVariant, 0, len(items))
	for _, v := range items {
		out = append(out, v)
	}
	return out
}
