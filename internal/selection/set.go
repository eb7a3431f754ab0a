// Package selection holds the delete intent (Set), the confirmed deletions
// (Ledger) and the default keep-the-best policy.
package selection

import (
	"sync"

	"github.com/eargollo/reclaim/internal/events"
	"github.com/eargollo/reclaim/internal/media"
)

// Set is the collection of variants the user intends to delete.
//
// A variant recorded in the ledger can never be in the set: Add refuses it
// and Commit moves a variant across both under their locks. Locks are always
// taken set first, then ledger.
//
// Mutations build a new map and swap it in, so a reader holding the result
// of Items never sees later changes.
type Set struct {
	ledger *Ledger
	bus    *events.Bus

	mu    sync.RWMutex
	items map[int64]media.MediaVariant
}

// NewSet creates an empty selection bound to ledger. bus may be nil; a nil
// ledger gets a private one.
func NewSet(ledger *Ledger, bus *events.Bus) *Set {
	if ledger == nil {
		ledger = NewLedger(bus)
	}
	return &Set{ledger: ledger, bus: bus, items: map[int64]media.MediaVariant{}}
}

// Ledger returns the ledger the set is bound to.
func (s *Set) Ledger() *Ledger { return s.ledger }

func (s *Set) clone(extra int) map[int64]media.MediaVariant {
	next := make(map[int64]media.MediaVariant, len(s.items)+extra)
	for id, v := range s.items {
		next[id] = v
	}
	return next
}

// Add selects v. It returns false, leaving the set unchanged, when v was
// already deleted.
func (s *Set) Add(v media.MediaVariant) bool {
	return s.AddAll([]media.MediaVariant{v}) == 1
}

// AddAll selects every variant of vs that is not deleted, in one step, and
// returns how many are selected afterwards out of vs.
func (s *Set) AddAll(vs []media.MediaVariant) int {
	s.mu.Lock()
	next := s.clone(len(vs))
	accepted, changed := 0, false
	for _, v := range vs {
		if s.ledger.Has(v.ID) {
			continue
		}
		accepted++
		if _, ok := next[v.ID]; !ok {
			changed = true
		}
		next[v.ID] = v
	}
	if changed {
		s.items = next
	}
	s.mu.Unlock()
	if changed {
		s.bus.Publish(events.TopicSelection)
	}
	return accepted
}

// Remove deselects v.
func (s *Set) Remove(v media.MediaVariant) {
	s.mu.Lock()
	_, ok := s.items[v.ID]
	if ok {
		next := s.clone(0)
		delete(next, v.ID)
		s.items = next
	}
	s.mu.Unlock()
	if ok {
		s.bus.Publish(events.TopicSelection)
	}
}

// RemoveGroups deselects every variant of groups.
func (s *Set) RemoveGroups(groups []media.ContentGroup) {
	s.mu.Lock()
	next := s.clone(0)
	changed := false
	for _, g := range groups {
		for _, v := range g.Media {
			if _, ok := next[v.ID]; ok {
				delete(next, v.ID)
				changed = true
			}
		}
	}
	if changed {
		s.items = next
	}
	s.mu.Unlock()
	if changed {
		s.bus.Publish(events.TopicSelection)
	}
}

// Reset deselects everything.
func (s *Set) Reset() {
	s.mu.Lock()
	s.items = map[int64]media.MediaVariant{}
	s.mu.Unlock()
	s.bus.Publish(events.TopicSelection)
}

// Invert flips every variant of groups: selected ones are deselected and
// the rest are selected, except deleted variants, which stay unselected.
// The new selection replaces the old one in a single step.
func (s *Set) Invert(groups []media.ContentGroup) {
	s.mu.Lock()
	next := s.clone(0)
	for _, g := range groups {
		for _, v := range g.Media {
			if _, ok := s.items[v.ID]; ok {
				delete(next, v.ID)
				continue
			}
			if s.ledger.Has(v.ID) {
				continue
			}
			next[v.ID] = v
		}
	}
	s.items = next
	s.mu.Unlock()
	s.bus.Publish(events.TopicSelection)
}

// Commit removes v from the selection and records it in the ledger as one
// step. Only the deletion coordinator calls it, after the backend confirmed
// the delete.
func (s *Set) Commit(v media.MediaVariant) {
	s.mu.Lock()
	s.ledger.mu.Lock()
	if _, ok := s.items[v.ID]; ok {
		next := s.clone(0)
		delete(next, v.ID)
		s.items = next
	}
	s.ledger.recordLocked(v)
	s.ledger.mu.Unlock()
	s.mu.Unlock()

	s.bus.Publish(events.TopicSelection)
	s.ledger.bus.Publish(events.TopicLedger)
}

// Has reports whether id is selected.
func (s *Set) Has(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Size is the number of selected variants.
func (s *Set) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// TotalSizeBytes sums TotalSize over the selection.
func (s *Set) TotalSizeBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumSizes(s.items)
}

// Items returns the selected variants in no particular order.
func (s *Set) Items() []media.MediaVariant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.items)
}

// Snapshot is the selection and the ledger captured at one instant. A
// variant is never both selected and deleted in a Snapshot.
type Snapshot struct {
	selected map[int64]media.MediaVariant
	deleted  map[int64]media.MediaVariant
}

// Snapshot reads the selection and the ledger under both locks. The maps are
// only ever replaced, so the snapshot shares them without copying.
func (s *Set) Snapshot() Snapshot {
	s.mu.RLock()
	s.ledger.mu.RLock()
	snap := Snapshot{selected: s.items, deleted: s.ledger.items}
	s.ledger.mu.RUnlock()
	s.mu.RUnlock()
	return snap
}

// Selected reports whether id was selected.
func (s Snapshot) Selected(id int64) bool {
	_, ok := s.selected[id]
	return ok
}

// Deleted reports whether id was deleted.
func (s Snapshot) Deleted(id int64) bool {
	_, ok := s.deleted[id]
	return ok
}

func (s Snapshot) SelectedCount() int { return len(s.selected) }
func (s Snapshot) SelectedBytes() int64 { return sumSizes(s.selected) }
func (s Snapshot) DeletedCount() int { return len(s.deleted) }
func (s Snapshot) DeletedBytes() int64 { return sumSizes(s.deleted) }

// SelectedItems returns the selected variants in no particular order.
func (s Snapshot) SelectedItems() []media.MediaVariant { return values(s.selected) }
