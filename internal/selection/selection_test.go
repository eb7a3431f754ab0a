package selection

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/eargollo/reclaim/internal/events"
	"github.com/eargollo/reclaim/internal/media"
)

func variant(id, size int64, width int) media.MediaVariant {
	return media.MediaVariant{ID: id, Width: width, Parts: []media.FilePart{{File: fmt.Sprintf("/m/%d.mkv", id), Size: size}}}
}

func group(key string, vs ...media.MediaVariant) media.ContentGroup {
	return media.ContentGroup{Key: key, Library: "Movies", Title: key, Media: vs}
}

func TestSelectForRemovalTieOnSizeBrokenByWidth(t *testing.T) {
	g := group("G1", variant(1, 500, 1920), variant(2, 500, 1280))
	got := IDs(SelectForRemoval(g))
	if fmt.Sprint(got) != "[2]" {
		t.Errorf("SelectForRemoval = %v, want [2]", got)
	}
}

func TestSelectForRemovalSizeBeatsWidth(t *testing.T) {
	g := group("G", variant(1, 300, 3840), variant(2, 900, 1280), variant(3, 600, 1920))
	keep, _ := Keeper(g)
	if keep.ID != 2 {
		t.Errorf("Keeper = %d, want 2", keep.ID)
	}
	if got := IDs(SelectForRemoval(g)); fmt.Sprint(got) != "[3 1]" {
		t.Errorf("SelectForRemoval = %v, want [3 1]", got)
	}
}

func TestSelectForRemovalFullTieKeepsServerOrder(t *testing.T) {
	g := group("G", variant(5, 100, 1920), variant(4, 100, 1920), variant(3, 100, 1920))
	if got := IDs(SelectForRemoval(g)); fmt.Sprint(got) != "[4 3]" {
		t.Errorf("SelectForRemoval = %v, want [4 3]", got)
	}
}

func TestSelectForRemovalSingleVariant(t *testing.T) {
	if got := SelectForRemoval(group("G", variant(1, 10, 10))); len(got) != 0 {
		t.Errorf("single variant selected %v", IDs(got))
	}
	if _, ok := Keeper(group("empty")); ok {
		t.Error("Keeper of empty group should report false")
	}
}

func TestSelectForRemovalDoesNotReorderGroup(t *testing.T) {
	g := group("G", variant(1, 1, 1), variant(2, 9, 1))
	SelectForRemoval(g)
	if g.Media[0].ID != 1 {
		t.Error("group media was re-sorted in place")
	}
}

func TestSelectForRemovalProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 500; iter++ {
		n := 2 + rng.Intn(5)
		vs := make([]media.MediaVariant, n)
		for i := range vs {
			vs[i] = variant(int64(i+1), int64(rng.Intn(4))*100, []int{720, 1280, 1920}[rng.Intn(3)])
		}
		g := group("G", vs...)

		// Expected keeper: max size, then max width, then first in order.
		best := vs[0]
		for _, v := range vs[1:] {
			if v.TotalSize() > best.TotalSize() ||
				(v.TotalSize() == best.TotalSize() && v.Width > best.Width) {
				best = v
			}
		}

		got := IDs(SelectForRemoval(g))
		if len(got) != n-1 {
			t.Fatalf("iter %d: got %d ids, want %d", iter, len(got), n-1)
		}
		for _, id := range got {
			if id == best.ID {
				t.Fatalf("iter %d: keeper %d selected for removal (%v)", iter, best.ID, got)
			}
		}
	}
}

func TestSetBasics(t *testing.T) {
	s := NewSet(NewLedger(nil), nil)
	a, b := variant(1, 100, 0), variant(2, 250, 0)
	s.Add(a)
	s.Add(b)
	s.Add(a)
	if s.Size() != 2 || !s.Has(1) || s.TotalSizeBytes() != 350 {
		t.Fatalf("size=%d has1=%v bytes=%d", s.Size(), s.Has(1), s.TotalSizeBytes())
	}
	s.Remove(a)
	if s.Has(1) || s.Size() != 1 {
		t.Error("Remove did not deselect")
	}
	s.Reset()
	if s.Size() != 0 {
		t.Error("Reset left items")
	}
}

func TestSetRefusesDeletedVariants(t *testing.T) {
	l := NewLedger(nil)
	s := NewSet(l, nil)
	v := variant(1, 10, 0)
	l.Record(v)
	if s.Add(v) {
		t.Error("Add accepted a deleted variant")
	}
	if s.Has(1) {
		t.Error("deleted variant is selected")
	}
}

func TestInvert(t *testing.T) {
	l := NewLedger(nil)
	s := NewSet(l, nil)
	g1 := group("a", variant(1, 1, 0), variant(2, 1, 0))
	g2 := group("b", variant(3, 1, 0), variant(4, 1, 0))
	l.Record(variant(4, 1, 0))
	s.Add(variant(1, 1, 0))
	s.Add(variant(99, 1, 0)) // outside the inverted groups

	s.Invert([]media.ContentGroup{g1, g2})

	var got []int64
	for _, v := range s.Items() {
		got = append(got, v.ID)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if fmt.Sprint(got) != "[2 3 99]" {
		t.Errorf("after invert = %v, want [2 3 99]", got)
	}
}

func TestCommitMovesToLedger(t *testing.T) {
	bus := events.New()
	var sel, led int
	bus.Subscribe(events.TopicSelection, func(events.Event) { sel++ })
	bus.Subscribe(events.TopicLedger, func(events.Event) { led++ })

	l := NewLedger(bus)
	s := NewSet(l, bus)
	v := variant(1, 10, 0)
	s.Add(v)
	sel = 0

	s.Commit(v)
	if s.Has(1) || !l.Has(1) || l.Size() != 1 || l.TotalSizeBytes() != 10 {
		t.Errorf("set has=%v ledger has=%v", s.Has(1), l.Has(1))
	}
	if sel != 1 || led != 1 {
		t.Errorf("events selection=%d ledger=%d, want 1 and 1", sel, led)
	}
}

func TestRemoveGroups(t *testing.T) {
	s := NewSet(nil, nil)
	g := group("a", variant(1, 1, 0), variant(2, 1, 0))
	s.AddAll([]media.MediaVariant{variant(1, 1, 0), variant(2, 1, 0), variant(3, 1, 0)})
	s.RemoveGroups([]media.ContentGroup{g})
	if s.Size() != 1 || !s.Has(3) {
		t.Errorf("after RemoveGroups size=%d", s.Size())
	}
}

func TestSelectionAndLedgerStayDisjointUnderConcurrency(t *testing.T) {
	l := NewLedger(nil)
	s := NewSet(l, nil)
	const n = 200
	vs := make([]media.MediaVariant, n)
	for i := range vs {
		vs[i] = variant(int64(i), 1, 0)
	}
	groups := []media.ContentGroup{group("all", vs...)}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(3)
		go func(v media.MediaVariant) { defer wg.Done(); s.Add(v) }(vs[i])
		go func(v media.MediaVariant) { defer wg.Done(); s.Commit(v) }(vs[i])
		go func() { defer wg.Done(); s.Invert(groups) }()
	}
	wg.Wait()

	for _, v := range s.Items() {
		if l.Has(v.ID) {
			t.Fatalf("variant %d is both selected and deleted", v.ID)
		}
	}
	if l.Size() != n {
		t.Errorf("ledger size = %d, want %d", l.Size(), n)
	}
}

func TestSnapshotNeverSeesVariantSelectedAndDeleted(t *testing.T) {
	l := NewLedger(nil)
	s := NewSet(l, nil)
	const n = 200
	vs := make([]media.MediaVariant, n)
	for i := range vs {
		vs[i] = variant(int64(i), 1, 0)
	}
	s.AddAll(vs)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, v := range vs {
			s.Commit(v)
		}
	}()

	torn := 0
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		snap := s.Snapshot()
		if snap.SelectedCount()+snap.DeletedCount() != n {
			torn++
		}
		for _, v := range vs {
			if snap.Selected(v.ID) && snap.Deleted(v.ID) {
				torn++
			}
		}
	}
	if torn != 0 {
		t.Errorf("snapshots with a variant both selected and deleted: %d", torn)
	}

	snap := s.Snapshot()
	if snap.SelectedCount() != 0 || snap.DeletedCount() != n || snap.DeletedBytes() != n {
		t.Errorf("final snapshot selected=%d deleted=%d bytes=%d", snap.SelectedCount(), snap.DeletedCount(), snap.DeletedBytes())
	}
}

func TestSnapshotIsStableAfterLaterChanges(t *testing.T) {
	s := NewSet(nil, nil)
	s.Add(variant(1, 10, 0))
	snap := s.Snapshot()
	s.Commit(variant(1, 10, 0))
	s.Add(variant(2, 5, 0))

	if !snap.Selected(1) || snap.Deleted(1) || snap.SelectedCount() != 1 || snap.SelectedBytes() != 10 {
		t.Error("snapshot changed after later mutations")
	}
	if got := len(snap.SelectedItems()); got != 1 {
		t.Errorf("SelectedItems = %d, want 1", got)
	}
}
