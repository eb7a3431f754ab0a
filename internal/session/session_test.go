package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/eargollo/reclaim/internal/backend"
	"github.com/eargollo/reclaim/internal/content"
	"github.com/eargollo/reclaim/internal/deletion"
	"github.com/eargollo/reclaim/internal/media"
)

type fakeBackend struct {
	mu         sync.Mutex
	groups     []media.ContentGroup
	failDelete map[int64]error
	deleted    []int64
	sizeLoads  int
}

func (f *fakeBackend) DupesPage(_ context.Context, page int) ([]media.ContentGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if page == 1 {
		return f.groups, nil
	}
	return nil, nil
}

func (f *fakeBackend) Samples(context.Context) ([]media.ContentGroup, error) {
	return nil, nil
}

func (f *fakeBackend) Ignore(context.Context, string) error { return nil }
func (f *fakeBackend) Unignore(context.Context, string) error { return nil }

func (f *fakeBackend) DeleteMedia(_ context.Context, _, _ string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failDelete[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) ServerInfo(context.Context) (backend.ServerInfo, error) {
	return backend.ServerInfo{Name: "plex"}, nil
}

func (f *fakeBackend) DeletedSizes(context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizeLoads++
	return map[string]int64{"Movies": 1}, nil
}

func variant(id, size int64, width int) media.MediaVariant {
	return media.MediaVariant{ID: id, Width: width, Parts: []media.FilePart{{File: fmt.Sprintf("/m/%d", id), Size: size}}}
}

func newSession(t *testing.T, fb *fakeBackend) *Session {
	t.Helper()
	s := New(Deps{Backend: fb, RefreshDelay: time.Hour})
	t.Cleanup(s.Close)
	if err := s.Refresh(context.Background(), content.ModeDuplicate); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return s
}

func selectedIDs(s *Session) string {
	var ids []int64
	for _, v := range s.Selection().Items() {
		ids = append(ids, v.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return fmt.Sprint(ids)
}

func twoGroups() *fakeBackend {
	return &fakeBackend{groups: []media.ContentGroup{
		{Key: "g1", Library: "Movies", Title: "Heat", Media: []media.MediaVariant{variant(1, 500, 1920), variant(2, 500, 1280)}},
		{Key: "g2", Library: "Movies", Title: "Ronin", Ignored: true, Media: []media.MediaVariant{variant(3, 100, 1920), variant(4, 900, 1920)}},
	}}
}

func TestRefreshSeedsDefaultSelection(t *testing.T) {
	s := newSession(t, twoGroups())
	if got := selectedIDs(s); got != "[2]" {
		t.Errorf("selection = %s, want [2]", got)
	}
}

func TestIncludeIgnoredSeedsAndDeselects(t *testing.T) {
	s := newSession(t, twoGroups())
	s.SetIncludeIgnored(true)
	if got := selectedIDs(s); got != "[2 3]" {
		t.Errorf("with ignored = %s, want [2 3]", got)
	}
	s.SetIncludeIgnored(false)
	if got := selectedIDs(s); got != "[2]" {
		t.Errorf("without ignored = %s, want [2]", got)
	}
}

func TestManualEditsAndToggle(t *testing.T) {
	s := newSession(t, twoGroups())
	if sel, err := s.Toggle(2); err != nil || sel {
		t.Fatalf("Toggle(2) = %v, %v", sel, err)
	}
	if sel, err := s.Toggle(1); err != nil || !sel {
		t.Fatalf("Toggle(1) = %v, %v", sel, err)
	}
	if got := selectedIDs(s); got != "[1]" {
		t.Errorf("selection = %s", got)
	}
	if _, err := s.Toggle(42); !errors.Is(err, ErrUnknownMedia) {
		t.Errorf("Toggle(42) err = %v", err)
	}

	s.Invert()
	if got := selectedIDs(s); got != "[2]" {
		t.Errorf("after invert = %s", got)
	}
	s.DeselectAll()
	if s.Selection().Size() != 0 {
		t.Error("DeselectAll left items")
	}
	s.ResetSelection()
	if got := selectedIDs(s); got != "[2]" {
		t.Errorf("after reset = %s", got)
	}
}

func TestDeleteSelectedPartialFailure(t *testing.T) {
	fb := &fakeBackend{
		groups: []media.ContentGroup{
			{Key: "g1", Library: "Movies", Media: []media.MediaVariant{variant(1, 900, 0), variant(2, 10, 0), variant(3, 10, 0)}},
		},
		failDelete: map[int64]error{3: &backend.APIError{StatusCode: 500, Message: "locked"}},
	}
	s := newSession(t, fb)
	loads := fb.sizeLoads

	res, err := s.DeleteSelected(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Deleted) != 1 || len(res.Failed) != 1 {
		t.Fatalf("result deleted=%d failed=%d", len(res.Deleted), len(res.Failed))
	}
	if got := selectedIDs(s); got != "[3]" {
		t.Errorf("selection = %s, want [3]", got)
	}
	if !s.Ledger().Has(2) || s.Ledger().Size() != 1 {
		t.Error("ledger should hold exactly 2")
	}
	if fb.sizeLoads != loads+1 {
		t.Errorf("deleted sizes reloaded %d times", fb.sizeLoads-loads)
	}

	sum := s.Summary()
	if sum.Selected != 1 || sum.Deleted != 1 || sum.DeletedBytes != 10 || sum.Groups != 1 {
		t.Errorf("summary = %+v", sum)
	}

	if err := s.Select(2); !errors.Is(err, ErrAlreadyDeleted) {
		t.Errorf("Select deleted err = %v", err)
	}

	if err := s.Refresh(context.Background(), content.ModeDuplicate); err != nil {
		t.Fatal(err)
	}
	if s.Ledger().Size() != 0 {
		t.Error("Refresh kept the ledger")
	}
}

func TestDeleteOne(t *testing.T) {
	fb := twoGroups()
	s := newSession(t, fb)
	if err := s.DeleteOne(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if s.Selection().Has(2) || !s.Ledger().Has(2) {
		t.Error("variant 2 not moved to ledger")
	}
	if err := s.DeleteOne(context.Background(), 99); !errors.Is(err, ErrUnknownMedia) {
		t.Errorf("unknown id err = %v", err)
	}
}

func TestStartDeleteRunsInBackground(t *testing.T) {
	fb := twoGroups()
	s := newSession(t, fb)
	pending, err := s.StartDelete()
	if err != nil {
		t.Fatal(err)
	}
	if pending.Count != 1 || pending.Bytes != 500 {
		t.Errorf("pending = %+v, want 1 item of 500 bytes", pending)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.Deletion().Deleting() || s.Deletion().LastBatch() == nil {
		if time.Now().After(deadline) {
			t.Fatal("batch did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !s.Ledger().Has(2) {
		t.Error("variant 2 not deleted")
	}
}

func TestStartDeleteConflict(t *testing.T) {
	fb := twoGroups()
	s := newSession(t, fb)
	fb.mu.Lock()
	if _, err := s.StartDelete(); err != nil {
		fb.mu.Unlock()
		t.Fatal(err)
	}
	_, err := s.StartDelete()
	fb.mu.Unlock()
	if !errors.Is(err, deletion.ErrAlreadyDeleting) {
		t.Errorf("second StartDelete err = %v", err)
	}
}

func TestPendingDeleteSkipsSelectionOfIgnoredGroups(t *testing.T) {
	fb := twoGroups()
	s := newSession(t, fb)
	if err := s.Ignore(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	if !s.Selection().Has(2) {
		t.Fatal("ignoring a group should not deselect its variants")
	}
	if got := s.PendingDelete(); got.Count != 0 || got.Bytes != 0 {
		t.Errorf("PendingDelete = %+v, want nothing", got)
	}

	pending, err := s.StartDelete()
	if err != nil {
		t.Fatal(err)
	}
	if pending.Count != 0 {
		t.Errorf("StartDelete pending = %+v, want nothing", pending)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.Deletion().Deleting() || s.Deletion().LastBatch() == nil {
		if time.Now().After(deadline) {
			t.Fatal("batch did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.deleted) != 0 {
		t.Errorf("backend deleted %v", fb.deleted)
	}
}

func TestSummaryCountsComeFromOneSnapshot(t *testing.T) {
	fb := twoGroups()
	s := newSession(t, fb)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.DeleteOne(context.Background(), 2); err != nil {
			t.Error(err)
		}
	}()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		if sum := s.Summary(); sum.Selected+sum.Deleted != 1 {
			t.Fatalf("summary selected=%d deleted=%d, want one of them", sum.Selected, sum.Deleted)
		}
	}
}
