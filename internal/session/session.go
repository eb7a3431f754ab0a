// Package session wires the content repository, selection, ledger, deletion
// coordinator and server info around one backend and keeps the default
// selection in step with the content snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eargollo/reclaim/internal/content"
	"github.com/eargollo/reclaim/internal/deletion"
	"github.com/eargollo/reclaim/internal/events"
	"github.com/eargollo/reclaim/internal/media"
	"github.com/eargollo/reclaim/internal/selection"
	"github.com/eargollo/reclaim/internal/serverinfo"
)

var (
	// ErrUnknownMedia is returned for a media id not present in the snapshot.
	ErrUnknownMedia = errors.New("media not found in current content")
	// ErrAlreadyDeleted is returned when selecting a variant already deleted.
	ErrAlreadyDeleted = errors.New("media already deleted")
)

// Backend is everything the session needs from the backend client.
type Backend interface {
	content.Source
	deletion.Deleter
	serverinfo.Source
}

// Deps configures New. Zero values fall back to package defaults.
type Deps struct {
	Backend           Backend
	Bus               *events.Bus
	Recorder          deletion.Recorder
	BatchWidth        int
	RefreshDelay      time.Duration
	DeleteConcurrency int
}

// Session is the single owner of the engine's state for one backend.
type Session struct {
	bus    *events.Bus
	repo   *content.Repository
	set    *selection.Set
	ledger *selection.Ledger
	coord  *deletion.Coordinator
	info   *serverinfo.Store

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// New builds a session. Nothing is fetched until Refresh is called.
func New(d Deps) *Session {
	bus := d.Bus
	if bus == nil {
		bus = events.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{bus: bus, ctx: ctx, cancel: cancel}

	s.repo = content.NewRepository(d.Backend,
		content.WithBatchWidth(d.BatchWidth),
		content.WithBus(bus))
	s.ledger = selection.NewLedger(bus)
	s.set = selection.NewSet(s.ledger, bus)
	s.info = serverinfo.New(d.Backend)

	delay := d.RefreshDelay
	if delay == 0 {
		delay = deletion.DefaultRefreshDelay
	}
	opts := []deletion.Option{
		deletion.WithConcurrency(d.DeleteConcurrency),
		deletion.WithRefresh(s.refreshAfterDelete, delay),
	}
	if d.Recorder != nil {
		opts = append(opts, deletion.WithRecorder(d.Recorder))
	}
	s.coord = deletion.New(d.Backend, s.set, opts...)

	s.unsubscribe = bus.Subscribe(events.TopicContent, func(events.Event) {
		st := s.repo.State()
		if st.Loading || st.LoadingFailed {
			return
		}
		s.ResetSelection()
	})
	return s
}

// Close stops background work: the pending post-delete refresh and the
// re-seeding subscription.
func (s *Session) Close() {
	s.unsubscribe()
	s.coord.Close()
	s.cancel()
}

// Bus is the session's event bus.
func (s *Session) Bus() *events.Bus { return s.bus }
func (s *Session) Content() *content.Repository { return s.repo }
func (s *Session) Selection() *selection.Set { return s.set }
func (s *Session) Ledger() *selection.Ledger { return s.ledger }
func (s *Session) Deletion() *deletion.Coordinator { return s.coord }
func (s *Session) ServerInfo() *serverinfo.Store { return s.info }

// Refresh drops the selection and the ledger, reloads content for mode and
// then the reclaimed sizes. The content error, if any, is returned; a
// deleted-sizes failure is only logged.
func (s *Session) Refresh(ctx context.Context, mode content.Mode) error {
	s.set.Reset()
	s.ledger.Reset()
	err := s.repo.Load(ctx, mode)
	s.reloadDeletedSizes(ctx)
	return err
}

// StartRefresh runs Refresh in the background. An empty mode reloads the
// current one.
func (s *Session) StartRefresh(mode content.Mode) error {
	if mode == "" {
		mode = s.repo.State().Mode
	}
	if _, err := content.ParseMode(string(mode)); err != nil {
		return err
	}
	go func() {
		if err := s.Refresh(s.ctx, mode); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("background refresh", "mode", mode, "error", err)
		}
	}()
	return nil
}

// LoadServerInfo fetches the server identity.
func (s *Session) LoadServerInfo(ctx context.Context) error {
	return s.info.Load(ctx)
}

func (s *Session) reloadDeletedSizes(ctx context.Context) {
	if err := s.info.LoadDeletedSizes(ctx); err != nil {
		slog.Warn("reload deleted sizes", "error", err)
	}
}

func (s *Session) refreshAfterDelete() {
	if err := s.Refresh(s.ctx, s.repo.State().Mode); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("refresh after delete", "error", err)
	}
}

// ResetSelection re-applies the default policy over the active items. It
// only adds removal candidates; manual selections elsewhere are kept.
func (s *Session) ResetSelection() {
	var picks []media.MediaVariant
	for _, g := range s.repo.ActiveItems() {
		picks = append(picks, selection.SelectForRemoval(g)...)
	}
	if len(picks) > 0 {
		s.set.AddAll(picks)
	}
}

// DeselectAll clears the selection.
func (s *Session) DeselectAll() { s.set.Reset() }

// Invert flips the selection over the active items.
func (s *Session) Invert() { s.set.Invert(s.repo.ActiveItems()) }

// Select marks media id for deletion.
func (s *Session) Select(id int64) error {
	_, v, ok := s.repo.FindVariant(id)
	if !ok {
		return fmt.Errorf("select %d: %w", id, ErrUnknownMedia)
	}
	if !s.set.Add(v) {
		return fmt.Errorf("select %d: %w", id, ErrAlreadyDeleted)
	}
	return nil
}

// Deselect unmarks media id.
func (s *Session) Deselect(id int64) error {
	_, v, ok := s.repo.FindVariant(id)
	if !ok {
		return fmt.Errorf("deselect %d: %w", id, ErrUnknownMedia)
	}
	s.set.Remove(v)
	return nil
}

// Toggle flips media id and reports whether it is selected afterwards.
func (s *Session) Toggle(id int64) (bool, error) {
	if s.set.Has(id) {
		return false, s.Deselect(id)
	}
	if err := s.Select(id); err != nil {
		return false, err
	}
	return true, nil
}

// SetIncludeIgnored shows or hides ignored groups. Hiding them also
// deselects their variants.
func (s *Session) SetIncludeIgnored(v bool) {
	s.repo.SetIncludeIgnored(v)
	if !v {
		s.set.RemoveGroups(s.repo.IgnoredItems())
	}
}

// Ignore marks the group ignored on the backend.
func (s *Session) Ignore(ctx context.Context, key string) error {
	return s.repo.Ignore(ctx, key)
}

// Unignore clears the ignored mark on the backend.
func (s *Session) Unignore(ctx context.Context, key string) error {
	return s.repo.Unignore(ctx, key)
}

// DeleteOne deletes media id and reloads the reclaimed sizes.
func (s *Session) DeleteOne(ctx context.Context, id int64) error {
	g, v, ok := s.repo.FindVariant(id)
	if !ok {
		return fmt.Errorf("delete %d: %w", id, ErrUnknownMedia)
	}
	if err := s.coord.DeleteOne(ctx, g, v); err != nil {
		return err
	}
	s.reloadDeletedSizes(ctx)
	return nil
}

// DeleteSelected deletes every selected variant of the active items and
// waits for the batch to settle.
func (s *Session) DeleteSelected(ctx context.Context) (deletion.BatchResult, error) {
	res, err := s.coord.DeleteSelected(ctx, s.repo.ActiveItems())
	if err != nil {
		return res, err
	}
	s.reloadDeletedSizes(ctx)
	return res, nil
}

// PendingDelete reports what DeleteSelected would send now: the selected
// variants of the active items only.
func (s *Session) PendingDelete() deletion.Pending {
	return s.coord.Pending(s.repo.ActiveItems())
}

// StartDelete runs DeleteSelected in the background and reports what was
// sent. It fails with deletion.ErrAlreadyDeleting when a batch is already
// running.
func (s *Session) StartDelete() (deletion.Pending, error) {
	return s.coord.Start(s.ctx, s.repo.ActiveItems(), func(deletion.BatchResult) {
		s.reloadDeletedSizes(s.ctx)
	})
}

// Summary is a snapshot of the session counters.
type Summary struct {
	content.State
	Groups        int                       `json:"groups"`
	IgnoredGroups int                       `json:"ignored_groups"`
	Selected      int                       `json:"selected"`
	SelectedBytes int64                     `json:"selected_bytes"`
	Deleted       int                       `json:"deleted"`
	DeletedBytes  int64                     `json:"deleted_bytes"`
	Deleting      bool                      `json:"deleting"`
	Progress      deletion.ProgressSnapshot `json:"progress"`
}

// Summary collects the current counters.
func (s *Session) Summary() Summary {
	snap := s.set.Snapshot()
	return Summary{
		State:         s.repo.State(),
		Groups:        s.repo.Len(),
		IgnoredGroups: len(s.repo.IgnoredItems()),
		Selected:      snap.SelectedCount(),
		SelectedBytes: snap.SelectedBytes(),
		Deleted:       snap.DeletedCount(),
		DeletedBytes:  snap.DeletedBytes(),
		Deleting:      s.coord.Deleting(),
		Progress:      s.coord.Progress(),
	}
}
