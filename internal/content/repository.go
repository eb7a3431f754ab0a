// Package content owns the snapshot of duplicate or sample content groups
// fetched from the backend.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eargollo/reclaim/internal/backend"
	"github.com/eargollo/reclaim/internal/events"
	"github.com/eargollo/reclaim/internal/media"
)

// Mode selects which listing the repository loads.
type Mode string

const (
	ModeDuplicate Mode = "duplicate"
	ModeSample    Mode = "sample"
)

// DefaultBatchWidth is the number of dupes pages fetched concurrently per round.
const DefaultBatchWidth = 10

// ErrUnknownMode is returned by Load for a mode other than duplicate or sample.
var ErrUnknownMode = errors.New("unknown listing mode")

// ParseMode validates s as a listing mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDuplicate, ModeSample:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Source is the subset of the backend the repository reads and mutates.
type Source interface {
	DupesPage(ctx context.Context, page int) ([]media.ContentGroup, error)
	Samples(ctx context.Context) ([]media.ContentGroup, error)
	Ignore(ctx context.Context, contentKey string) error
	Unignore(ctx context.Context, contentKey string) error
}

// State is the loading tri-state plus view settings. LoadingError is the
// backend's message for the last failure; empty with LoadingFailed set means
// a generic failure.
type State struct {
	Mode           Mode   `json:"mode"`
	Loading        bool   `json:"loading"`
	LoadingFailed  bool   `json:"loading_failed"`
	LoadingError   string `json:"loading_error,omitempty"`
	IncludeIgnored bool   `json:"include_ignored"`
}

// Repository holds the authoritative group list. Every mutation swaps in a
// new slice under the lock, so slices handed to readers are never modified
// afterwards. It is safe for concurrent use.
type Repository struct {
	src        Source
	bus        *events.Bus
	batchWidth int

	mu     sync.RWMutex
	groups []media.ContentGroup
	state  State
}

// Option customises a Repository.
type Option func(*Repository)

// WithBatchWidth sets how many dupes pages are requested per round.
func WithBatchWidth(w int) Option {
	return func(r *Repository) {
		if w > 0 {
			r.batchWidth = w
		}
	}
}

// WithBus publishes events.TopicContent on every change.
func WithBus(b *events.Bus) Option {
	return func(r *Repository) { r.bus = b }
}

// NewRepository creates an empty repository in duplicate mode.
func NewRepository(src Source, opts ...Option) *Repository {
	r := &Repository{
		src:        src,
		batchWidth: DefaultBatchWidth,
		state:      State{Mode: ModeDuplicate},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the snapshot with a fresh listing for mode. The snapshot is
// cleared and marked loading first. On failure the state records the backend
// message (if any) and the error is returned.
//
// Concurrent loads are not serialised: whichever finishes last wins, and a
// failed load always leaves the snapshot empty.
func (r *Repository) Load(ctx context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	r.mu.Lock()
	r.groups = nil
	r.state.Mode = mode
	r.state.Loading = true
	r.state.LoadingFailed = false
	r.state.LoadingError = ""
	r.mu.Unlock()
	r.bus.Publish(events.TopicContent)

	var (
		groups []media.ContentGroup
		err    error
	)
	switch mode {
	case ModeSample:
		groups, err = r.src.Samples(ctx)
	default:
		groups, err = AggregatePages(ctx, r.src.DupesPage, r.batchWidth)
	}

	r.mu.Lock()
	r.state.Loading = false
	if err != nil {
		r.groups = nil
		r.state.LoadingFailed = true
		r.state.LoadingError = backend.ErrorMessage(err)
	} else {
		r.groups = dropEmpty(groups)
	}
	loaded := len(r.groups)
	r.mu.Unlock()
	r.bus.Publish(events.TopicContent)

	if err != nil {
		slog.Error("content load failed", "mode", mode, "error", err)
		return fmt.Errorf("load %s content: %w", mode, err)
	}
	slog.Info("content loaded", "mode", mode, "groups", loaded)
	return nil
}

// dropEmpty removes groups with no media; the selection policy requires at
// least one variant per group.
func dropEmpty(groups []media.ContentGroup) []media.ContentGroup {
	out := make([]media.ContentGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.Media) == 0 {
			slog.Warn("content group without media dropped", "key", g.Key, "title", g.Title)
			continue
		}
		out = append(out, g)
	}
	return out
}

// SetIncludeIgnored toggles whether ignored groups appear in ActiveItems.
// Ignored groups stay in the snapshot either way.
func (r *Repository) SetIncludeIgnored(v bool) {
	r.mu.Lock()
	changed := r.state.IncludeIgnored != v
	r.state.IncludeIgnored = v
	r.mu.Unlock()
	if changed {
		r.bus.Publish(events.TopicContent)
	}
}

// ActiveItems returns the groups shown for selection: non-ignored ones, or
// every group when ignored items are included. Order is server order.
func (r *Repository) ActiveItems() []media.ContentGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state.IncludeIgnored {
		return append([]media.ContentGroup(nil), r.groups...)
	}
	out := make([]media.ContentGroup, 0, len(r.groups))
	for _, g := range r.groups {
		if !g.Ignored {
			out = append(out, g)
		}
	}
	return out
}

// IgnoredItems returns the ignored groups in server order.
func (r *Repository) IgnoredItems() []media.ContentGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []media.ContentGroup
	for _, g := range r.groups {
		if g.Ignored {
			out = append(out, g)
		}
	}
	return out
}

// Groups returns the full snapshot.
func (r *Repository) Groups() []media.ContentGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]media.ContentGroup(nil), r.groups...)
}

// Len is the number of active items.
func (r *Repository) Len() int {
	return len(r.ActiveItems())
}

// State returns the current loading state.
func (r *Repository) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// FindVariant locates a media variant by id anywhere in the snapshot.
func (r *Repository) FindVariant(id int64) (media.ContentGroup, media.MediaVariant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.groups {
		if v, ok := g.Variant(id); ok {
			return g, v, true
		}
	}
	return media.ContentGroup{}, media.MediaVariant{}, false
}

// Ignore asks the backend to ignore the group and then flips it locally.
func (r *Repository) Ignore(ctx context.Context, key string) error {
	if err := r.src.Ignore(ctx, key); err != nil {
		return fmt.Errorf("ignore %q: %w", key, err)
	}
	r.setIgnored(key, true)
	return nil
}

// Unignore asks the backend to stop ignoring the group and then flips it locally.
func (r *Repository) Unignore(ctx context.Context, key string) error {
	if err := r.src.Unignore(ctx, key); err != nil {
		return fmt.Errorf("unignore %q: %w", key, err)
	}
	r.setIgnored(key, false)
	return nil
}

// setIgnored replaces the group with key by a copy carrying the new flag, at
// the same index. An unknown key leaves the snapshot untouched.
func (r *Repository) setIgnored(key string, ignored bool) {
	r.mu.Lock()
	idx := -1
	for i, g := range r.groups {
		if g.Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		slog.Warn("ignore state changed for content not in snapshot", "key", key, "ignored", ignored)
		return
	}
	next := append([]media.ContentGroup(nil), r.groups...)
	g := next[idx]
	g.Ignored = ignored
	next[idx] = g
	r.groups = next
	r.mu.Unlock()

	r.bus.Publish(events.TopicContent)
}
