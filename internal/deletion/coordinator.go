// Package deletion performs media deletions against the backend and moves
// confirmed variants from the selection into the deletion ledger.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eargollo/reclaim/internal/backend"
	"github.com/eargollo/reclaim/internal/history"
	"github.com/eargollo/reclaim/internal/media"
	"github.com/eargollo/reclaim/internal/selection"
)

// DefaultRefreshDelay is how long after a batch the refresh callback fires,
// giving the media server time to settle.
const DefaultRefreshDelay = 4500 * time.Millisecond

// ErrAlreadyDeleting is returned when a batch is started while one is in progress.
var ErrAlreadyDeleting = errors.New("a batch delete is already in progress")

// Deleter removes one media variant on the backend.
type Deleter interface {
	DeleteMedia(ctx context.Context, library, contentKey string, mediaID int64) error
}

// Recorder persists confirmed deletions. *history.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (int64, error)
}

// Failure is one variant the backend refused to delete.
type Failure struct {
	Group   media.ContentGroup
	Variant media.MediaVariant
	Err     error
}

// BatchResult describes a settled batch. Deleted and Failed are ordered by
// media id.
type BatchResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Deleted    []media.MediaVariant
	Failed     []Failure
	Bytes      int64
}

// Requested is the number of variants the batch attempted.
func (r BatchResult) Requested() int { return len(r.Deleted) + len(r.Failed) }

// Coordinator owns the delete flow. It is safe for concurrent use; at most
// one batch runs at a time while single deletes are never blocked.
type Coordinator struct {
	deleter      Deleter
	set          *selection.Set
	recorder     Recorder
	refresh      func()
	refreshDelay time.Duration
	concurrency  int

	mu        sync.Mutex
	deleting  bool
	progress  *Progress
	lastBatch *BatchResult
	timer     *time.Timer
	closed    bool
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithRecorder journals every confirmed deletion.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithRefresh sets the callback fired refreshDelay after each batch.
func WithRefresh(fn func(), delay time.Duration) Option {
	return func(c *Coordinator) {
		c.refresh = fn
		if delay >= 0 {
			c.refreshDelay = delay
		}
	}
}

// WithConcurrency caps in-flight delete requests per batch. Zero means no cap.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.concurrency = n
		}
	}
}

// New creates a Coordinator that commits confirmed deletions into set.
func New(deleter Deleter, set *selection.Set, opts ...Option) *Coordinator {
	c := &Coordinator{
		deleter:      deleter,
		set:          set,
		refreshDelay: DefaultRefreshDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeleteOne deletes variant v of group g. On success v leaves the selection
// and enters the ledger in one step; on failure neither changes.
func (c *Coordinator) DeleteOne(ctx context.Context, g media.ContentGroup, v media.MediaVariant) error {
	if err := c.deleter.DeleteMedia(ctx, g.Library, g.Key, v.ID); err != nil {
		slog.Warn("media delete failed", "media_id", v.ID, "key", g.Key,
			"error", err)
		return fmt.Errorf("delete media %d: %w", v.ID, err)
	}
	c.set.Commit(v)
	slog.Info("media deleted", "media_id", v.ID, "title", g.DisplayTitle(),
		"library", g.Library, "bytes", v.TotalSize())

	if c.recorder != nil {
		_, err := c.recorder.Record(ctx, history.Entry{
			Library:    g.Library,
			ContentKey: g.Key,
			Title:      g.DisplayTitle(),
			MediaID:    v.ID,
			Bytes:      v.TotalSize(),
			Files:      v.Files(),
		})
		if err != nil {
			slog.Error("journal deletion", "media_id", v.ID, "error", err)
		}
	}
	return nil
}

type target struct {
	group   media.ContentGroup
	variant media.MediaVariant
}

// selected lists the variants of groups that are currently selected.
func (c *Coordinator) selected(groups []media.ContentGroup) []target {
	snap := c.set.Snapshot()
	var out []target
	for _, g := range groups {
		for _, v := range g.Media {
			if snap.Selected(v.ID) {
				out = append(out, target{group: g, variant: v})
			}
		}
	}
	return out
}

// Pending is what a batch over some groups sends to the backend.
type Pending struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

func pendingOf(targets []target) Pending {
	p := Pending{Count: len(targets)}
	for _, t := range targets {
		p.Bytes += t.variant.TotalSize()
	}
	return p
}

// Pending reports what DeleteSelected would delete for groups right now.
// Selected variants outside groups are not counted.
func (c *Coordinator) Pending(groups []media.ContentGroup) Pending {
	return pendingOf(c.selected(groups))
}

// begin reserves the single batch slot.
func (c *Coordinator) begin() (*Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleting {
		return nil, ErrAlreadyDeleting
	}
	c.deleting = true
	c.progress = &Progress{}
	return c.progress, nil
}

// DeleteSelected deletes every selected variant of groups concurrently and
// waits for all of them to settle. A failing item never stops the others;
// failures are reported per item in the result. Once settled, the refresh
// callback is scheduled.
func (c *Coordinator) DeleteSelected(ctx context.Context, groups []media.ContentGroup) (BatchResult, error) {
	progress, err := c.begin()
	if err != nil {
		return BatchResult{}, err
	}
	return c.run(ctx, c.selected(groups), progress), nil
}

// Start is the asynchronous form of DeleteSelected. The batch slot is taken
// before Start returns, so a second Start reports ErrAlreadyDeleting. done,
// when non-nil, receives the result. The returned Pending describes the
// variants the batch was started with.
func (c *Coordinator) Start(ctx context.Context, groups []media.ContentGroup, done func(BatchResult)) (Pending, error) {
	progress, err := c.begin()
	if err != nil {
		return Pending{}, err
	}
	targets := c.selected(groups)
	progress.Requested.Store(int64(len(targets)))
	go func() {
		res := c.run(ctx, targets, progress)
		if done != nil {
			done(res)
		}
	}()
	return pendingOf(targets), nil
}

func (c *Coordinator) run(ctx context.Context, targets []target, progress *Progress) BatchResult {
	res := BatchResult{StartedAt: time.Now()}
	progress.Requested.Store(int64(len(targets)))
	slog.Info("batch delete started", "variants", len(targets), "concurrency", c.concurrency)

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	if c.concurrency > 0 {
		eg.SetLimit(c.concurrency)
	}
	for _, t := range targets {
		eg.Go(func() error {
			err := c.DeleteOne(ctx, t.group, t.variant)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				progress.Failed.Add(1)
				res.Failed = append(res.Failed, Failure{Group: t.group, Variant: t.variant, Err: err})
				return nil
			}
			size := t.variant.TotalSize()
			progress.Succeeded.Add(1)
			progress.Bytes.Add(size)
			res.Deleted = append(res.Deleted, t.variant)
			res.Bytes += size
			return nil
		})
	}
	_ = eg.Wait()

	sort.Slice(res.Deleted, func(i, j int) bool { return res.Deleted[i].ID < res.Deleted[j].ID })
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Variant.ID < res.Failed[j].Variant.ID })
	res.FinishedAt = time.Now()

	c.mu.Lock()
	c.deleting = false
	c.lastBatch = &res
	c.scheduleRefreshLocked()
	c.mu.Unlock()

	slog.Info("batch delete finished",
		"deleted", len(res.Deleted),
		"failed", len(res.Failed),
		"bytes", res.Bytes,
		"duration", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	return res
}

// scheduleRefreshLocked arms the refresh timer, replacing a pending one.
func (c *Coordinator) scheduleRefreshLocked() {
	if c.refresh == nil || c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	fn := c.refresh
	c.timer = time.AfterFunc(c.refreshDelay, func() {
		slog.Debug("refresh after batch delete")
		fn()
	})
}

// Close cancels a pending refresh. Batches settling afterwards schedule none.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Deleting reports whether a batch is in flight.
func (c *Coordinator) Deleting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleting
}

// Progress returns the counters of the running or most recent batch.
func (c *Coordinator) Progress() ProgressSnapshot {
	c.mu.Lock()
	p := c.progress
	c.mu.Unlock()
	return p.Snapshot()
}

// LastBatch returns the most recent settled batch, or nil.
func (c *Coordinator) LastBatch() *BatchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastBatch == nil {
		return nil
	}
	snap := *c.lastBatch
	return &snap
}

// FailureMessage is the backend's message for f, or the error text.
func FailureMessage(f Failure) string {
	if msg := backend.ErrorMessage(f.Err); msg != "" {
		return msg
	}
	return f.Err.Error()
}
