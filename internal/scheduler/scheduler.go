// Package scheduler runs the periodic content refresh and history retention
// jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job names used by reclaim serve.
const (
	JobRefresh   = "refresh"
	JobRetention = "retention"
)

// JobInfo describes a scheduled job.
type JobInfo struct {
	Name    string    `json:"name"`
	Cron    string    `json:"cron"`
	NextRun time.Time `json:"next_run"`
}

type entry struct {
	id   cron.EntryID
	expr string
}

// Scheduler wraps robfig/cron with named jobs. A run that is still going
// when its next tick arrives makes that tick a no-op.
type Scheduler struct {
	mu   sync.RWMutex
	c    *cron.Cron
	jobs map[string]entry
}

// New creates a stopped Scheduler. Call Start to activate it.
func New() *Scheduler {
	logger := slogLogger{}
	return &Scheduler{
		c: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		jobs: map[string]entry{},
	}
}

// Schedule registers fn under name, replacing any job with the same name.
// Takes effect immediately if the scheduler is running.
func (s *Scheduler) Schedule(name, expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", expr, name, err)
	}
	if old, ok := s.jobs[name]; ok {
		s.c.Remove(old.id)
	}
	s.jobs[name] = entry{id: id, expr: expr}
	slog.Info("scheduler: job set", "job", name, "cron", expr)
	return nil
}

// Remove drops the named job. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[name]; ok {
		s.c.Remove(old.id)
		delete(s.jobs, name)
	}
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
		slog.Warn("scheduler: stop timed out with jobs still running")
	}
}

// NextRun returns the next run of the named job. ok is false when the job
// is unknown or the scheduler has not started.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	next := s.c.Entry(e.id).Next
	return next, !next.IsZero()
}

// Jobs lists the registered jobs by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		out = append(out, JobInfo{Name: name, Cron: e.expr, NextRun: s.c.Entry(e.id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// slogLogger routes cron's internal logging to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
