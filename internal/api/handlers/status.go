package handlers

import (
	"net/http"
	"time"

	"github.com/eargollo/reclaim/internal/backend"
	"github.com/eargollo/reclaim/internal/deletion"
	"github.com/eargollo/reclaim/internal/scheduler"
	"github.com/eargollo/reclaim/internal/serverinfo"
	"github.com/eargollo/reclaim/internal/session"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Session    *session.Session
	Sched      *scheduler.Scheduler
	BackendURL string
	Version    string
}

type statusResponse struct {
	Version      string                   `json:"version"`
	BackendURL   string                   `json:"backend_url"`
	Server       *backend.ServerInfo      `json:"server"`
	Session      session.Summary          `json:"session"`
	DeletedSizes []serverinfo.LibrarySize `json:"deleted_sizes"`
	TotalDeleted int64                    `json:"total_deleted"`
	LastBatch    *batchInfo               `json:"last_batch"`
	Schedule     []scheduler.JobInfo      `json:"schedule"`
}

type batchInfo struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Deleted    []int64       `json:"deleted"`
	Failed     []failureInfo `json:"failed"`
	Bytes      int64         `json:"bytes"`
}

type failureInfo struct {
	MediaID int64  `json:"media_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func newBatchInfo(b *deletion.BatchResult) *batchInfo {
	if b == nil {
		return nil
	}
	info := &batchInfo{
		StartedAt:  b.StartedAt,
		FinishedAt: b.FinishedAt,
		Deleted:    make([]int64, 0, len(b.Deleted)),
		Failed:     make([]failureInfo, 0, len(b.Failed)),
		Bytes:      b.Bytes,
	}
	for _, v := range b.Deleted {
		info.Deleted = append(info.Deleted, v.ID)
	}
	for _, f := range b.Failed {
		info.Failed = append(info.Failed, failureInfo{
			MediaID: f.Variant.ID,
			Title:   f.Group.DisplayTitle(),
			Message: deletion.FailureMessage(f),
		})
	}
	return info
}

// ServeHTTP returns the session status as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	info := h.Session.ServerInfo()
	resp := statusResponse{
		Version:      h.Version,
		BackendURL:   h.BackendURL,
		Session:      h.Session.Summary(),
		DeletedSizes: info.DeletedSizes(),
		TotalDeleted: info.TotalDeleted(),
		LastBatch:    newBatchInfo(h.Session.Deletion().LastBatch()),
		Schedule:     []scheduler.JobInfo{},
	}
	if si, ok := info.Info(); ok {
		resp.Server = &si
	}
	if h.Sched != nil {
		resp.Schedule = h.Sched.Jobs()
	}
	writeJSON(w, http.StatusOK, resp)
}
