package handlers

import (
	"net/http"

	"github.com/eargollo/reclaim/internal/session"
)

// DeleteHandler handles media deletion.
type DeleteHandler struct {
	Session *session.Session
}

// One handles POST /api/media/:id/delete. It waits for the backend.
func (h *DeleteHandler) One(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(w, r)
	if !ok {
		return
	}
	if err := h.Session.DeleteOne(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"media_id": id, "deleted": true})
}

// Batch handles POST /api/delete. The batch runs in the background; its
// progress and outcome are reported by /api/status.
func (h *DeleteHandler) Batch(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Session.StartDelete()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "deleting",
		"selected": pending.Count,
		"bytes":    pending.Bytes,
	})
}
