package handlers

import (
	"net/http"
	"sort"

	"github.com/eargollo/reclaim/internal/media"
	"github.com/eargollo/reclaim/internal/session"
)

// SelectionHandler handles the /api/selection endpoints.
type SelectionHandler struct {
	Session *session.Session
}

type selectionResponse struct {
	Items []media.MediaVariant `json:"items"`
	Count int                  `json:"count"`
	Bytes int64                `json:"bytes"`
}

func (h *SelectionHandler) snapshot() selectionResponse {
	snap := h.Session.Selection().Snapshot()
	items := snap.SelectedItems()
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return selectionResponse{Items: items, Count: len(items), Bytes: snap.SelectedBytes()}
}

// Get handles GET /api/selection.
func (h *SelectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// Select handles PUT /api/selection/:id.
func (h *SelectionHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(w, r)
	if !ok {
		return
	}
	if err := h.Session.Select(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"media_id": id, "selected": true})
}

// Deselect handles DELETE /api/selection/:id.
func (h *SelectionHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(w, r)
	if !ok {
		return
	}
	if err := h.Session.Deselect(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"media_id": id, "selected": false})
}

// Invert handles POST /api/selection/invert.
func (h *SelectionHandler) Invert(w http.ResponseWriter, r *http.Request) {
	h.Session.Invert()
	writeJSON(w, http.StatusOK, h.snapshot())
}

// Reset handles POST /api/selection/reset.
func (h *SelectionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.Session.ResetSelection()
	writeJSON(w, http.StatusOK, h.snapshot())
}

// Clear handles DELETE /api/selection.
func (h *SelectionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.Session.DeselectAll()
	writeJSON(w, http.StatusOK, h.snapshot())
}
