package handlers

import (
	"net/http"

	"github.com/eargollo/reclaim/internal/history"
)

// HistoryHandler serves the deletion journal.
type HistoryHandler struct {
	Journal *history.Journal
}

// List handles GET /api/history.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	entries, err := h.Journal.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	total, err := h.Journal.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[history.Entry]{
		Items:  entries,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// Totals handles GET /api/history/totals.
func (h *HistoryHandler) Totals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Journal.Totals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": totals})
}
