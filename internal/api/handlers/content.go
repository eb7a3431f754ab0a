package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/eargollo/reclaim/internal/content"
	"github.com/eargollo/reclaim/internal/media"
	"github.com/eargollo/reclaim/internal/selection"
	"github.com/eargollo/reclaim/internal/session"
)

// ContentHandler handles the /api/content endpoints.
type ContentHandler struct {
	Session *session.Session
}

type variantItem struct {
	media.MediaVariant
	TotalSize int64 `json:"totalSize"`
	Keep      bool  `json:"keep"`
	Selected  bool  `json:"selected"`
	Deleted   bool  `json:"deleted"`
}

type groupItem struct {
	media.ContentGroup
	DisplayTitle string        `json:"displayTitle"`
	Media        []variantItem `json:"media"`
}

func groupItemOf(g media.ContentGroup, snap selection.Snapshot) groupItem {
	keep, _ := selection.Keeper(g)
	item := groupItem{
		ContentGroup: g,
		DisplayTitle: g.DisplayTitle(),
		Media:        make([]variantItem, 0, len(g.Media)),
	}
	for _, v := range g.Media {
		item.Media = append(item.Media, variantItem{
			MediaVariant: v,
			TotalSize:    v.TotalSize(),
			Keep:         v.ID == keep.ID,
			Selected:     snap.Selected(v.ID),
			Deleted:      snap.Deleted(v.ID),
		})
	}
	return item
}

// List handles GET /api/content?view=active|ignored.
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	repo := h.Session.Content()
	var groups []media.ContentGroup
	switch r.URL.Query().Get("view") {
	case "", "active":
		groups = repo.ActiveItems()
	case "ignored":
		groups = repo.IgnoredItems()
	default:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "view must be active or ignored")
		return
	}

	limit, offset := parsePagination(r)
	snap := h.Session.Selection().Snapshot()
	items := make([]groupItem, 0, limit)
	for _, g := range page(groups, limit, offset) {
		items = append(items, groupItemOf(g, snap))
	}
	writeJSON(w, http.StatusOK, ListResponse[groupItem]{
		Items:  items,
		Total:  len(groups),
		Limit:  limit,
		Offset: offset,
	})
}

// Refresh handles POST /api/content/refresh. The reload runs in the
// background; poll /api/status for the loading state.
func (h *ContentHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if err := h.Session.StartRefresh(content.Mode(body.Mode)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// IncludeIgnored handles POST /api/content/include-ignored.
func (h *ContentHandler) IncludeIgnored(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Include *bool `json:"include"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Include == nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "include is required")
		return
	}
	h.Session.SetIncludeIgnored(*body.Include)
	writeJSON(w, http.StatusOK, map[string]bool{"include_ignored": *body.Include})
}

// Ignore handles POST /api/content/ignore.
func (h *ContentHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	key, ok := contentKeyBody(w, r)
	if !ok {
		return
	}
	if err := h.Session.Ignore(r.Context(), key); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content_key": key, "ignored": true})
}

// Unignore handles POST /api/content/unignore.
func (h *ContentHandler) Unignore(w http.ResponseWriter, r *http.Request) {
	key, ok := contentKeyBody(w, r)
	if !ok {
		return
	}
	if err := h.Session.Unignore(r.Context(), key); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content_key": key, "ignored": false})
}
