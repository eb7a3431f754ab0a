package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eargollo/reclaim/internal/backend"
	"github.com/eargollo/reclaim/internal/content"
	"github.com/eargollo/reclaim/internal/deletion"
	"github.com/eargollo/reclaim/internal/session"
)

// ListResponse is the standard paginated list envelope.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ErrorBody is the standard error envelope.
type ErrorBody struct {
	Error APIError `json:"error"`
}

// APIError holds a machine-readable code and a human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON serialises v as JSON with status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON encode", "error", err)
	}
}

// writeError writes a standard error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{
		Error: APIError{Code: code, Message: message},
	})
}

// writeServiceError maps engine and backend errors to HTTP responses.
// Anything unrecognised came from talking to the backend and is a 502.
func writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, session.ErrUnknownMedia):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, session.ErrAlreadyDeleted):
		writeError(w, http.StatusConflict, "ALREADY_DELETED", err.Error())
	case errors.Is(err, deletion.ErrAlreadyDeleting):
		writeError(w, http.StatusConflict, "ALREADY_DELETING", err.Error())
	case errors.Is(err, content.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.As(err, &apiErr):
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		writeError(w, http.StatusBadGateway, "BACKEND_ERROR", msg)
	default:
		writeError(w, http.StatusBadGateway, "BACKEND_UNAVAILABLE", err.Error())
	}
}

// parsePagination reads limit/offset query params (limit 1..200, default 50).
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return
}

// page slices items according to limit/offset.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// mediaID parses the {id} URL parameter, writing a 400 on failure.
func mediaID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid media ID")
		return 0, false
	}
	return id, true
}

// contentKeyBody decodes {"content_key": ...}, writing a 400 on failure.
func contentKeyBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body struct {
		ContentKey string `json:"content_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ContentKey == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "content_key is required")
		return "", false
	}
	return body.ContentKey, true
}
