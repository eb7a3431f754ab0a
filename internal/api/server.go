// Package api exposes a session over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eargollo/reclaim/internal/api/handlers"
	"github.com/eargollo/reclaim/internal/history"
	"github.com/eargollo/reclaim/internal/scheduler"
	"github.com/eargollo/reclaim/internal/session"
)

// Deps are the components the routes serve. Journal and Sched may be nil.
type Deps struct {
	Session    *session.Session
	Journal    *history.Journal
	Sched      *scheduler.Scheduler
	BackendURL string
	Version    string
}

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// Handler wires all routes.
func Handler(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	statusH := &handlers.StatusHandler{Session: d.Session, Sched: d.Sched, BackendURL: d.BackendURL, Version: d.Version}
	contentH := &handlers.ContentHandler{Session: d.Session}
	selectionH := &handlers.SelectionHandler{Session: d.Session}
	deleteH := &handlers.DeleteHandler{Session: d.Session}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)

		r.Get("/content", contentH.List)
		r.Post("/content/refresh", contentH.Refresh)
		r.Post("/content/include-ignored", contentH.IncludeIgnored)
		r.Post("/content/ignore", contentH.Ignore)
		r.Post("/content/unignore", contentH.Unignore)

		r.Get("/selection", selectionH.Get)
		r.Delete("/selection", selectionH.Clear)
		r.Post("/selection/invert", selectionH.Invert)
		r.Post("/selection/reset", selectionH.Reset)
		r.Put("/selection/{id}", selectionH.Select)
		r.Delete("/selection/{id}", selectionH.Deselect)

		r.Post("/media/{id}/delete", deleteH.One)
		r.Post("/delete", deleteH.Batch)

		if d.Journal != nil {
			historyH := &handlers.HistoryHandler{Journal: d.Journal}
			r.Get("/history", historyH.List)
			r.Get("/history/totals", historyH.Totals)
		}
	})
	return r
}

// New returns a Server ready to Run.
func New(addr string, d Deps) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           Handler(d),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
