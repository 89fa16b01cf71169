package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ganot/taskdeck/internal/domain/search"
	"github.com/ganot/taskdeck/internal/domain/sync"
	"github.com/ganot/taskdeck/internal/domain/task"
	"github.com/ganot/taskdeck/internal/upstream"
)

// SearchService is the query surface exposed over HTTP.
type SearchService interface {
	Search(ctx context.Context, query string, opts search.Options) (*search.Result, error)
	Filters(ctx context.Context) (*search.FilterSet, error)
	ResolveTicket(ctx context.Context, prefix string, number int) (*task.Task, error)
}

// SyncService triggers a cache refresh against the upstream API.
type SyncService interface {
	Run(ctx context.Context, progress upstream.ProgressFunc) (task.Summary, error)
}

// Server handles HTTP requests for the task cache.
type Server struct {
	search SearchService
	sync   SyncService
	logger *slog.Logger
}

// Options configures the HTTP server.
type Options struct {
	Search SearchService
	Sync   SyncService
	Token  string
	Logger *slog.Logger
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		search: opts.Search,
		sync:   opts.Sync,
		logger: logger,
	}
}

// Router builds the chi router for the server. A non-empty token
// protects the /api routes with bearer auth; /health and ticket
// redirects stay open.
func (s *Server) Router(token string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/t/{key}", s.handleTicketRedirect)

	r.Route("/api", func(r chi.Router) {
		if token != "" {
			r.Use(AuthMiddleware(token))
		}
		r.Get("/tasks", s.handleTasks)
		r.Get("/filters", s.handleFilters)
		r.Post("/sync", s.handleSync)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := search.Options{
		ProjectID: q.Get("project"),
		Status:    q.Get("status"),
		Assignee:  q.Get("assignee"),
		DueBy:     q.Get("due"),
	}

	result, err := s.search.Search(r.Context(), q.Get("q"), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := s.search.Filters(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, filters)
}

// handleSync streams newline-delimited JSON progress events while the
// refresh runs, then a final summary line.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	started := false

	summary, err := s.sync.Run(r.Context(), func(ev upstream.ProgressEvent) {
		if !started {
			w.WriteHeader(http.StatusOK)
			started = true
		}
		_ = enc.Encode(ev)
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		if started {
			// Headers already sent; report the failure in-stream.
			_ = enc.Encode(map[string]string{"error": err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}

	if !started {
		w.WriteHeader(http.StatusOK)
	}
	_ = enc.Encode(map[string]task.Summary{"summary": summary})
}

// handleTicketRedirect resolves a ticket key like PRIM-242 and
// redirects to the upstream task page.
func (s *Server) handleTicketRedirect(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	structured, ok := search.ParseQuery(key)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ticket key"})
		return
	}

	t, err := s.search.ResolveTicket(r.Context(), structured.Prefix, structured.Number)
	if err != nil {
		s.writeError(w, err)
		return
	}

	http.Redirect(w, r, t.URL, http.StatusFound)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var notFound *search.TicketNotFoundError
	switch {
	case errors.Is(err, search.ErrNotSynced):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "task cache not populated yet; run a sync first",
		})
	case errors.Is(err, sync.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "a sync is already running",
		})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":         notFound.Error(),
			"knownPrefixes": notFound.KnownPrefixes,
		})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
