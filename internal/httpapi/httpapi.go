// Package httpapi exposes the worker's loopback HTTP surface: route
// registration, request validation, and the mapping from internal failures
// to status codes. The cross-cutting middleware lives in internal/httpmw.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kiro-memory/worker/internal/backup"
	"github.com/kiro-memory/worker/internal/config"
	"github.com/kiro-memory/worker/internal/embedding"
	"github.com/kiro-memory/worker/internal/eventbus"
	"github.com/kiro-memory/worker/internal/httpmw"
	"github.com/kiro-memory/worker/internal/hybrid"
	"github.com/kiro-memory/worker/internal/ingest"
	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/retrieval"
	"github.com/kiro-memory/worker/internal/scheduler"
	"github.com/kiro-memory/worker/internal/session"
	"github.com/kiro-memory/worker/internal/smartcontext"
	"github.com/kiro-memory/worker/internal/sse"
	"github.com/kiro-memory/worker/internal/store"
	"github.com/kiro-memory/worker/internal/vectorindex"
)

// QueryTimeout bounds synchronous query handlers.
const QueryTimeout = 10 * time.Second

// Body-size caps: 1MB everywhere except the 50MB import route.
const (
	DefaultBodyLimit = 1 << 20
	ImportBodyLimit  = 50 << 20
)

// RateLimitPerMinute is the global /api/* budget per client IP.
const RateLimitPerMinute = 200

// Hooks is the narrow plugin-dispatch surface session routes need; the
// composition root adapts the plugin host onto it (onObservation is
// dispatched by the ingest pipeline itself).
type Hooks interface {
	OnSummary(ctx context.Context, sm *store.Summary)
	OnSessionStart(ctx context.Context, sess *store.Session)
	OnSessionEnd(ctx context.Context, sess *store.Session)
}

// Server carries every collaborator the route handlers need.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	pipeline  *ingest.Pipeline
	retriever *retrieval.Retriever
	hybrid    *hybrid.Searcher
	smart     *smartcontext.Assembler
	sessions  *session.Manager
	backups   *backup.Manager
	sched     *scheduler.Scheduler
	index     *vectorindex.Index
	provider  embedding.Provider
	hub       *sse.Hub
	bus       *eventbus.Bus
	hooks     Hooks
	log       *logging.Logger
	token     string
	version   string
	staticDir string
}

// Deps bundles the Server's collaborators for NewServer.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Pipeline  *ingest.Pipeline
	Retriever *retrieval.Retriever
	Hybrid    *hybrid.Searcher
	Smart     *smartcontext.Assembler
	Sessions  *session.Manager
	Backups   *backup.Manager
	Scheduler *scheduler.Scheduler
	Index     *vectorindex.Index
	Provider  embedding.Provider
	Hub       *sse.Hub
	Bus       *eventbus.Bus
	Hooks     Hooks
	Log       *logging.Logger
	Token     string
	Version   string
	StaticDir string
}

// NewServer builds a Server from its dependencies.
func NewServer(d Deps) *Server {
	return &Server{
		cfg:       d.Config,
		store:     d.Store,
		pipeline:  d.Pipeline,
		retriever: d.Retriever,
		hybrid:    d.Hybrid,
		smart:     d.Smart,
		sessions:  d.Sessions,
		backups:   d.Backups,
		sched:     d.Scheduler,
		index:     d.Index,
		provider:  d.Provider,
		hub:       d.Hub,
		bus:       d.Bus,
		hooks:     d.Hooks,
		log:       d.Log,
		token:     d.Token,
		version:   d.Version,
		staticDir: d.StaticDir,
	}
}

// Router assembles the full route tree and middleware stack.
func (s *Server) Router() chi.Router {
	cors := httpmw.NewCORS(nil)
	headers := httpmw.NewSecurityHeaders(nil)
	limiter := httpmw.NewRateLimiter(RateLimitPerMinute, time.Minute)
	auth := httpmw.NewBearerAuth(s.token)
	smallBody := httpmw.NewBodyLimit(DefaultBodyLimit)
	importBody := httpmw.NewBodyLimit(ImportBodyLimit)

	r := chi.NewRouter()
	r.Use(httpmw.LoopbackOnly, headers.Handler, cors.Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/events", s.hub.ServeHTTP)
	r.With(auth.Handler, smallBody.Handler).Post("/notify", s.handleNotify)
	r.Get("/", s.handleIndex)

	r.Route("/api", func(api chi.Router) {
		api.Use(limiter.Handler)

		api.Group(func(q chi.Router) {
			q.Use(smallBody.Handler)

			q.Get("/search", s.handleSearch)
			q.Get("/hybrid-search", s.handleHybridSearch)
			q.Post("/observations/batch", s.handleBatchObservations)
			q.Get("/timeline", s.handleTimeline)
			q.Get("/context/{project}", s.handleContext)
			q.Get("/checkpoint", s.handleCheckpointByProject)
			q.Get("/sessions/{id}/checkpoint", s.handleCheckpointBySession)
			q.Get("/embeddings/stats", s.handleEmbeddingStats)
			q.Post("/embeddings/backfill", s.handleEmbeddingBackfill)
			q.Get("/report", s.handleReport)

			q.Post("/knowledge", s.handleKnowledge)
			q.Post("/memory/save", s.handleMemorySave)
			q.Post("/observations/consolidate", s.handleConsolidate)
			q.Post("/observations/mark-stale", s.handleMarkStale)

			q.Post("/hooks/observation", s.handleHookObservation)
			q.Post("/hooks/prompt", s.handleHookPrompt)
			q.Post("/hooks/session-start", s.handleHookSessionStart)
			q.Post("/hooks/session-end", s.handleHookSessionEnd)

			q.Post("/backup/create", s.handleBackupCreate)
			q.Get("/backup/list", s.handleBackupList)
			q.With(auth.Handler).Post("/backup/restore", s.handleBackupRestore)
			q.With(auth.Handler).Post("/admin/retention", s.handleAdminRetention)
		})

		api.With(importBody.Handler).Post("/import/jsonl", s.handleImport)
		api.Get("/export/jsonl", s.handleExport)
	})

	return r
}

func nowEpoch() int64 {
	return time.Now().UnixMilli()
}

// queryCtx derives the synchronous-query deadline context from a request.
func queryCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), QueryTimeout)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	httpmw.WriteJSON(w, status, data)
}

// errorBody is the stable error envelope every failure path returns.
type errorBody struct {
	Error string `json:"error"`
}

// writeError maps internal failures onto status codes without ever
// echoing raw store or provider error text to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ingest.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "query timed out"})
	default:
		if s.log != nil {
			s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(into)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"sse_clients": s.hub.ClientCount(),
	})
}

// handleNotify lets authenticated local tooling push an arbitrary typed
// event onto the SSE stream.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := decodeBody(r, &body); err != nil || body.Event == "" {
		badRequest(w, "event name is required")
		return
	}
	s.hub.Broadcast(sse.Event{Name: body.Event, Data: body.Data})
	writeJSON(w, http.StatusOK, map[string]any{"delivered": s.hub.ClientCount()})
}

// handleIndex serves the static UI entry point when one is installed, and a
// minimal status page otherwise.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.staticDir != "" {
		http.ServeFile(w, r, s.staticDir+"/index.html")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>kiro-memory</title><p>kiro-memory worker " + s.version + " is running.</p>"))
}
