// Package api exposes Jobs and chat sessions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/forPelevin/vidsum/internal/chat"
	"github.com/forPelevin/vidsum/internal/domain/highlights"
	"github.com/forPelevin/vidsum/internal/domain/jobs"
	"github.com/forPelevin/vidsum/internal/pipeline"
	"github.com/forPelevin/vidsum/internal/ports"
	"github.com/forPelevin/vidsum/internal/storage"
)

type Orchestrator interface {
	Submit(ctx context.Context, req pipeline.Request) (jobs.Job, error)
	Cached(ctx context.Context, kind jobs.Kind, source string) (jobs.Job, bool, error)
}

// LLMFactory builds a provider for a chat session. Empty arguments select
// the configured defaults.
type LLMFactory func(ctx context.Context, provider, model string) (ports.LLM, error)

type Deps struct {
	Orchestrator Orchestrator
	Store        ports.JobStore
	Chats        *chat.Registry
	NewLLM       LLMFactory
	// Bounds fills clip settings a request leaves out.
	Bounds highlights.Bounds
	// OutputDir is served read-only under /output/. Local paths in requests
	// must resolve inside it.
	OutputDir string
	Log       *slog.Logger
}

type Server struct {
	d Deps
}

func New(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Chats == nil {
		d.Chats = chat.NewRegistry()
	}
	if d.Bounds == (highlights.Bounds{}) {
		d.Bounds = highlights.DefaultBounds()
	}
	s := &Server{d: d}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/transcribe", s.transcribe)
		r.Post("/transcribe/url", s.transcribe)
		r.Post("/summarize", s.summarize)
		r.Post("/extract-clips", s.extractClips)

		r.Get("/jobs", s.listJobs)
		r.Get("/jobs/{id}", s.getJob)

		r.Post("/chat/start", s.startChat)
		r.Post("/chat/message", s.chatMessage)
		r.Get("/chat/{id}/history", s.chatHistory)
		r.Delete("/chat/{id}", s.endChat)
	})

	if d.OutputDir != "" {
		r.Handle("/output/*", http.StripPrefix("/output/", http.FileServer(http.Dir(d.OutputDir))))
	}
	return r
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.d.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	list, err := s.d.Store.List(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

// submitted answers a Job submission.
func (s *Server) submitted(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	j, err := s.d.Orchestrator.Submit(r.Context(), req)
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusAccepted, jobAccepted{JobID: j.ID, Status: j.Status})
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.d.Log.Error("request failed", "path", r.URL.Path, "request_id", chimiddleware.GetReqID(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

type jobAccepted struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
	Cached bool        `json:"cached,omitempty"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
