// Package httpapi exposes the answer checker, exam sessions and roadmap
// generation over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mirkovic-academy/quantframe/internal/exam"
	"github.com/mirkovic-academy/quantframe/internal/exercise"
	"github.com/mirkovic-academy/quantframe/internal/progress"
	"github.com/mirkovic-academy/quantframe/internal/questionbank"
	"github.com/mirkovic-academy/quantframe/internal/roadmap"
)

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
	flushTimeout = 5 * time.Second
)

// InstanceSource resolves exam and quiz instances. *questionbank.Loader
// satisfies it.
type InstanceSource interface {
	GetInstance(id string) (questionbank.Instance, bool)
}

// Check is a named readiness probe.
type Check func(ctx context.Context) error

// Deps are the collaborators of the API.
type Deps struct {
	Instances     InstanceSource
	Store         progress.Store
	Events        progress.EventLogger
	Roadmaps      *roadmap.Service
	AutosaveDelay time.Duration
	Ready         map[string]Check
	// Sandbox runs coding exercises. Without one the run endpoint
	// answers 503.
	Sandbox exercise.Sandbox
}

// Server holds the HTTP handlers and the live sessions.
type Server struct {
	deps     Deps
	sessions *registry
	projects *projectRegistry
}

// New creates a server. Missing stores fall back to in-memory ones.
func New(deps Deps) *Server {
	if deps.Store == nil {
		deps.Store = progress.NewMemoryStore()
	}
	if deps.Events == nil {
		deps.Events = progress.NopEventLogger{}
	}
	if deps.Roadmaps == nil {
		deps.Roadmaps = roadmap.NewService(nil)
	}
	return &Server{deps: deps, sessions: newRegistry(), projects: newProjectRegistry()}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /v1/answers/check", handleAnswerCheck)
	mux.HandleFunc("POST /v1/roadmaps", s.handleRoadmap)
	mux.HandleFunc("POST /v1/roadmaps/export", s.handleRoadmapExport)

	s.sessionRoutes(mux)
	s.projectRoutes(mux)
	return mux
}

// Close flushes and stops every live session.
func (s *Server) Close(ctx context.Context) {
	for _, e := range s.sessions.drain() {
		if err := e.session.Flush(ctx); err != nil {
			slog.Warn("flush on shutdown failed", "session_id", e.id, "error", err)
		}
		e.session.Close()
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.deps.Ready {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeSessionError maps session errors to status codes: input problems
// are 422, state conflicts 409 and failed submissions 503.
func writeSessionError(w http.ResponseWriter, err error) {
	var submitErr *exam.SubmitError
	switch {
	case errors.As(err, &submitErr):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Retryable: submitErr.Retryable()})
	case errors.Is(err, exam.ErrEmptyAnswer),
		errors.Is(err, exam.ErrOptionOutOfRange),
		errors.Is(err, exam.ErrWrongFormat),
		errors.Is(err, exam.ErrAtStart):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, exam.ErrQuestionLocked),
		errors.Is(err, exam.ErrWrongMode),
		errors.Is(err, exam.ErrNotInProgress),
		errors.Is(err, exam.ErrSubmitting),
		errors.Is(err, exam.ErrNotCompleted):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("session operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
