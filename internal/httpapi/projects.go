package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/mirkovic-academy/quantframe/internal/exercise"
)

type projectKey struct {
	userID    string
	projectID string
}

// projectRegistry holds the block gates of open coding projects.
type projectRegistry struct {
	mu    sync.Mutex
	byID  map[string]*exercise.Gate
	byKey map[projectKey]string
}

func newProjectRegistry() *projectRegistry {
	return &projectRegistry{
		byID:  make(map[string]*exercise.Gate),
		byKey: make(map[projectKey]string),
	}
}

// open returns the gate for key, creating it with mk when there is none.
func (r *projectRegistry) open(key projectKey, mk func() (*exercise.Gate, error)) (string, *exercise.Gate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[key]; ok {
		return id, r.byID[id], true, nil
	}
	g, err := mk()
	if err != nil {
		return "", nil, false, err
	}
	id := uuid.NewString()
	r.byID[id] = g
	r.byKey[key] = id
	return id, g, false, nil
}

func (r *projectRegistry) get(id string) (*exercise.Gate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byID[id]
	return g, ok
}

func (s *Server) projectRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/projects", s.handleOpenProject)
	mux.HandleFunc("GET /v1/projects/{id}", s.handleGetProject)
	mux.HandleFunc("POST /v1/projects/{id}/blocks/{block}/run", s.handleRunBlock)
}

type openProjectRequest struct {
	UserID    string   `json:"user_id"`
	ProjectID string   `json:"project_id"`
	Blocks    []string `json:"blocks"`
	// Completed restores blocks finished in an earlier visit.
	Completed []string `json:"completed,omitempty"`
}

type projectResponse struct {
	ID        string                `json:"id"`
	ProjectID string                `json:"project_id"`
	Resumed   bool                  `json:"resumed,omitempty"`
	Blocks    []exercise.BlockState `json:"blocks"`
	Done      int                   `json:"done"`
	Total     int                   `json:"total"`
}

func presentProject(id string, g *exercise.Gate) projectResponse {
	done, total := g.Progress()
	return projectResponse{ID: id, ProjectID: g.ProjectID(), Blocks: g.State(), Done: done, Total: total}
}

func (s *Server) handleOpenProject(w http.ResponseWriter, r *http.Request) {
	var req openProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.ProjectID == "" || len(req.Blocks) == 0 {
		writeError(w, http.StatusBadRequest, "user_id, project_id and blocks are required")
		return
	}

	id, g, resumed, err := s.projects.open(projectKey{req.UserID, req.ProjectID}, func() (*exercise.Gate, error) {
		g, err := exercise.NewGate(req.ProjectID, req.Blocks)
		if err != nil {
			return nil, err
		}
		g.Restore(req.Completed)
		return g, nil
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := presentProject(id, g)
	resp.Resumed = resumed
	status := http.StatusCreated
	if resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g, ok := s.projects.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, presentProject(id, g))
}

type runBlockRequest struct {
	Language string              `json:"language"`
	Code     string              `json:"code"`
	Cases    []exercise.TestCase `json:"cases"`
}

type runBlockResponse struct {
	Results   []exercise.CaseResult `json:"results"`
	AllPassed bool                  `json:"all_passed"`
	Project   projectResponse       `json:"project"`
}

// handleRunBlock runs the learner's code for one block and completes the
// block when every case passes.
func (s *Server) handleRunBlock(w http.ResponseWriter, r *http.Request) {
	id, block := r.PathValue("id"), r.PathValue("block")
	g, ok := s.projects.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	var req runBlockRequest
	if err := decodeJSON(w, r, &req); err != nil || len(req.Cases) == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.deps.Sandbox == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "code sandbox is not configured"})
		return
	}
	if !g.Has(block) {
		writeError(w, http.StatusNotFound, exercise.ErrUnknownBlock.Error())
		return
	}
	if !g.Unlocked(block) {
		writeError(w, http.StatusConflict, exercise.ErrBlockLocked.Error())
		return
	}

	results, err := s.deps.Sandbox.Run(r.Context(), req.Language, req.Code, req.Cases)
	if err != nil {
		slog.Warn("sandbox run failed", "project_id", g.ProjectID(), "block", block, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "code sandbox failed", Retryable: true})
		return
	}

	err = g.CompleteWithResults(block, req.Cases, results)
	switch {
	case err == nil, errors.Is(err, exercise.ErrTestsFailed):
	default:
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runBlockResponse{
		Results:   results,
		AllPassed: err == nil,
		Project:   presentProject(id, g),
	})
}
