package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mirkovic-academy/quantframe/internal/exam"
	"github.com/mirkovic-academy/quantframe/internal/progress"
	"github.com/mirkovic-academy/quantframe/internal/report"
)

func (s *Server) sessionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", s.handleStartSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.action(func(*http.Request, *exam.Session) (any, error) { return nil, nil }))
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleEndSession)
	mux.HandleFunc("GET /v1/sessions/{id}/report", s.handleSessionReport)
	mux.HandleFunc("GET /v1/sessions/{id}/live", s.handleLive)

	mux.HandleFunc("POST /v1/sessions/{id}/draft", s.action(applyDraft))
	mux.HandleFunc("POST /v1/sessions/{id}/save", s.action(func(_ *http.Request, sess *exam.Session) (any, error) {
		return nil, sess.Save()
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/answer", s.action(func(_ *http.Request, sess *exam.Session) (any, error) {
		return sess.Answer()
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/next", s.action(func(_ *http.Request, sess *exam.Session) (any, error) {
		return sess.Next()
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/previous", s.action(func(_ *http.Request, sess *exam.Session) (any, error) {
		return sess.Previous()
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/advance", s.action(func(_ *http.Request, sess *exam.Session) (any, error) {
		return sess.Advance()
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/hint", s.action(func(_ *http.Request, sess *exam.Session) (any, error) {
		visible, err := sess.ToggleHint()
		return map[string]bool{"hint_visible": visible}, err
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/solution", s.action(func(_ *http.Request, sess *exam.Session) (any, error) {
		return sess.RevealSolution()
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/solution/confirm", s.action(func(_ *http.Request, sess *exam.Session) (any, error) {
		return sess.ConfirmSolution()
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/solution/hide", s.action(func(_ *http.Request, sess *exam.Session) (any, error) {
		return nil, sess.HideSolution()
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/submit", s.action(func(r *http.Request, sess *exam.Session) (any, error) {
		return sess.Submit(r.Context())
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/reset", s.action(func(r *http.Request, sess *exam.Session) (any, error) {
		return nil, sess.Reset(r.Context())
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/retry", s.action(func(r *http.Request, sess *exam.Session) (any, error) {
		return nil, sess.Retry(r.Context())
	}))
	mux.HandleFunc("POST /v1/sessions/{id}/flush", s.action(func(r *http.Request, sess *exam.Session) (any, error) {
		return nil, sess.Flush(r.Context())
	}))
}

type startRequest struct {
	UserID     string `json:"user_id"`
	InstanceID string `json:"instance_id"`
}

// publicQuestion is a question without its canonical answer. The hint is
// included only while it is toggled on.
type publicQuestion struct {
	ID      string      `json:"id"`
	Prompt  string      `json:"prompt"`
	Format  exam.Format `json:"format"`
	Options []string    `json:"options,omitempty"`
	Section string      `json:"section,omitempty"`
	Hint    string      `json:"hint,omitempty"`
	HasHint bool        `json:"has_hint"`
}

type sessionResponse struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Resumed  bool           `json:"resumed,omitempty"`
	View     exam.View      `json:"view"`
	Question publicQuestion `json:"question"`
	Result   any            `json:"result,omitempty"`
}

func present(e *entry) sessionResponse {
	v := e.session.View()
	q := e.session.Current()
	pq := publicQuestion{
		ID:      q.ID,
		Prompt:  q.Prompt,
		Format:  q.Kind(),
		Options: q.Options,
		Section: q.Section,
		HasHint: q.Hint != "",
	}
	if v.HintVisible {
		pq.Hint = q.Hint
	}
	return sessionResponse{ID: e.id, Title: e.instance.Title, View: v, Question: pq}
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := progress.Key{UserID: req.UserID, InstanceID: req.InstanceID}
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if e, ok := s.sessions.active(key); ok {
		resp := present(e)
		resp.Resumed = true
		writeJSON(w, http.StatusOK, resp)
		return
	}

	inst, ok := s.deps.Instances.GetInstance(req.InstanceID)
	if !ok {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}

	sess, err := exam.Start(r.Context(), exam.Config{
		Key:            key,
		Mode:           inst.Mode,
		Questions:      inst.Questions,
		PassingPercent: inst.PassingPercent,
		Store:          s.deps.Store,
		Events:         s.deps.Events,
		AutosaveDelay:  s.deps.AutosaveDelay,
	})
	if err != nil {
		slog.Error("starting session failed", "user_id", key.UserID, "instance_id", key.InstanceID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not start session")
		return
	}

	e, old := s.sessions.add(inst, sess)
	if old != nil {
		old.session.Close()
	}
	slog.Info("session started", "session_id", e.id, "user_id", key.UserID, "instance_id", key.InstanceID)
	writeJSON(w, http.StatusCreated, present(e))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.remove(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := e.session.Flush(r.Context()); err != nil {
		slog.Warn("flush on close failed", "session_id", e.id, "error", err)
	}
	e.session.Close()
	w.WriteHeader(http.StatusNoContent)
}

// action wraps a session operation: it resolves the session, runs fn and
// answers with fn's result and the updated view.
func (s *Server) action(fn func(*http.Request, *exam.Session) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.sessions.get(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		out, err := fn(r, e.session)
		if err != nil {
			if errors.Is(err, errBadBody) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeSessionError(w, err)
			return
		}
		resp := present(e)
		resp.Result = out
		writeJSON(w, http.StatusOK, resp)
	}
}

var errBadBody = errors.New("invalid request body")

type draftRequest struct {
	Text   *string `json:"text"`
	Option *int    `json:"option"`
}

func applyDraft(r *http.Request, sess *exam.Session) (any, error) {
	var req draftRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil || (req.Text == nil) == (req.Option == nil) {
		return nil, errBadBody
	}
	return nil, edit(sess, req)
}

func edit(sess *exam.Session, req draftRequest) error {
	if req.Option != nil {
		return sess.SelectOption(*req.Option)
	}
	return sess.SetDraft(*req.Text)
}

func (s *Server) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	v := e.session.View()
	if v.Result == nil {
		writeSessionError(w, exam.ErrNotCompleted)
		return
	}

	history, err := s.deps.Store.Attempts(r.Context(), v.Key)
	if err != nil {
		slog.Warn("loading attempt history failed", "session_id", e.id, "error", err)
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+v.Key.InstanceID+`-attempt.xlsx"`)
	err = report.WriteAttempt(w, report.Attempt{
		Title:     e.instance.Title,
		Key:       v.Key,
		Questions: e.session.Questions(),
		Result:    *v.Result,
		History:   history,
	})
	if err != nil {
		slog.Error("writing attempt report failed", "session_id", e.id, "error", err)
	}
}

// flushDetached flushes with its own deadline, for when the request
// context is already gone.
func flushDetached(e *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := e.session.Flush(ctx); err != nil {
		slog.Warn("flush after disconnect failed", "session_id", e.id, "error", err)
	}
}
