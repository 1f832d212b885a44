package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mirkovic-academy/quantframe/internal/exam"
)

// Live message types.
const (
	liveDraft  = "draft"
	liveSelect = "select"
	liveFlush  = "flush"
	liveView   = "view"
	liveError  = "error"
)

type liveMessage struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Option int    `json:"option,omitempty"`
}

type liveReply struct {
	Type    string           `json:"type"`
	Session *sessionResponse `json:"session,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// handleLive streams edits over a websocket. In exam mode every non-empty
// edit is committed, which schedules a debounced autosave; closing the
// socket flushes progress like a page-unload beacon.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", e.id, "error", err)
		return
	}
	defer c.CloseNow()
	defer flushDetached(e)

	ctx := r.Context()
	for {
		var msg liveMessage
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				slog.Debug("live session closed", "session_id", e.id, "error", err)
			}
			return
		}

		reply := liveReply{Type: liveView}
		if err := applyLive(ctx, e.session, msg); err != nil {
			reply = liveReply{Type: liveError, Error: err.Error()}
		}
		if reply.Type == liveView {
			resp := present(e)
			reply.Session = &resp
		}
		if err := wsjson.Write(ctx, c, reply); err != nil {
			return
		}
	}
}

var errUnknownMessage = errors.New("unknown message type")

func applyLive(ctx context.Context, sess *exam.Session, msg liveMessage) error {
	switch msg.Type {
	case liveDraft:
		if err := sess.SetDraft(msg.Text); err != nil {
			return err
		}
		if sess.Mode() == exam.ModeExam && strings.TrimSpace(msg.Text) != "" {
			return sess.Save()
		}
		return nil
	case liveSelect:
		if err := sess.SelectOption(msg.Option); err != nil {
			return err
		}
		if sess.Mode() == exam.ModeExam {
			return sess.Save()
		}
		return nil
	case liveFlush:
		return sess.Flush(ctx)
	case liveView:
		return nil
	}
	return errUnknownMessage
}
