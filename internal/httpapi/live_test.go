package httpapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mirkovic-academy/quantframe/internal/exam"
	"github.com/mirkovic-academy/quantframe/internal/httpapi"
	"github.com/mirkovic-academy/quantframe/internal/progress"
)

type liveReply struct {
	Type    string       `json:"type"`
	Session *sessionBody `json:"session"`
	Error   string       `json:"error"`
}

func TestLiveSessionCommitsAndFlushes(t *testing.T) {
	store := progress.NewMemoryStore()
	srv := newServer(t, httpapi.Deps{Store: store, AutosaveDelay: time.Hour})
	s := start(t, srv, "u5", "midterm")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + s.ID + "/live"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.CloseNow()

	send := func(msg map[string]any) liveReply {
		t.Helper()
		if err := wsjson.Write(ctx, c, msg); err != nil {
			t.Fatalf("write %v: %v", msg, err)
		}
		var reply liveReply
		if err := wsjson.Read(ctx, c, &reply); err != nil {
			t.Fatalf("read reply to %v: %v", msg, err)
		}
		return reply
	}

	reply := send(map[string]any{"type": "draft", "text": "1/2"})
	if reply.Type != "view" || reply.Session == nil {
		t.Fatalf("reply = %+v, want view", reply)
	}
	if got := reply.Session.View.Answers["q1"]; got != "1/2" {
		t.Errorf("committed answer = %q, want 1/2", got)
	}

	reply = send(map[string]any{"type": "select", "option": 0})
	if reply.Type != "error" || reply.Error == "" {
		t.Errorf("select on a math question = %+v, want error", reply)
	}

	reply = send(map[string]any{"type": "shout"})
	if reply.Type != "error" {
		t.Errorf("unknown type = %+v, want error", reply)
	}

	reply = send(map[string]any{"type": "draft", "text": "  "})
	if reply.Type != "view" || reply.Session.View.Answers["q1"] != "1/2" {
		t.Errorf("blank draft must not overwrite the committed answer: %+v", reply)
	}

	key := progress.Key{UserID: "u5", InstanceID: "midterm"}
	if _, ok, _ := store.LoadProgress(ctx, key); ok {
		t.Fatal("progress saved before the debounce or a flush")
	}

	c.Close(websocket.StatusGoingAway, "page unload")

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, ok, err := store.LoadProgress(ctx, key)
		if err != nil {
			t.Fatalf("LoadProgress() error = %v", err)
		}
		if ok && snap.Answers["q1"] == "1/2" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("progress was not flushed after the socket closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveFlushMessage(t *testing.T) {
	store := progress.NewMemoryStore()
	srv := newServer(t, httpapi.Deps{Store: store, AutosaveDelay: time.Hour})
	s := start(t, srv, "u6", "midterm")
	step(t, srv, s.ID, "draft", map[string]any{"text": "0.5"}, http.StatusOK)
	step(t, srv, s.ID, "save", nil, http.StatusOK)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + s.ID + "/live"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.CloseNow()

	if err := wsjson.Write(ctx, c, map[string]any{"type": "flush"}); err != nil {
		t.Fatal(err)
	}
	var reply liveReply
	if err := wsjson.Read(ctx, c, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "view" || reply.Session.View.Status != exam.StatusInProgress {
		t.Fatalf("flush reply = %+v", reply)
	}
	snap, ok, err := store.LoadProgress(ctx, progress.Key{UserID: "u6", InstanceID: "midterm"})
	if err != nil || !ok || snap.Answers["q1"] != "0.5" {
		t.Errorf("after flush: %+v %v %v", snap, ok, err)
	}
	c.Close(websocket.StatusNormalClosure, "")
}

func TestLiveUnknownSession(t *testing.T) {
	srv := newServer(t, httpapi.Deps{})
	resp, err := srv.Client().Get(srv.URL + "/v1/sessions/missing/live")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
