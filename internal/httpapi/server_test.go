package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mirkovic-academy/quantframe/internal/exam"
	"github.com/mirkovic-academy/quantframe/internal/httpapi"
	"github.com/mirkovic-academy/quantframe/internal/progress"
	"github.com/mirkovic-academy/quantframe/internal/questionbank"
)

type instances map[string]questionbank.Instance

func (m instances) GetInstance(id string) (questionbank.Instance, bool) {
	inst, ok := m[id]
	return inst, ok
}

func fiveQuestions() []exam.Question {
	return []exam.Question{
		{ID: "q1", Order: 1, Prompt: "1/4 + 1/4", Answer: "1/2", Hint: "Add numerators.", Solution: "Halve it."},
		{ID: "q2", Order: 2, Prompt: "6/2", Answer: "3"},
		{ID: "q3", Order: 3, Prompt: "Right to sell?", Options: []string{"call", "put", "swap"}, CorrectOption: 1},
		{ID: "q4", Order: 4, Prompt: "Two thirds", Answer: "2/3"},
		{ID: "q5", Order: 5, Prompt: "1/4 as decimal", Answer: "0.25", Solution: "One quarter."},
	}
}

func testInstances() instances {
	return instances{
		"lesson-1-quiz": {ID: "lesson-1-quiz", Mode: exam.ModeQuiz, Title: "Lesson 1 quiz", PassingPercent: 80, Questions: fiveQuestions()},
		"midterm":       {ID: "midterm", Mode: exam.ModeExam, Title: "Midterm", PassingPercent: 60, Questions: fiveQuestions()},
	}
}

func newServer(t *testing.T, deps httpapi.Deps) *httptest.Server {
	t.Helper()
	if deps.Instances == nil {
		deps.Instances = testInstances()
	}
	if deps.AutosaveDelay == 0 {
		deps.AutosaveDelay = 10 * time.Millisecond
	}
	api := httpapi.New(deps)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		api.Close(context.Background())
	})
	return srv
}

// call sends a JSON request and decodes a JSON response into out when set.
func call(t *testing.T, srv *httptest.Server, method, path string, body any, out any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, httpapi.Deps{})
	var body map[string]string
	resp := call(t, srv, http.MethodGet, "/healthz", nil, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}
}

func TestReadyz(t *testing.T) {
	var mu sync.Mutex
	cacheErr := errors.New("connection refused")
	srv := newServer(t, httpapi.Deps{Ready: map[string]httpapi.Check{
		"database": func(context.Context) error { return nil },
		"cache": func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			return cacheErr
		},
	}})

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	resp := call(t, srv, http.MethodGet, "/readyz", nil, &body)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if body.Checks["cache"] != "connection refused" {
		t.Errorf("checks = %v", body.Checks)
	}
	if _, ok := body.Checks["database"]; ok {
		t.Error("healthy check reported as failed")
	}

	mu.Lock()
	cacheErr = nil
	mu.Unlock()
	if resp := call(t, srv, http.MethodGet, "/readyz", nil, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 once every check passes", resp.StatusCode)
	}
}

func TestAnswerCheck(t *testing.T) {
	srv := newServer(t, httpapi.Deps{})
	tests := []struct {
		body map[string]any
		want bool
	}{
		{map[string]any{"input": "2/4", "canonical": "1/2"}, true},
		{map[string]any{"input": "0.667", "canonical": "2/3"}, true},
		{map[string]any{"input": "abc", "canonical": "5"}, false},
		{map[string]any{"input": "", "canonical": "5"}, false},
		{map[string]any{"input": "Black-Scholes", "canonical": "black scholes", "text": true}, true},
	}
	for _, tt := range tests {
		var out map[string]bool
		resp := call(t, srv, http.MethodPost, "/v1/answers/check", tt.body, &out)
		if resp.StatusCode != http.StatusOK || out["match"] != tt.want {
			t.Errorf("check %v = %d %v, want %v", tt.body, resp.StatusCode, out, tt.want)
		}
	}

	if resp := call(t, srv, http.MethodPost, "/v1/answers/check", map[string]any{"unknown": 1}, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", resp.StatusCode)
	}
}

func TestNotFound(t *testing.T) {
	srv := newServer(t, httpapi.Deps{})
	if resp := call(t, srv, http.MethodGet, "/v1/sessions/nope", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodPost, "/v1/sessions/nope/next", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

var _ progress.Store = (*flakyStore)(nil)

// flakyStore fails RecordAttemptResult while fail is set.
type flakyStore struct {
	*progress.MemoryStore
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *flakyStore) RecordAttemptResult(ctx context.Context, key progress.Key, attempt int, rec progress.AttemptRecord) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("database unavailable")
	}
	return f.MemoryStore.RecordAttemptResult(ctx, key, attempt, rec)
}
