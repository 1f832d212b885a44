package httpapi_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mirkovic-academy/quantframe/internal/exam"
	"github.com/mirkovic-academy/quantframe/internal/httpapi"
	"github.com/mirkovic-academy/quantframe/internal/progress"
	"github.com/mirkovic-academy/quantframe/internal/report"
)

type sessionBody struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Resumed  bool      `json:"resumed"`
	View     exam.View `json:"view"`
	Question struct {
		ID      string   `json:"id"`
		Format  string   `json:"format"`
		Options []string `json:"options"`
		Hint    string   `json:"hint"`
		HasHint bool     `json:"has_hint"`
	} `json:"question"`
}

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func start(t *testing.T, srv *httptest.Server, user, instance string) sessionBody {
	t.Helper()
	var body sessionBody
	resp := call(t, srv, http.MethodPost, "/v1/sessions", map[string]string{"user_id": user, "instance_id": instance}, &body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, want 201", resp.StatusCode)
	}
	return body
}

// step posts an action and fails the test on an unexpected status.
func step(t *testing.T, srv *httptest.Server, id, action string, body any, want int) {
	t.Helper()
	resp := call(t, srv, http.MethodPost, "/v1/sessions/"+id+"/"+action, body, nil)
	if resp.StatusCode != want {
		t.Fatalf("%s status = %d, want %d", action, resp.StatusCode, want)
	}
}

func TestStartSessionValidation(t *testing.T) {
	srv := newServer(t, httpapi.Deps{})
	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing user", map[string]string{"instance_id": "midterm"}, http.StatusBadRequest},
		{"missing instance", map[string]string{"user_id": "u1"}, http.StatusBadRequest},
		{"unknown instance", map[string]string{"user_id": "u1", "instance_id": "final"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := call(t, srv, http.MethodPost, "/v1/sessions", tt.body, nil); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestQuizFlowOverHTTP(t *testing.T) {
	srv := newServer(t, httpapi.Deps{})
	s := start(t, srv, "u1", "lesson-1-quiz")
	if s.View.Mode != exam.ModeQuiz || s.View.Total != 5 || s.Title != "Lesson 1 quiz" {
		t.Fatalf("start view = %+v", s.View)
	}
	if !s.Question.HasHint || s.Question.Hint != "" {
		t.Errorf("hint should be hidden until toggled: %+v", s.Question)
	}

	var hinted sessionBody
	call(t, srv, http.MethodPost, "/v1/sessions/"+s.ID+"/hint", nil, &hinted)
	if hinted.Question.Hint != "Add numerators." {
		t.Errorf("hint after toggle = %q", hinted.Question.Hint)
	}

	answers := []map[string]any{
		{"text": "2/4"},
		{"text": "3.0"},
		{"option": 1},
		{"text": "0.667"},
	}
	for _, a := range answers {
		step(t, srv, s.ID, "draft", a, http.StatusOK)
		step(t, srv, s.ID, "answer", nil, http.StatusOK)
		step(t, srv, s.ID, "draft", map[string]any{"text": "9"}, http.StatusConflict)
		step(t, srv, s.ID, "advance", nil, http.StatusOK)
	}

	var reveal struct {
		Result exam.Reveal `json:"result"`
	}
	call(t, srv, http.MethodPost, "/v1/sessions/"+s.ID+"/solution", nil, &reveal)
	if !reveal.Result.NeedsConfirmation || reveal.Result.Warning == "" {
		t.Fatalf("first reveal = %+v, want confirmation", reveal.Result)
	}
	call(t, srv, http.MethodPost, "/v1/sessions/"+s.ID+"/solution/confirm", nil, &reveal)
	if !reveal.Result.Visible || reveal.Result.Solution != "One quarter." {
		t.Fatalf("confirmed reveal = %+v", reveal.Result)
	}

	step(t, srv, s.ID, "draft", map[string]any{"text": "1/4"}, http.StatusOK)
	var fb struct {
		Result exam.Feedback `json:"result"`
	}
	call(t, srv, http.MethodPost, "/v1/sessions/"+s.ID+"/answer", nil, &fb)
	if fb.Result.Correct || !fb.Result.Disqualified {
		t.Errorf("feedback = %+v, want disqualified", fb.Result)
	}

	if resp := call(t, srv, http.MethodGet, "/v1/sessions/"+s.ID+"/report", nil, nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("report before submit status = %d, want 409", resp.StatusCode)
	}

	var submitted struct {
		Result exam.Result `json:"result"`
		View   exam.View   `json:"view"`
	}
	call(t, srv, http.MethodPost, "/v1/sessions/"+s.ID+"/submit", nil, &submitted)
	if submitted.Result.Score != 4 || !submitted.Result.Passed {
		t.Errorf("result = %d passed=%v, want 4 passed", submitted.Result.Score, submitted.Result.Passed)
	}
	if submitted.View.Status != exam.StatusCompleted {
		t.Errorf("status = %q, want completed", submitted.View.Status)
	}

	resp, err := srv.Client().Get(srv.URL + "/v1/sessions/" + s.ID + "/report")
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != report.ContentType {
		t.Fatalf("report = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(report.SheetQuestions)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("question rows = %d, want header + 5", len(rows))
	}
	if got := rows[5][4]; got != string(exam.OutcomeDisqualified) {
		t.Errorf("q5 outcome = %q, want disqualified", got)
	}
}

func TestExamFlowOverHTTP(t *testing.T) {
	store := progress.NewMemoryStore()
	srv := newServer(t, httpapi.Deps{Store: store})
	s := start(t, srv, "u2", "midterm")

	step(t, srv, s.ID, "previous", nil, http.StatusUnprocessableEntity)
	step(t, srv, s.ID, "answer", nil, http.StatusConflict)
	step(t, srv, s.ID, "save", nil, http.StatusUnprocessableEntity)
	step(t, srv, s.ID, "draft", map[string]any{"text": "1/2", "option": 1}, http.StatusBadRequest)
	step(t, srv, s.ID, "draft", map[string]any{}, http.StatusBadRequest)

	step(t, srv, s.ID, "draft", map[string]any{"text": "1/2"}, http.StatusOK)
	var moved sessionBody
	call(t, srv, http.MethodPost, "/v1/sessions/"+s.ID+"/next", nil, &moved)
	if moved.View.Index != 1 || moved.View.Answers["q1"] != "1/2" {
		t.Fatalf("after next: index %d answers %v", moved.View.Index, moved.View.Answers)
	}

	var resumed sessionBody
	resp := call(t, srv, http.MethodPost, "/v1/sessions", map[string]string{"user_id": "u2", "instance_id": "midterm"}, &resumed)
	if resp.StatusCode != http.StatusOK || !resumed.Resumed || resumed.ID != s.ID {
		t.Errorf("resume = %d resumed=%v id=%q, want 200 true %q", resp.StatusCode, resumed.Resumed, resumed.ID, s.ID)
	}

	if resp := call(t, srv, http.MethodDelete, "/v1/sessions/"+s.ID, nil, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	snap, ok, err := store.LoadProgress(context.Background(), progress.Key{UserID: "u2", InstanceID: "midterm"})
	if err != nil || !ok {
		t.Fatalf("LoadProgress() = %v, %v", ok, err)
	}
	if snap.Answers["q1"] != "1/2" || snap.QuestionIndex != 1 {
		t.Errorf("persisted snapshot = %+v", snap)
	}
	if resp := call(t, srv, http.MethodGet, "/v1/sessions/"+s.ID, nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}

	restored := start(t, srv, "u2", "midterm")
	if restored.View.Answers["q1"] != "1/2" || restored.View.Index != 1 {
		t.Errorf("restored view = %+v", restored.View)
	}
}

func TestSubmitFailureIsRetryable(t *testing.T) {
	store := &flakyStore{MemoryStore: progress.NewMemoryStore(), fail: true}
	srv := newServer(t, httpapi.Deps{Store: store})
	s := start(t, srv, "u3", "midterm")
	step(t, srv, s.ID, "draft", map[string]any{"text": "0.5"}, http.StatusOK)

	var failed errorBody
	resp := call(t, srv, http.MethodPost, "/v1/sessions/"+s.ID+"/submit", nil, &failed)
	if resp.StatusCode != http.StatusServiceUnavailable || !failed.Retryable {
		t.Fatalf("submit = %d %+v, want 503 retryable", resp.StatusCode, failed)
	}

	var view sessionBody
	call(t, srv, http.MethodGet, "/v1/sessions/"+s.ID, nil, &view)
	if view.View.Status != exam.StatusInProgress || view.View.Answers["q1"] != "0.5" {
		t.Errorf("after failed submit = %+v", view.View)
	}

	store.setFail(false)
	var ok struct {
		Result exam.Result `json:"result"`
	}
	if resp := call(t, srv, http.MethodPost, "/v1/sessions/"+s.ID+"/submit", nil, &ok); resp.StatusCode != http.StatusOK {
		t.Fatalf("retry submit status = %d", resp.StatusCode)
	}
	if ok.Result.Score != 1 || ok.Result.Passed {
		t.Errorf("result = %+v, want score 1 failed", ok.Result)
	}

	step(t, srv, s.ID, "reset", nil, http.StatusConflict)
	step(t, srv, s.ID, "retry", nil, http.StatusOK)
	var fresh sessionBody
	call(t, srv, http.MethodGet, "/v1/sessions/"+s.ID, nil, &fresh)
	if fresh.View.AttemptNumber != 2 || len(fresh.View.Answers) != 0 {
		t.Errorf("after retry = %+v", fresh.View)
	}
}

func TestCloseFlushesOpenSessions(t *testing.T) {
	store := progress.NewMemoryStore()
	api := httpapi.New(httpapi.Deps{Instances: testInstances(), Store: store, AutosaveDelay: time.Hour})
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	s := start(t, srv, "u4", "midterm")
	step(t, srv, s.ID, "draft", map[string]any{"text": "1/2"}, http.StatusOK)
	step(t, srv, s.ID, "save", nil, http.StatusOK)

	api.Close(context.Background())
	snap, ok, err := store.LoadProgress(context.Background(), progress.Key{UserID: "u4", InstanceID: "midterm"})
	if err != nil || !ok || snap.Answers["q1"] != "1/2" {
		t.Errorf("after Close: %+v %v %v", snap, ok, err)
	}
	resp, err := srv.Client().Get(srv.URL + "/v1/sessions/" + s.ID)
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("session still registered after Close: %d", resp.StatusCode)
	}
}
