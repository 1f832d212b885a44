package exercise_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mirkovic-academy/quantframe/internal/exercise"
)

func cases(n int) []exercise.TestCase {
	out := make([]exercise.TestCase, n)
	for i := range out {
		out[i] = exercise.TestCase{Input: exercise.Input{Kind: exercise.InputScalar, Scalar: float64(i)}, Expected: float64(2 * i)}
	}
	return out
}

func TestAllPassed(t *testing.T) {
	pass := func(i int) exercise.CaseResult { return exercise.CaseResult{Index: i, Outcome: exercise.OutcomePass} }
	tests := []struct {
		name    string
		cases   int
		results []exercise.CaseResult
		want    bool
	}{
		{"all pass", 2, []exercise.CaseResult{pass(0), pass(1)}, true},
		{"one fails", 2, []exercise.CaseResult{pass(0), {Index: 1, Outcome: exercise.OutcomeFail}}, false},
		{"one errors", 2, []exercise.CaseResult{pass(0), {Index: 1, Outcome: exercise.OutcomeError}}, false},
		{"missing result", 2, []exercise.CaseResult{pass(0)}, false},
		{"duplicate index", 2, []exercise.CaseResult{pass(0), pass(0)}, false},
		{"out of range", 1, []exercise.CaseResult{pass(3)}, false},
		{"no cases", 0, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exercise.AllPassed(cases(tt.cases), tt.results); got != tt.want {
				t.Errorf("AllPassed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPSandbox_Run(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/run" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Language string `json:"language"`
			Code     string `json:"code"`
			Cases    []struct {
				Input struct {
					Kind string `json:"kind"`
				} `json:"input"`
			} `json:"cases"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Language != "python" || req.Code != "def f(x): return 2*x" {
			t.Errorf("request = %+v", req)
		}
		if len(req.Cases) != 2 || req.Cases[0].Input.Kind != "scalar" {
			t.Errorf("cases = %+v", req.Cases)
		}
		w.Write([]byte(`{"results": [{"index": 0, "outcome": "pass"}, {"index": 1, "outcome": "pass", "actual": 2}]}`))
	}))
	defer server.Close()

	sb := exercise.NewHTTPSandbox(server.URL+"/", nil)
	tcs := cases(2)
	results, err := sb.Run(context.Background(), "python", "def f(x): return 2*x", tcs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !exercise.AllPassed(tcs, results) {
		t.Errorf("AllPassed() = false for %+v", results)
	}
}

func TestHTTPSandbox_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `boom`},
		{"bad json", http.StatusOK, `{`},
		{"short results", http.StatusOK, `{"results": [{"index": 0, "outcome": "pass"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			if _, err := exercise.NewHTTPSandbox(server.URL, nil).Run(context.Background(), "python", "x", cases(2)); err == nil {
				t.Error("Run() should fail")
			}
		})
	}
}
