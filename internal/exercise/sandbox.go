package exercise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Outcome is the sandbox verdict for one test case.
type Outcome string

const (
	OutcomePass  Outcome = "pass"
	OutcomeFail  Outcome = "fail"
	OutcomeError Outcome = "error"
)

// CaseResult is the verdict for the test case at Index.
type CaseResult struct {
	Index   int     `json:"index"`
	Outcome Outcome `json:"outcome"`
	Actual  any     `json:"actual,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Sandbox runs learner code against test cases. Implementations return one
// result per case.
type Sandbox interface {
	Run(ctx context.Context, language, code string, cases []TestCase) ([]CaseResult, error)
}

// AllPassed reports whether every case passed. It is the only signal used
// to complete a block; an empty run never passes.
func AllPassed(cases []TestCase, results []CaseResult) bool {
	if len(cases) == 0 || len(results) != len(cases) {
		return false
	}
	seen := make([]bool, len(cases))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(cases) || seen[r.Index] || r.Outcome != OutcomePass {
			return false
		}
		seen[r.Index] = true
	}
	return true
}

// HTTPSandbox calls a remote code runner over JSON.
type HTTPSandbox struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSandbox creates a client for the runner at baseURL.
func NewHTTPSandbox(baseURL string, client *http.Client) *HTTPSandbox {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSandbox{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

type runRequest struct {
	Language string     `json:"language"`
	Code     string     `json:"code"`
	Cases    []TestCase `json:"cases"`
}

type runResponse struct {
	Results []CaseResult `json:"results"`
}

func (s *HTTPSandbox) Run(ctx context.Context, language, code string, cases []TestCase) ([]CaseResult, error) {
	payload, err := json.Marshal(runRequest{Language: language, Code: code, Cases: cases})
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/run", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read sandbox response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox error (status %d): %s", resp.StatusCode, string(body))
	}

	var out runResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal sandbox response: %w", err)
	}
	if len(out.Results) != len(cases) {
		return nil, fmt.Errorf("sandbox returned %d results for %d cases", len(out.Results), len(cases))
	}
	return out.Results, nil
}
