package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mirkovic-academy/quantframe/internal/exam"
	"github.com/mirkovic-academy/quantframe/internal/progress"
	"github.com/mirkovic-academy/quantframe/internal/report"
	"github.com/mirkovic-academy/quantframe/internal/roadmap"
)

func open(t *testing.T, buf *bytes.Buffer) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func rows(t *testing.T, f *excelize.File, sheet string) [][]string {
	t.Helper()
	out, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows(%s) error = %v", sheet, err)
	}
	return out
}

func TestWriteAttempt(t *testing.T) {
	questions := []exam.Question{
		{ID: "q1", Prompt: "1/2 + 0", Answer: "1/2"},
		{ID: "q2", Prompt: "6/2", Answer: "3"},
		{ID: "q3", Prompt: "2/3", Answer: "2/3"},
	}
	answers := map[string]string{"q1": "2/4", "q2": "3"}
	res := exam.Grade(questions, answers, map[string]bool{"q2": true}, 80)
	res.AttemptNumber = 2

	var buf bytes.Buffer
	err := report.WriteAttempt(&buf, report.Attempt{
		Title:     "Lesson 1 quiz",
		Key:       progress.Key{UserID: "u1", InstanceID: "lesson-1-quiz"},
		Questions: questions,
		Result:    res,
		History: []progress.AttemptRecord{
			{AttemptNumber: 1, Score: 0, Total: 3, SubmittedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)},
		},
	})
	if err != nil {
		t.Fatalf("WriteAttempt() error = %v", err)
	}

	f := open(t, &buf)
	if got := f.GetSheetList(); len(got) != 3 || got[0] != report.SheetSummary {
		t.Fatalf("sheets = %v", got)
	}

	summary := rows(t, f, report.SheetSummary)
	want := map[string]string{"Score": "1/3", "Passed": "no", "Attempt": "2", "Unanswered": "1"}
	for _, r := range summary {
		if w, ok := want[r[0]]; ok && r[1] != w {
			t.Errorf("summary %s = %q, want %q", r[0], r[1], w)
		}
	}

	q := rows(t, f, report.SheetQuestions)
	if len(q) != 4 {
		t.Fatalf("question rows = %d, want header + 3", len(q))
	}
	outcomes := map[string]string{}
	for _, r := range q[1:] {
		outcomes[r[1]] = r[4]
	}
	if outcomes["q1"] != "correct" || outcomes["q2"] != "disqualified" || outcomes["q3"] != "unanswered" {
		t.Errorf("outcomes = %v", outcomes)
	}

	h := rows(t, f, report.SheetHistory)
	if len(h) != 2 || h[1][4] != "2026-10-01T09:00:00Z" {
		t.Errorf("history = %v", h)
	}
}

func TestWriteAttempt_NoHistory(t *testing.T) {
	var buf bytes.Buffer
	err := report.WriteAttempt(&buf, report.Attempt{
		Questions: []exam.Question{{ID: "q1", Answer: "1"}},
		Result:    exam.Grade([]exam.Question{{ID: "q1", Answer: "1"}}, map[string]string{"q1": "1"}, nil, 100),
	})
	if err != nil {
		t.Fatalf("WriteAttempt() error = %v", err)
	}
	f := open(t, &buf)
	if got := f.GetSheetList(); len(got) != 2 {
		t.Errorf("sheets = %v, want no history sheet", got)
	}
}

func TestWriteRoadmap(t *testing.T) {
	rm, err := roadmap.Generate(roadmap.Profile{
		PrimaryGoal:     roadmap.GoalTrade,
		LearningStyle:   "mixed",
		MotivationLevel: 5,
	}, nil, roadmap.Options{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var buf bytes.Buffer
	if err := report.WriteRoadmap(&buf, rm); err != nil {
		t.Fatalf("WriteRoadmap() error = %v", err)
	}

	f := open(t, &buf)
	r := rows(t, f, report.SheetRoadmap)
	if len(r) != rm.NodeCount()+1 {
		t.Fatalf("roadmap rows = %d, want %d", len(r), rm.NodeCount()+1)
	}
	if r[0][0] != "Phase" || r[0][8] != "Why included" {
		t.Errorf("header = %v", r[0])
	}
	last := r[len(r)-1]
	if last[0] != "4" || last[1] != "Break In / Execute" {
		t.Errorf("last row = %v, want phase 4", last)
	}

	summary := rows(t, f, report.SheetSummary)
	if summary[0][1] != "trade" {
		t.Errorf("goal = %q", summary[0][1])
	}
}
