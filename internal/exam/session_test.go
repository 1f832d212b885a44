package exam_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mirkovic-academy/quantframe/internal/exam"
	"github.com/mirkovic-academy/quantframe/internal/progress"
)

var sessionKey = progress.Key{UserID: "u-42", InstanceID: "lesson-3-quiz"}

func startSession(t *testing.T, mode exam.Mode, store progress.Store) *exam.Session {
	t.Helper()
	s, err := exam.Start(context.Background(), exam.Config{
		Key:            sessionKey,
		Mode:           mode,
		Questions:      fiveQuestions(),
		PassingPercent: 80,
		Store:          store,
		AutosaveDelay:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func answerCurrent(t *testing.T, s *exam.Session, value string) {
	t.Helper()
	var err error
	if s.Current().Kind() == exam.FormatMultipleChoice {
		var idx int
		if idx, err = strconv.Atoi(value); err == nil {
			err = s.SelectOption(idx)
		}
	} else {
		err = s.SetDraft(value)
	}
	if err != nil {
		t.Fatalf("draft %q: %v", value, err)
	}
}

func TestStart_Validation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  exam.Config
		want error
	}{
		{"no questions", exam.Config{Key: sessionKey}, exam.ErrNoQuestions},
		{"missing key", exam.Config{Questions: fiveQuestions()}, progress.ErrInvalidKey},
		{"duplicate ids", exam.Config{Key: sessionKey, Questions: []exam.Question{{ID: "a"}, {ID: "a"}}}, exam.ErrDuplicateID},
		{"bad percent", exam.Config{Key: sessionKey, Questions: fiveQuestions(), PassingPercent: 120}, exam.ErrInvalidPercent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := exam.Start(ctx, tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("Start() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStart_OrdersQuestions(t *testing.T) {
	s, err := exam.Start(context.Background(), exam.Config{
		Key: sessionKey,
		Questions: []exam.Question{
			{ID: "b", Order: 2, Answer: "2"},
			{ID: "a", Order: 1, Answer: "1"},
		},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()
	if got := s.Current().ID; got != "a" {
		t.Errorf("first question = %q, want a", got)
	}
}

func TestQuiz_SolutionViewedThenCorrectIsDisqualified(t *testing.T) {
	store := progress.NewMemoryStore()
	s := startSession(t, exam.ModeQuiz, store)
	ctx := context.Background()

	for _, v := range []string{"1/2", "3", "1", "2/3"} {
		answerCurrent(t, s, v)
		fb, err := s.Answer()
		if err != nil {
			t.Fatalf("Answer() error = %v", err)
		}
		if !fb.Correct {
			t.Fatalf("%s should be correct", fb.QuestionID)
		}
		if _, err := s.Advance(); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
	}

	reveal, err := s.RevealSolution()
	if err != nil {
		t.Fatalf("RevealSolution() error = %v", err)
	}
	if !reveal.NeedsConfirmation || reveal.Warning == "" || reveal.Visible {
		t.Fatalf("first reveal = %+v, want confirmation request", reveal)
	}
	if v := s.View(); len(v.SolutionViewed) != 0 {
		t.Fatalf("unconfirmed reveal must not mark viewed: %v", v.SolutionViewed)
	}
	reveal, err = s.ConfirmSolution()
	if err != nil || !reveal.Visible || reveal.Solution != "One quarter." {
		t.Fatalf("ConfirmSolution() = %+v, %v", reveal, err)
	}

	answerCurrent(t, s, "0.25")
	fb, err := s.Answer()
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if fb.Correct || !fb.Disqualified {
		t.Errorf("feedback = %+v, want disqualified", fb)
	}

	res, err := s.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Score != 4 || !res.Passed {
		t.Errorf("result = %d/%d passed=%v, want 4/5 passed", res.Score, res.Total, res.Passed)
	}
	if d, _ := res.Detail("q5"); d.Outcome != exam.OutcomeDisqualified {
		t.Errorf("q5 outcome = %s, want disqualified", d.Outcome)
	}

	attempts, _ := store.Attempts(ctx, sessionKey)
	if len(attempts) != 1 || attempts[0].Outcomes["q5"] != "disqualified" {
		t.Errorf("recorded attempts = %+v", attempts)
	}
}

func TestQuiz_AnswerLocksQuestion(t *testing.T) {
	s := startSession(t, exam.ModeQuiz, nil)

	if _, err := s.Answer(); !errors.Is(err, exam.ErrEmptyAnswer) {
		t.Fatalf("Answer() on empty draft error = %v", err)
	}
	answerCurrent(t, s, "1/3")
	fb, err := s.Answer()
	if err != nil || fb.Correct {
		t.Fatalf("Answer() = %+v, %v; want incorrect", fb, err)
	}
	if err := s.SetDraft("1/2"); !errors.Is(err, exam.ErrQuestionLocked) {
		t.Errorf("SetDraft() after answer error = %v, want locked", err)
	}
	if _, err := s.Answer(); !errors.Is(err, exam.ErrQuestionLocked) {
		t.Errorf("second Answer() error = %v, want locked", err)
	}
	if _, err := s.Next(); !errors.Is(err, exam.ErrWrongMode) {
		t.Errorf("Next() in quiz error = %v, want wrong mode", err)
	}
}

func TestSolution_RevealAfterConfirmDoesNotRewarn(t *testing.T) {
	s := startSession(t, exam.ModeExam, nil)

	if _, err := s.ConfirmSolution(); err != nil {
		t.Fatal(err)
	}
	if err := s.HideSolution(); err != nil {
		t.Fatal(err)
	}
	r, err := s.RevealSolution()
	if err != nil {
		t.Fatal(err)
	}
	if r.NeedsConfirmation || !r.Visible {
		t.Errorf("reveal after confirm = %+v, want visible without warning", r)
	}
	v := s.View()
	if len(v.SolutionViewed) != 1 || v.SolutionViewed[0] != "q1" {
		t.Errorf("SolutionViewed = %v, want [q1]", v.SolutionViewed)
	}
	if !v.SolutionShown {
		t.Error("solution should be shown")
	}
}

func TestSolution_ViewedSetIsMonotone(t *testing.T) {
	s := startSession(t, exam.ModeExam, nil)

	for i := 0; i < 3; i++ {
		if _, err := s.ConfirmSolution(); err != nil {
			t.Fatal(err)
		}
		if err := s.HideSolution(); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.View().SolutionViewed; len(got) != 1 {
		t.Errorf("SolutionViewed = %v, want a single entry", got)
	}
}

func TestExam_NavigationAutoCommits(t *testing.T) {
	s := startSession(t, exam.ModeExam, nil)

	if _, err := s.Previous(); !errors.Is(err, exam.ErrAtStart) {
		t.Errorf("Previous() at start error = %v", err)
	}
	answerCurrent(t, s, "1/2")
	if nav, err := s.Next(); err != nil || nav.Index != 1 {
		t.Fatalf("Next() = %+v, %v", nav, err)
	}
	if got := s.View().Answers["q1"]; got != "1/2" {
		t.Errorf("q1 answer = %q, want auto-committed 1/2", got)
	}

	if _, err := s.Next(); err != nil {
		t.Fatal(err)
	}
	if nav, err := s.Previous(); err != nil || nav.Index != 1 {
		t.Fatalf("Previous() = %+v, %v", nav, err)
	}
	if _, ok := s.View().Answers["q3"]; ok {
		t.Error("empty draft must not be committed")
	}
	if _, err := s.Previous(); err != nil {
		t.Fatal(err)
	}
	if got := s.View().Draft; got != "1/2" {
		t.Errorf("draft on return = %q, want committed answer", got)
	}
}

func TestExam_NextOnLastPromptsSubmit(t *testing.T) {
	s := startSession(t, exam.ModeExam, nil)
	for i := 0; i < 4; i++ {
		if _, err := s.Next(); err != nil {
			t.Fatal(err)
		}
	}
	nav, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !nav.PromptSubmit || nav.Index != 4 || nav.Unanswered != 5 {
		t.Errorf("Next() on last = %+v", nav)
	}
}

func TestExam_SaveValidation(t *testing.T) {
	s := startSession(t, exam.ModeExam, nil)

	if err := s.Save(); !errors.Is(err, exam.ErrEmptyAnswer) {
		t.Errorf("Save() empty error = %v", err)
	}
	if err := s.SelectOption(0); !errors.Is(err, exam.ErrWrongFormat) {
		t.Errorf("SelectOption() on math question error = %v", err)
	}
	if _, err := s.Answer(); !errors.Is(err, exam.ErrWrongMode) {
		t.Errorf("Answer() in exam error = %v", err)
	}
	s.Next()
	s.Next()
	if err := s.SelectOption(3); !errors.Is(err, exam.ErrOptionOutOfRange) {
		t.Errorf("SelectOption(3) error = %v", err)
	}
	if err := s.SetDraft("put"); !errors.Is(err, exam.ErrWrongFormat) {
		t.Errorf("SetDraft() on choice question error = %v", err)
	}
}

func TestExam_AutosaveAndResume(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := context.Background()

	s := startSession(t, exam.ModeExam, store)
	answerCurrent(t, s, "1/2")
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Next(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ConfirmSolution(); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	s.Close()

	resumed := startSession(t, exam.ModeExam, store)
	v := resumed.View()
	if v.Index != 1 || v.Answers["q1"] != "1/2" {
		t.Errorf("resumed view = %+v", v)
	}
	if len(v.SolutionViewed) != 1 || v.SolutionViewed[0] != "q2" {
		t.Errorf("resumed SolutionViewed = %v, want [q2]", v.SolutionViewed)
	}
}

func TestExam_DebouncedSaveReachesStore(t *testing.T) {
	store := progress.NewMemoryStore()
	s := startSession(t, exam.ModeExam, store)

	answerCurrent(t, s, "7")
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, found, _ := store.LoadProgress(context.Background(), sessionKey)
		if found && snap.Answers["q1"] == "7" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("debounced save never reached the store")
}

func TestSubmit_Idempotent(t *testing.T) {
	store := progress.NewMemoryStore()
	s := startSession(t, exam.ModeExam, store)
	ctx := context.Background()

	answerCurrent(t, s, "1/2")
	first, err := s.Submit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Submit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Score != second.Score || first.AttemptNumber != second.AttemptNumber {
		t.Errorf("resubmit = %+v, want %+v", second, first)
	}
	if first.Score != 1 {
		t.Errorf("score = %d, want uncommitted draft merged for 1", first.Score)
	}
	attempts, _ := store.Attempts(ctx, sessionKey)
	if len(attempts) != 1 {
		t.Errorf("attempts recorded = %d, want 1", len(attempts))
	}
	if _, found, _ := store.LoadProgress(ctx, sessionKey); found {
		t.Error("autosave record should be deleted after submission")
	}
	if err := s.SetDraft("2"); !errors.Is(err, exam.ErrNotInProgress) {
		t.Errorf("SetDraft() after submit error = %v", err)
	}
}

// failingStore fails RecordAttemptResult until fail is cleared.
type failingStore struct {
	*progress.MemoryStore
	mu   sync.Mutex
	fail bool
}

func (f *failingStore) RecordAttemptResult(ctx context.Context, key progress.Key, attempt int, rec progress.AttemptRecord) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("database unavailable")
	}
	return f.MemoryStore.RecordAttemptResult(ctx, key, attempt, rec)
}

func TestSubmit_FailureRevertsToInProgress(t *testing.T) {
	store := &failingStore{MemoryStore: progress.NewMemoryStore(), fail: true}
	s := startSession(t, exam.ModeExam, store)
	ctx := context.Background()

	answerCurrent(t, s, "1/2")
	_, err := s.Submit(ctx)
	var submitErr *exam.SubmitError
	if !errors.As(err, &submitErr) || !submitErr.Retryable() {
		t.Fatalf("Submit() error = %v, want retryable SubmitError", err)
	}
	v := s.View()
	if v.Status != exam.StatusInProgress || v.Answers["q1"] != "1/2" {
		t.Fatalf("after failed submit view = %+v", v)
	}

	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()

	res, err := s.Submit(ctx)
	if err != nil || res.Score != 1 {
		t.Fatalf("retry Submit() = %+v, %v", res, err)
	}
	if res.AttemptNumber != submitErr.Attempt {
		t.Errorf("attempt number changed from %d to %d", submitErr.Attempt, res.AttemptNumber)
	}
}

func TestReset_ClearsStateAndStore(t *testing.T) {
	store := progress.NewMemoryStore()
	s := startSession(t, exam.ModeExam, store)
	ctx := context.Background()

	answerCurrent(t, s, "1/2")
	s.Next()
	s.ConfirmSolution()
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	v := s.View()
	if v.Index != 0 || len(v.Answers) != 0 || len(v.SolutionViewed) != 0 {
		t.Errorf("view after reset = %+v", v)
	}
	time.Sleep(30 * time.Millisecond)
	if _, found, _ := store.LoadProgress(ctx, sessionKey); found {
		t.Error("progress should be deleted by reset")
	}
}

func TestRetry_StartsNextAttempt(t *testing.T) {
	store := progress.NewMemoryStore()
	s := startSession(t, exam.ModeQuiz, store)
	ctx := context.Background()

	if err := s.Retry(ctx); !errors.Is(err, exam.ErrNotCompleted) {
		t.Errorf("Retry() in progress error = %v", err)
	}
	first, err := s.Submit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(ctx); !errors.Is(err, exam.ErrNotInProgress) {
		t.Errorf("Reset() after submit error = %v", err)
	}
	if err := s.Retry(ctx); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	v := s.View()
	if v.Status != exam.StatusInProgress || v.AttemptNumber != first.AttemptNumber+1 {
		t.Errorf("after retry view = %+v", v)
	}
	if v.Result != nil || len(v.Locked) != 0 {
		t.Errorf("retry should start fresh: %+v", v)
	}
}

func TestSession_ConcurrentEdits(t *testing.T) {
	s := startSession(t, exam.ModeExam, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SetDraft("1/2")
			s.Save()
			s.ToggleHint()
			_ = s.View()
		}()
	}
	wg.Wait()
	if got := s.View().Answers["q1"]; got != "1/2" {
		t.Errorf("q1 = %q", got)
	}
}
