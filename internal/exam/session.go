// Package exam runs one exam or lesson-quiz attempt as an explicit state
// machine: answer capture, navigation, solution forfeiture, autosave and
// grading.
package exam

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mirkovic-academy/quantframe/internal/progress"
)

// Mode selects the interaction flow.
type Mode string

const (
	// ModeExam is save-then-navigate: drafts are committed by Save or by
	// navigating away, and progress autosaves.
	ModeExam Mode = "exam"
	// ModeQuiz is submit-and-lock: answering evaluates immediately and
	// locks the question.
	ModeQuiz Mode = "quiz"
)

// Status is the attempt lifecycle state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitting Status = "submitting"
	StatusCompleted  Status = "completed"
)

const (
	examSolutionWarning = "Viewing the solution is recorded for this attempt and the question will not earn credit."
	quizSolutionWarning = "If you view the solution, this question cannot earn credit in this attempt, even if you answer it correctly."
)

// Config describes a session to start.
type Config struct {
	Key            progress.Key
	Mode           Mode
	Questions      []Question
	PassingPercent int
	// AttemptNumber is taken from the store when zero.
	AttemptNumber int
	Store         progress.Store
	Events        progress.EventLogger
	AutosaveDelay time.Duration
}

// Session owns the mutable state of one attempt. All methods are safe for
// concurrent use.
type Session struct {
	key       progress.Key
	mode      Mode
	questions []Question
	percent   int
	store     progress.Store
	events    progress.EventLogger
	saver     *Autosaver

	mu         sync.Mutex
	status     Status
	attempt    int
	index      int
	answers    map[string]string
	draft      string
	draftDirty bool
	locked     map[string]bool
	viewed     map[string]bool
	viewOrder  []string
	hints      map[string]bool
	solutions  map[string]bool
	result     *Result
}

// Start validates cfg and opens an attempt. In exam mode any autosaved
// progress for the key is restored.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if err := cfg.Key.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if cfg.PassingPercent < 0 || cfg.PassingPercent > 100 {
		return nil, ErrInvalidPercent
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeExam
	}
	if mode != ModeExam && mode != ModeQuiz {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	questions := slices.Clone(cfg.Questions)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		if q.ID == "" || seen[q.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, q.ID)
		}
		seen[q.ID] = true
	}

	store := cfg.Store
	if store == nil {
		store = progress.NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = progress.NopEventLogger{}
	}

	attempt := cfg.AttemptNumber
	if attempt == 0 {
		next, err := store.NextAttemptNumber(ctx, cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("allocate attempt number: %w", err)
		}
		attempt = next
	}

	s := &Session{
		key:       cfg.Key,
		mode:      mode,
		questions: questions,
		percent:   cfg.PassingPercent,
		store:     store,
		events:    events,
		status:    StatusInProgress,
		attempt:   attempt,
	}
	s.clearLocked()

	if mode == ModeExam {
		s.saver = NewAutosaver(store, cfg.Key, cfg.AutosaveDelay)
		snap, found, err := store.LoadProgress(ctx, cfg.Key)
		if err != nil {
			slog.Warn("loading saved progress failed, starting fresh",
				"key", cfg.Key.String(),
				"error", err,
			)
		} else if found {
			s.restoreLocked(snap)
		}
	}

	s.logEvent(progress.EventAttemptStarted, map[string]any{
		"mode":      string(mode),
		"questions": len(questions),
	})
	return s, nil
}

// Key returns the (user, instance) pair this session belongs to.
func (s *Session) Key() progress.Key { return s.key }

// Mode returns the interaction flow.
func (s *Session) Mode() Mode { return s.mode }

// Questions returns the ordered question list.
func (s *Session) Questions() []Question { return slices.Clone(s.questions) }

// SetDraft edits the free-text draft for the current question.
func (s *Session) SetDraft(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.editableLocked()
	if err != nil {
		return err
	}
	if q.Kind() == FormatMultipleChoice {
		return ErrWrongFormat
	}
	s.draft = text
	s.draftDirty = true
	return nil
}

// SelectOption sets the draft for a multiple-choice question.
func (s *Session) SelectOption(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.editableLocked()
	if err != nil {
		return err
	}
	if q.Kind() != FormatMultipleChoice {
		return ErrWrongFormat
	}
	if i < 0 || i >= len(q.Options) {
		return ErrOptionOutOfRange
	}
	s.draft = strconv.Itoa(i)
	s.draftDirty = true
	return nil
}

// Save commits the current draft into the answers map (exam mode).
func (s *Session) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(ModeExam); err != nil {
		return err
	}
	if strings.TrimSpace(s.draft) == "" {
		return ErrEmptyAnswer
	}
	s.commitLocked()
	return nil
}

// Feedback is returned when a quiz question is answered.
type Feedback struct {
	QuestionID   string `json:"question_id"`
	Correct      bool   `json:"correct"`
	Disqualified bool   `json:"disqualified"`
}

// Answer evaluates the current draft and locks the question (quiz mode).
func (s *Session) Answer() (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(ModeQuiz); err != nil {
		return Feedback{}, err
	}
	q := s.questions[s.index]
	if s.locked[q.ID] {
		return Feedback{}, ErrQuestionLocked
	}
	if strings.TrimSpace(s.draft) == "" {
		return Feedback{}, ErrEmptyAnswer
	}
	s.commitLocked()
	s.locked[q.ID] = true

	raw := q.Check(s.answers[q.ID])
	return Feedback{
		QuestionID:   q.ID,
		Correct:      raw && !s.viewed[q.ID],
		Disqualified: raw && s.viewed[q.ID],
	}, nil
}

// ToggleHint flips hint visibility for the current question. It has no
// effect on scoring.
func (s *Session) ToggleHint() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(""); err != nil {
		return false, err
	}
	id := s.questions[s.index].ID
	s.hints[id] = !s.hints[id]
	return s.hints[id], nil
}

// Reveal describes the solution panel state for the current question.
type Reveal struct {
	QuestionID        string `json:"question_id"`
	NeedsConfirmation bool   `json:"needs_confirmation"`
	Warning           string `json:"warning,omitempty"`
	Visible           bool   `json:"visible"`
	Solution          string `json:"solution,omitempty"`
}

// RevealSolution shows the solution if it was already viewed in this
// attempt. Otherwise it returns a confirmation request and changes nothing.
func (s *Session) RevealSolution() (Reveal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(""); err != nil {
		return Reveal{}, err
	}
	q := s.questions[s.index]
	if !s.viewed[q.ID] {
		warning := examSolutionWarning
		if s.mode == ModeQuiz {
			warning = quizSolutionWarning
		}
		return Reveal{QuestionID: q.ID, NeedsConfirmation: true, Warning: warning}, nil
	}
	s.solutions[q.ID] = true
	return Reveal{QuestionID: q.ID, Visible: true, Solution: q.Solution}, nil
}

// ConfirmSolution records that the current question's solution was viewed
// and shows it. The record cannot be undone within the attempt.
func (s *Session) ConfirmSolution() (Reveal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(""); err != nil {
		return Reveal{}, err
	}
	q := s.questions[s.index]
	if !s.viewed[q.ID] {
		s.viewed[q.ID] = true
		s.viewOrder = append(s.viewOrder, q.ID)
		s.logEvent(progress.EventSolutionViewed, map[string]any{"question_id": q.ID})
		s.scheduleSaveLocked()
	}
	s.solutions[q.ID] = true
	return Reveal{QuestionID: q.ID, Visible: true, Solution: q.Solution}, nil
}

// HideSolution hides the solution panel. The question stays viewed.
func (s *Session) HideSolution() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(""); err != nil {
		return err
	}
	s.solutions[s.questions[s.index].ID] = false
	return nil
}

// Navigation reports the pointer after a move. PromptSubmit is set instead
// of moving when the learner tries to go past the last question.
type Navigation struct {
	Index        int  `json:"index"`
	PromptSubmit bool `json:"prompt_submit"`
	Unanswered   int  `json:"unanswered"`
}

// Next commits a pending draft and moves forward (exam mode).
func (s *Session) Next() (Navigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(ModeExam); err != nil {
		return Navigation{}, err
	}
	s.autoCommitLocked()
	return s.forwardLocked(), nil
}

// Previous commits a pending draft and moves back (exam mode).
func (s *Session) Previous() (Navigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(ModeExam); err != nil {
		return Navigation{}, err
	}
	if s.index == 0 {
		return Navigation{Index: 0}, ErrAtStart
	}
	s.autoCommitLocked()
	s.moveLocked(s.index - 1)
	return Navigation{Index: s.index}, nil
}

// Advance moves to the next quiz question. Unanswered questions may be
// skipped; they grade as incorrect.
func (s *Session) Advance() (Navigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(ModeQuiz); err != nil {
		return Navigation{}, err
	}
	return s.forwardLocked(), nil
}

// Submit grades the attempt and records the result. A persistence failure
// returns a *SubmitError and leaves the session in progress. Submitting a
// completed session returns the recorded result.
func (s *Session) Submit(ctx context.Context) (Result, error) {
	s.mu.Lock()
	switch s.status {
	case StatusCompleted:
		res := *s.result
		s.mu.Unlock()
		return res, nil
	case StatusSubmitting:
		s.mu.Unlock()
		return Result{}, ErrSubmitting
	}
	if strings.TrimSpace(s.draft) != "" && s.draftDirty {
		s.commitLocked()
	}
	s.status = StatusSubmitting
	if s.saver != nil {
		s.saver.Stop()
	}
	res := Grade(s.questions, s.answers, s.viewed, s.percent)
	res.AttemptNumber = s.attempt
	s.mu.Unlock()

	err := s.store.RecordAttemptResult(ctx, s.key, res.AttemptNumber, toRecord(res))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = StatusInProgress
		if s.saver != nil {
			s.saver.Resume()
			s.scheduleSaveLocked()
		}
		slog.Error("attempt submission failed",
			"key", s.key.String(),
			"attempt", res.AttemptNumber,
			"error", err,
		)
		return Result{}, &SubmitError{Attempt: res.AttemptNumber, Err: err}
	}

	s.status = StatusCompleted
	s.result = &res
	s.logEvent(progress.EventAttemptSubmitted, map[string]any{
		"score":  res.Score,
		"total":  res.Total,
		"passed": res.Passed,
	})
	slog.Info("attempt submitted",
		"key", s.key.String(),
		"attempt", res.AttemptNumber,
		"score", res.Score,
		"total", res.Total,
		"passed", res.Passed,
	)
	return res, nil
}

// Reset clears answers, viewed solutions and the pointer, and deletes the
// persisted progress. Local state is cleared even if the delete fails; an
// empty snapshot is then scheduled to overwrite the stale record.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(""); err != nil {
		return err
	}
	s.clearLocked()
	if s.saver != nil {
		s.saver.Stop()
		defer s.saver.Resume()
	}

	if err := s.store.ResetProgress(ctx, s.key); err != nil {
		if s.saver != nil {
			s.saver.Resume()
			s.scheduleSaveLocked()
		}
		return fmt.Errorf("reset progress: %w", err)
	}
	s.logEvent(progress.EventProgressReset, nil)
	return nil
}

// Retry starts a new attempt on a completed session with the next attempt
// number.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusCompleted {
		return ErrNotCompleted
	}
	next, err := s.store.NextAttemptNumber(ctx, s.key)
	if err != nil {
		return fmt.Errorf("allocate attempt number: %w", err)
	}
	if next <= s.attempt {
		next = s.attempt + 1
	}
	s.attempt = next
	s.status = StatusInProgress
	s.result = nil
	s.clearLocked()
	if s.saver != nil {
		s.saver.Resume()
	}
	s.logEvent(progress.EventAttemptStarted, map[string]any{"mode": string(s.mode), "retry": true})
	return nil
}

// Flush writes the current progress synchronously (page unload). It is a
// no-op for quizzes and for attempts that are no longer in progress.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.saver == nil || s.status != StatusInProgress {
		s.mu.Unlock()
		return nil
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return s.saver.FlushNow(ctx, snap)
}

// Close stops background autosave. Pending debounced writes are dropped.
func (s *Session) Close() {
	if s.saver != nil {
		s.saver.Stop()
	}
}

// View is a read-only picture of the session for rendering.
type View struct {
	Key            progress.Key      `json:"key"`
	Mode           Mode              `json:"mode"`
	Status         Status            `json:"status"`
	AttemptNumber  int               `json:"attempt_number"`
	Index          int               `json:"index"`
	Total          int               `json:"total"`
	Draft          string            `json:"draft"`
	Answers        map[string]string `json:"answers"`
	Locked         []string          `json:"locked,omitempty"`
	SolutionViewed []string          `json:"solution_viewed"`
	HintVisible    bool              `json:"hint_visible"`
	SolutionShown  bool              `json:"solution_shown"`
	Answered       int               `json:"answered"`
	Unanswered     int               `json:"unanswered"`
	Result         *Result           `json:"result,omitempty"`
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.questions[s.index].ID
	v := View{
		Key:            s.key,
		Mode:           s.mode,
		Status:         s.status,
		AttemptNumber:  s.attempt,
		Index:          s.index,
		Total:          len(s.questions),
		Draft:          s.draft,
		Answers:        maps.Clone(s.answers),
		SolutionViewed: slices.Clone(s.viewOrder),
		HintVisible:    s.hints[id],
		SolutionShown:  s.solutions[id],
		Answered:       s.answeredLocked(),
	}
	v.Unanswered = v.Total - v.Answered
	for _, q := range s.questions {
		if s.locked[q.ID] {
			v.Locked = append(v.Locked, q.ID)
		}
	}
	if s.result != nil {
		res := *s.result
		v.Result = &res
	}
	return v
}

// Current returns the question under the pointer.
func (s *Session) Current() Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions[s.index]
}

// requireLocked checks the session is in progress and, when mode is set,
// that it runs in that mode.
func (s *Session) requireLocked(mode Mode) error {
	switch s.status {
	case StatusSubmitting:
		return ErrSubmitting
	case StatusCompleted:
		return ErrNotInProgress
	}
	if mode != "" && s.mode != mode {
		return ErrWrongMode
	}
	return nil
}

func (s *Session) editableLocked() (Question, error) {
	if err := s.requireLocked(""); err != nil {
		return Question{}, err
	}
	q := s.questions[s.index]
	if s.locked[q.ID] {
		return Question{}, ErrQuestionLocked
	}
	return q, nil
}

func (s *Session) commitLocked() {
	id := s.questions[s.index].ID
	s.answers[id] = s.draft
	s.draftDirty = false
	s.scheduleSaveLocked()
}

func (s *Session) autoCommitLocked() {
	if s.draftDirty && strings.TrimSpace(s.draft) != "" {
		s.commitLocked()
	}
}

func (s *Session) forwardLocked() Navigation {
	if s.index == len(s.questions)-1 {
		return Navigation{
			Index:        s.index,
			PromptSubmit: true,
			Unanswered:   len(s.questions) - s.answeredLocked(),
		}
	}
	s.moveLocked(s.index + 1)
	return Navigation{Index: s.index}
}

func (s *Session) moveLocked(i int) {
	s.index = i
	s.draft = s.answers[s.questions[i].ID]
	s.draftDirty = false
	s.scheduleSaveLocked()
}

func (s *Session) answeredLocked() int {
	n := 0
	for _, q := range s.questions {
		if _, ok := s.answers[q.ID]; ok {
			n++
		}
	}
	return n
}

func (s *Session) clearLocked() {
	s.index = 0
	s.answers = make(map[string]string)
	s.draft = ""
	s.draftDirty = false
	s.locked = make(map[string]bool)
	s.viewed = make(map[string]bool)
	s.viewOrder = nil
	s.hints = make(map[string]bool)
	s.solutions = make(map[string]bool)
}

func (s *Session) restoreLocked(snap progress.Snapshot) {
	known := make(map[string]bool, len(s.questions))
	for _, q := range s.questions {
		known[q.ID] = true
	}
	for id, a := range snap.Answers {
		if known[id] {
			s.answers[id] = a
		}
	}
	for _, id := range snap.SolutionViewed {
		if known[id] && !s.viewed[id] {
			s.viewed[id] = true
			s.viewOrder = append(s.viewOrder, id)
		}
	}
	s.index = min(max(snap.QuestionIndex, 0), len(s.questions)-1)
	s.draft = s.answers[s.questions[s.index].ID]
}

func (s *Session) snapshotLocked() progress.Snapshot {
	return progress.Snapshot{
		Answers:        maps.Clone(s.answers),
		QuestionIndex:  s.index,
		SolutionViewed: slices.Clone(s.viewOrder),
		SavedAt:        time.Now(),
	}
}

func (s *Session) scheduleSaveLocked() {
	if s.saver == nil || s.status != StatusInProgress {
		return
	}
	s.saver.ScheduleSave(s.snapshotLocked())
}

func (s *Session) logEvent(eventType string, data map[string]any) {
	if err := s.events.LogEvent(progress.Event{
		Key:           s.key,
		AttemptNumber: s.attempt,
		EventType:     eventType,
		Data:          data,
	}); err != nil {
		slog.Warn("event logging failed", "type", eventType, "error", err)
	}
}

func toRecord(res Result) progress.AttemptRecord {
	outcomes := make(map[string]string, len(res.Questions))
	for _, q := range res.Questions {
		outcomes[q.QuestionID] = string(q.Outcome)
	}
	return progress.AttemptRecord{
		AttemptNumber:  res.AttemptNumber,
		Total:          res.Total,
		Score:          res.Score,
		Passed:         res.Passed,
		PassingPercent: res.PassingPercent,
		Outcomes:       outcomes,
		SubmittedAt:    time.Now(),
	}
}
