// Package progress persists in-flight exam and quiz progress (autosave) and
// completed attempt results.
package progress

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"
)

// ErrInvalidKey is returned when a key is missing its user or instance.
var ErrInvalidKey = errors.New("progress key requires user_id and instance_id")

// Key identifies one learner working on one exam or lesson quiz.
type Key struct {
	UserID     string `json:"user_id"`
	InstanceID string `json:"instance_id"`
}

func (k Key) String() string {
	return k.UserID + ":" + k.InstanceID
}

// Validate checks that both halves of the key are present.
func (k Key) Validate() error {
	if k.UserID == "" || k.InstanceID == "" {
		return ErrInvalidKey
	}
	return nil
}

// Snapshot is the autosaved state of an in-progress attempt.
type Snapshot struct {
	Answers        map[string]string `json:"answers"`
	QuestionIndex  int               `json:"question_index"`
	SolutionViewed []string          `json:"solution_viewed,omitempty"`
	SavedAt        time.Time         `json:"saved_at"`
}

// Clone returns a deep copy so callers never share maps with a store.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Answers = maps.Clone(s.Answers)
	if out.Answers == nil {
		out.Answers = map[string]string{}
	}
	out.SolutionViewed = slices.Clone(s.SolutionViewed)
	return out
}

// AttemptRecord is the immutable outcome of a submitted attempt.
type AttemptRecord struct {
	AttemptNumber  int               `json:"attempt_number"`
	Total          int               `json:"total"`
	Score          int               `json:"score"`
	Passed         bool              `json:"passed"`
	PassingPercent int               `json:"passing_percent"`
	Outcomes       map[string]string `json:"outcomes"` // question id -> outcome
	SubmittedAt    time.Time         `json:"submitted_at"`
}

// Store is the persistence adapter consumed by exam sessions. Saves are
// upserts keyed by Key: the first save needs no prior record and the last
// write wins.
type Store interface {
	SaveProgress(ctx context.Context, key Key, snap Snapshot) error
	LoadProgress(ctx context.Context, key Key) (Snapshot, bool, error)
	ResetProgress(ctx context.Context, key Key) error
	// RecordAttemptResult stores a result once per attempt number and
	// removes the autosave record it supersedes. Recording the same
	// attempt number again is a no-op.
	RecordAttemptResult(ctx context.Context, key Key, attempt int, rec AttemptRecord) error
	NextAttemptNumber(ctx context.Context, key Key) (int, error)
	Attempts(ctx context.Context, key Key) ([]AttemptRecord, error)
}

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu       sync.RWMutex
	progress map[Key]Snapshot
	attempts map[Key]map[int]AttemptRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress: make(map[Key]Snapshot),
		attempts: make(map[Key]map[int]AttemptRecord),
	}
}

func (s *MemoryStore) SaveProgress(_ context.Context, key Key, snap Snapshot) error {
	if err := key.Validate(); err != nil {
		return err
	}
	snap = snap.Clone()
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[key] = snap
	return nil
}

func (s *MemoryStore) LoadProgress(_ context.Context, key Key) (Snapshot, bool, error) {
	if err := key.Validate(); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.progress[key]
	if !ok {
		return Snapshot{}, false, nil
	}
	return snap.Clone(), true, nil
}

func (s *MemoryStore) ResetProgress(_ context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progress, key)
	return nil
}

func (s *MemoryStore) RecordAttemptResult(_ context.Context, key Key, attempt int, rec AttemptRecord) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if attempt < 1 {
		return fmt.Errorf("attempt number must be positive, got %d", attempt)
	}
	rec.AttemptNumber = attempt
	rec.Outcomes = maps.Clone(rec.Outcomes)
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byNumber, ok := s.attempts[key]
	if !ok {
		byNumber = make(map[int]AttemptRecord)
		s.attempts[key] = byNumber
	}
	if _, exists := byNumber[attempt]; !exists {
		byNumber[attempt] = rec
	}
	delete(s.progress, key)
	return nil
}

func (s *MemoryStore) NextAttemptNumber(_ context.Context, key Key) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	next := 1
	for n := range s.attempts[key] {
		if n >= next {
			next = n + 1
		}
	}
	return next, nil
}

func (s *MemoryStore) Attempts(_ context.Context, key Key) ([]AttemptRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AttemptRecord, 0, len(s.attempts[key]))
	for _, rec := range s.attempts[key] {
		rec.Outcomes = maps.Clone(rec.Outcomes)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}
