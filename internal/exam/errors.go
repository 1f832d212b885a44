package exam

import (
	"errors"
	"fmt"
)

// Validation errors. They describe why an action did not happen and leave
// the session unchanged.
var (
	ErrNoQuestions      = errors.New("exam has no questions")
	ErrDuplicateID      = errors.New("duplicate question id")
	ErrEmptyAnswer      = errors.New("answer is empty")
	ErrQuestionLocked   = errors.New("question already answered")
	ErrWrongFormat      = errors.New("action does not fit the question format")
	ErrOptionOutOfRange = errors.New("option index out of range")
	ErrWrongMode        = errors.New("action is not available in this mode")
	ErrAtStart          = errors.New("already at the first question")
	ErrNotInProgress    = errors.New("attempt is not in progress")
	ErrSubmitting       = errors.New("attempt is being submitted")
	ErrNotCompleted     = errors.New("attempt is not completed")
	ErrInvalidPercent   = errors.New("passing percent must be between 0 and 100")
)

// SubmitError wraps a persistence failure during submission. The session
// stays in progress, so the caller can retry.
type SubmitError struct {
	Attempt int
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit attempt %d: %v", e.Attempt, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// Retryable is always true: the answers are still held by the session.
func (e *SubmitError) Retryable() bool {
	return true
}
