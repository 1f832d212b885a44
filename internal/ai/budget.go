package ai

import (
	"fmt"
	"sync"
	"time"
)

// BudgetChecker checks and records token usage per scope and user.
type BudgetChecker interface {
	// Check reports whether the user still has budget in the scope.
	Check(scope, userID string) (bool, error)
	// Record adds token usage for the user in the scope.
	Record(scope, userID string, tokens int) error
	// Usage returns tokens used in the current window and the limit.
	Usage(scope, userID string) (used int64, limit int64, err error)
}

// InMemoryBudget enforces a daily token limit per (scope, user). Usage
// resets at UTC midnight. A zero limit means unlimited.
type InMemoryBudget struct {
	mu     sync.Mutex
	limit  int64
	limits map[string]int64 // per-key overrides
	usage  map[string]int64
	window string
	now    func() time.Time
}

// NewInMemoryBudget creates a tracker with a default daily limit.
func NewInMemoryBudget(dailyLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		limit:  dailyLimit,
		limits: make(map[string]int64),
		usage:  make(map[string]int64),
		now:    time.Now,
	}
}

// SetLimit overrides the daily limit for one user in a scope.
func (b *InMemoryBudget) SetLimit(scope, userID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[budgetKey(scope, userID)] = tokens
}

func (b *InMemoryBudget) Check(scope, userID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()

	key := budgetKey(scope, userID)
	limit := b.limitLocked(key)
	if limit <= 0 {
		return true, nil
	}
	return b.usage[key] < limit, nil
}

func (b *InMemoryBudget) Record(scope, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	b.usage[budgetKey(scope, userID)] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(scope, userID string) (int64, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()

	key := budgetKey(scope, userID)
	return b.usage[key], b.limitLocked(key), nil
}

func (b *InMemoryBudget) limitLocked(key string) int64 {
	if l, ok := b.limits[key]; ok {
		return l
	}
	return b.limit
}

// rollLocked clears usage when the UTC day changes.
func (b *InMemoryBudget) rollLocked() {
	day := b.now().UTC().Format(time.DateOnly)
	if day != b.window {
		b.window = day
		clear(b.usage)
	}
}

func budgetKey(scope, userID string) string {
	return scope + ":" + userID
}
