package exercise

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBlockLocked is returned when an earlier block is not complete yet.
	ErrBlockLocked = errors.New("block is locked")
	// ErrTestsFailed is returned when a run did not pass every case.
	ErrTestsFailed = errors.New("not all tests passed")
	// ErrUnknownBlock is returned for block ids outside the project.
	ErrUnknownBlock = errors.New("unknown block")
)

// Gate tracks block completion for one interactive project. Block i is
// unlocked only once blocks 0..i-1 are complete. Safe for concurrent use.
type Gate struct {
	mu        sync.Mutex
	projectID string
	blocks    []string
	index     map[string]int
	done      []bool
}

// NewGate creates a gate for the ordered block ids of a project.
func NewGate(projectID string, blocks []string) (*Gate, error) {
	g := &Gate{
		projectID: projectID,
		blocks:    append([]string(nil), blocks...),
		index:     make(map[string]int, len(blocks)),
		done:      make([]bool, len(blocks)),
	}
	for i, b := range blocks {
		if b == "" {
			return nil, fmt.Errorf("block %d has no id", i)
		}
		if _, dup := g.index[b]; dup {
			return nil, fmt.Errorf("duplicate block id %q", b)
		}
		g.index[b] = i
	}
	return g, nil
}

// ProjectID returns the project the gate belongs to.
func (g *Gate) ProjectID() string { return g.projectID }

// Has reports whether block belongs to the project.
func (g *Gate) Has(block string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.index[block]
	return ok
}

// Unlocked reports whether the block may be worked on.
func (g *Gate) Unlocked(block string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	i, ok := g.index[block]
	return ok && g.unlockedLocked(i)
}

func (g *Gate) unlockedLocked(i int) bool {
	for j := 0; j < i; j++ {
		if !g.done[j] {
			return false
		}
	}
	return true
}

// Complete marks a block done. Completing a done block again is a no-op.
func (g *Gate) Complete(block string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	i, ok := g.index[block]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBlock, block)
	}
	if !g.unlockedLocked(i) {
		return fmt.Errorf("%w: %q", ErrBlockLocked, block)
	}
	g.done[i] = true
	return nil
}

// CompleteWithResults completes a coding block only when every case passed.
func (g *Gate) CompleteWithResults(block string, cases []TestCase, results []CaseResult) error {
	if !AllPassed(cases, results) {
		return ErrTestsFailed
	}
	return g.Complete(block)
}

// Completed returns the ids of completed blocks in order.
func (g *Gate) Completed() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for i, d := range g.done {
		if d {
			out = append(out, g.blocks[i])
		}
	}
	return out
}

// Restore marks previously saved blocks done. Ids that are unknown or would
// leave a gap are ignored.
func (g *Gate) Restore(completed []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	saved := make(map[string]bool, len(completed))
	for _, b := range completed {
		saved[b] = true
	}
	for i, b := range g.blocks {
		if !saved[b] {
			break
		}
		g.done[i] = true
	}
}

// Progress returns completed and total block counts.
func (g *Gate) Progress() (done, total int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range g.done {
		if d {
			done++
		}
	}
	return done, len(g.blocks)
}

// BlockState describes one block for display.
type BlockState struct {
	ID        string `json:"id"`
	Unlocked  bool   `json:"unlocked"`
	Completed bool   `json:"completed"`
}

// State returns every block in order.
func (g *Gate) State() []BlockState {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]BlockState, len(g.blocks))
	for i, b := range g.blocks {
		out[i] = BlockState{ID: b, Unlocked: g.unlockedLocked(i), Completed: g.done[i]}
	}
	return out
}
