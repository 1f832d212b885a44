package exam

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mirkovic-academy/quantframe/internal/progress"
)

const (
	// DefaultAutosaveDelay is the quiet period before a scheduled save runs.
	DefaultAutosaveDelay = time.Second

	autosaveTimeout    = 5 * time.Second
	maxAutosaveRetries = 5
)

// ProgressSaver is the write side of progress.Store used by autosave.
type ProgressSaver interface {
	SaveProgress(ctx context.Context, key progress.Key, snap progress.Snapshot) error
}

// Autosaver debounces progress writes. ScheduleSave and FlushNow are two
// producers into one upsert sink. Writes are serialised and numbered, so a
// stale snapshot never overwrites a newer one.
type Autosaver struct {
	saver ProgressSaver
	key   progress.Key
	delay time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	pending    *progress.Snapshot
	pendingSeq uint64
	seq        uint64
	stopped    bool
	failures   int
	inflight   sync.WaitGroup

	writeMu sync.Mutex
	written uint64
}

// NewAutosaver creates an autosaver. A non-positive delay uses
// DefaultAutosaveDelay.
func NewAutosaver(saver ProgressSaver, key progress.Key, delay time.Duration) *Autosaver {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	return &Autosaver{saver: saver, key: key, delay: delay}
}

// ScheduleSave replaces any pending snapshot and restarts the quiet period.
func (a *Autosaver) ScheduleSave(snap progress.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	snap = snap.Clone()
	a.seq++
	a.pending = &snap
	a.pendingSeq = a.seq
	a.failures = 0
	a.armLocked()
}

// FlushNow writes snap immediately, dropping any pending debounced save.
// It is the page-unload path and is a no-op once the autosaver is stopped.
func (a *Autosaver) FlushNow(ctx context.Context, snap progress.Snapshot) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.pending = nil
	a.seq++
	seq := a.seq
	a.inflight.Add(1)
	a.mu.Unlock()
	defer a.inflight.Done()

	return a.write(ctx, snap.Clone(), seq)
}

// Stop cancels pending saves and waits for an in-flight write to finish.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
	a.inflight.Wait()
}

// Resume re-enables scheduling after Stop.
func (a *Autosaver) Resume() {
	a.mu.Lock()
	a.stopped = false
	a.failures = 0
	a.mu.Unlock()
}

func (a *Autosaver) armLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

func (a *Autosaver) fire() {
	a.mu.Lock()
	if a.stopped || a.pending == nil {
		a.mu.Unlock()
		return
	}
	snap, seq := *a.pending, a.pendingSeq
	a.pending = nil
	a.inflight.Add(1)
	a.mu.Unlock()
	defer a.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), autosaveTimeout)
	defer cancel()

	err := a.write(ctx, snap, seq)
	if err == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures++
	slog.Warn("autosave failed",
		"key", a.key.String(),
		"failures", a.failures,
		"error", err,
	)
	// A newer snapshot supersedes the failed one and is already armed.
	if a.stopped || a.pending != nil || a.failures >= maxAutosaveRetries {
		return
	}
	a.pending = &snap
	a.pendingSeq = seq
	a.armLocked()
}

// write stores snap unless a newer snapshot has already been written.
func (a *Autosaver) write(ctx context.Context, snap progress.Snapshot, seq uint64) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if seq <= a.written {
		return nil
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}
	if err := a.saver.SaveProgress(ctx, a.key, snap); err != nil {
		return err
	}
	a.written = seq
	return nil
}
