package httpapi

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mirkovic-academy/quantframe/internal/exam"
	"github.com/mirkovic-academy/quantframe/internal/progress"
	"github.com/mirkovic-academy/quantframe/internal/questionbank"
)

type entry struct {
	id       string
	instance questionbank.Instance
	session  *exam.Session
}

// registry holds live sessions by id and by progress key, so a learner
// reopening an instance resumes the same session.
type registry struct {
	mu    sync.Mutex
	byID  map[string]*entry
	byKey map[progress.Key]string
}

func newRegistry() *registry {
	return &registry{
		byID:  make(map[string]*entry),
		byKey: make(map[progress.Key]string),
	}
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	return e, ok
}

// active returns the live session for a key unless it has completed.
func (r *registry) active(key progress.Key) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	e := r.byID[id]
	if e.session.View().Status == exam.StatusCompleted {
		return nil, false
	}
	return e, true
}

// add registers a session and returns the entry it replaced, if any.
func (r *registry) add(inst questionbank.Instance, s *exam.Session) (*entry, *entry) {
	e := &entry{id: uuid.NewString(), instance: inst, session: s}
	r.mu.Lock()
	defer r.mu.Unlock()
	var old *entry
	if prev, ok := r.byKey[s.Key()]; ok {
		old = r.byID[prev]
		delete(r.byID, prev)
	}
	r.byID[e.id] = e
	r.byKey[s.Key()] = e.id
	return e, old
}

func (r *registry) remove(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	if r.byKey[e.session.Key()] == id {
		delete(r.byKey, e.session.Key())
	}
	return e, true
}

func (r *registry) drain() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	clear(r.byID)
	clear(r.byKey)
	return out
}
