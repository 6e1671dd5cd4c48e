package store

import (
	"errors"
	"fmt"
	"sync"

	"shelfscan/internal/entity"
)

var (
	ErrNotFound  = errors.New("job not in store")
	ErrDuplicate = errors.New("job already in store")
)

// Patch carries a partial Job update. Nil fields are left untouched. A patch
// applies fully or not at all.
type Patch struct {
	Status    *entity.JobStatus
	Stage     *string
	UpdatedAt *string
	Result    *entity.JobResult
}

// Listener is notified after every store mutation.
type Listener func()

// Store holds the client-side job collection, the single source of UI truth.
// Client-submitted jobs are prepended (newest first); a Replace keeps the
// server's order untouched.
type Store struct {
	mu        sync.RWMutex
	jobs      []entity.Job
	index     map[string]int
	listeners map[int]Listener
	nextSub   int
}

func New() *Store {
	return &Store{
		index:     make(map[string]int),
		listeners: make(map[int]Listener),
	}
}

// Insert adds a freshly submitted job at the front of the list. Inserting an
// id that is already present is a caller bug, not a merge.
func (s *Store) Insert(job entity.Job) error {
	s.mu.Lock()
	if _, ok := s.index[job.JobID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, job.JobID)
	}
	s.jobs = append([]entity.Job{job}, s.jobs...)
	s.reindexLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// Update merges a patch into an existing job. An absent id returns ErrNotFound
// and leaves the store untouched, so a poll response arriving after a delete
// cannot resurrect the job.
func (s *Store) Update(jobID string, p Patch) error {
	s.mu.Lock()
	i, ok := s.index[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	j := &s.jobs[i]
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Stage != nil {
		j.Stage = *p.Stage
	}
	if p.UpdatedAt != nil {
		j.UpdatedAt = *p.UpdatedAt
	}
	if p.Result != nil {
		j.Result = p.Result
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// Remove deletes a job. Removing an absent id is a no-op.
func (s *Store) Remove(jobID string) {
	s.mu.Lock()
	i, ok := s.index[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
	s.reindexLocked()
	s.mu.Unlock()

	s.notify()
}

// Get returns a copy of the job and whether it exists.
func (s *Store) Get(jobID string) (entity.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[jobID]
	if !ok {
		return entity.Job{}, false
	}
	return s.jobs[i], true
}

// List returns a copy of the collection in display order.
func (s *Store) List() []entity.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Len reports the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Replace swaps the whole collection for the server's authoritative list,
// preserving its order. Used by reconciliation.
func (s *Store) Replace(jobs []entity.Job) {
	s.mu.Lock()
	s.jobs = make([]entity.Job, len(jobs))
	copy(s.jobs, jobs)
	s.reindexLocked()
	s.mu.Unlock()

	s.notify()
}

// Subscribe registers a change listener and returns its unsubscribe function.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) reindexLocked() {
	s.index = make(map[string]int, len(s.jobs))
	for i := range s.jobs {
		s.index[s.jobs[i].JobID] = i
	}
}

// notify runs listeners outside the lock so a listener may call back into the
// store.
func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
