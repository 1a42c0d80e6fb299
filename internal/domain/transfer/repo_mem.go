package transfer

import (
	"context"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory Repository used by tests and
// development mode.
type InMemoryRepo struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{jobs: make(map[string]*Job)}
}

func (r *InMemoryRepo) Create(_ context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[j.TransferID] = &cp
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, transferID string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[transferID]
	if !ok {
		return nil, ErrUnknownJob
	}
	cp := *j
	return &cp, nil
}

func (r *InMemoryRepo) Update(_ context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.TransferID]; !ok {
		return ErrUnknownJob
	}
	cp := *j
	r.jobs[j.TransferID] = &cp
	return nil
}

func (r *InMemoryRepo) ListUnresolved(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var unresolved []*Job
	for _, j := range r.jobs {
		if j.State == StatePending || j.State == StateForwarded {
			cp := *j
			unresolved = append(unresolved, &cp)
		}
	}
	return unresolved, nil
}
