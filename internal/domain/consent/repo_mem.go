package consent

import (
	"context"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory Repository used by tests and
// development mode.
type InMemoryRepo struct {
	mu        sync.RWMutex
	artefacts map[string]*Artefact
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{artefacts: make(map[string]*Artefact)}
}

func (r *InMemoryRepo) Create(_ context.Context, a *Artefact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.artefacts[a.ConsentID] = &cp
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, consentID string) (*Artefact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artefacts[consentID]
	if !ok {
		return nil, ErrUnknownConsent
	}
	cp := *a
	return &cp, nil
}

func (r *InMemoryRepo) Update(_ context.Context, a *Artefact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artefacts[a.ConsentID]; !ok {
		return ErrUnknownConsent
	}
	cp := *a
	r.artefacts[a.ConsentID] = &cp
	return nil
}
