package link

import (
	"context"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory Repository used by tests and
// development mode.
type InMemoryRepo struct {
	mu       sync.RWMutex
	requests map[string]*Request
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{requests: make(map[string]*Request)}
}

func (r *InMemoryRepo) Create(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.requests[req.RequestID] = &cp
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, requestID string) (*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[requestID]
	if !ok {
		return nil, ErrUnknownRequest
	}
	cp := *req
	return &cp, nil
}

func (r *InMemoryRepo) Update(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.RequestID]; !ok {
		return ErrUnknownRequest
	}
	cp := *req
	r.requests[req.RequestID] = &cp
	return nil
}

func (r *InMemoryRepo) ListActive(_ context.Context) ([]*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []*Request
	for _, req := range r.requests {
		if !req.terminal() {
			cp := *req
			active = append(active, &cp)
		}
	}
	return active, nil
}

// InMemoryLinkStore is a thread-safe in-memory LinkStore.
type InMemoryLinkStore struct {
	mu    sync.RWMutex
	links map[string]*CareContextLink
}

func NewInMemoryLinkStore() *InMemoryLinkStore {
	return &InMemoryLinkStore{links: make(map[string]*CareContextLink)}
}

func linkKey(patientRef, hipID string) string { return patientRef + "|" + hipID }

func (s *InMemoryLinkStore) Append(_ context.Context, l *CareContextLink) (*CareContextLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey(l.PatientRef, l.HIPID)
	existing, ok := s.links[key]
	if !ok {
		cp := *l
		cp.CareContextIDs = append([]string(nil), l.CareContextIDs...)
		s.links[key] = &cp
		out := cp
		return &out, nil
	}
	existing.CareContextIDs = mergeContexts(existing.CareContextIDs, l.CareContextIDs)
	out := *existing
	return &out, nil
}

func (s *InMemoryLinkStore) Get(_ context.Context, patientRef, hipID string) (*CareContextLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[linkKey(patientRef, hipID)]
	if !ok {
		return nil, ErrUnknownRequest
	}
	cp := *l
	return &cp, nil
}

func mergeContexts(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range incoming {
		if !seen[id] {
			existing = append(existing, id)
			seen[id] = true
		}
	}
	return existing
}
