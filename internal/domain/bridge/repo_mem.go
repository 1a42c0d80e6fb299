package bridge

import (
	"context"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory Repository used by tests and
// development mode.
type InMemoryRepo struct {
	mu      sync.RWMutex
	bridges map[string]*Bridge
	order   []string
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{bridges: make(map[string]*Bridge)}
}

func (r *InMemoryRepo) Create(_ context.Context, b *Bridge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bridges[b.BridgeID]; exists {
		return ErrDuplicateBridge
	}
	cp := *b
	r.bridges[b.BridgeID] = &cp
	r.order = append(r.order, b.BridgeID)
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, bridgeID string) (*Bridge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bridges[bridgeID]
	if !ok {
		return nil, ErrUnknownBridge
	}
	cp := *b
	return &cp, nil
}

func (r *InMemoryRepo) Update(_ context.Context, b *Bridge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bridges[b.BridgeID]; !ok {
		return ErrUnknownBridge
	}
	cp := *b
	r.bridges[b.BridgeID] = &cp
	return nil
}

func (r *InMemoryRepo) List(_ context.Context, limit, offset int) ([]*Bridge, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := len(r.order)
	if offset >= total {
		return []*Bridge{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	items := make([]*Bridge, 0, end-offset)
	for _, id := range r.order[offset:end] {
		cp := *r.bridges[id]
		items = append(items, &cp)
	}
	return items, total, nil
}
