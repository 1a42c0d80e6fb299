// Package callback receives asynchronous webhook callbacks from bridges and
// routes each one to whichever state machine registered the correlation id.
// The registry is the single source of truth for "who is waiting for what".
package callback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrUnknownCorrelation   = errors.New("unknown correlation id")
	ErrUnexpectedCallback   = errors.New("callback kind does not match expectation")
	ErrDuplicateCorrelation = errors.New("correlation id already registered")
)

// HandlerFunc resolves a callback body into the owning state machine.
type HandlerFunc func(ctx context.Context, body []byte) error

type expectation struct {
	kind     string
	fn       HandlerFunc
	inflight bool
}

// Router deduplicates callbacks by correlation id and dispatches them to the
// expectation registered when the outbound call was issued. A correlation id
// is dispatched to completion at most once; late duplicates resolve to
// ErrUnknownCorrelation and are dropped by the HTTP layer.
//
// The router never holds a lock while a handler runs: handlers take the
// per-entity locks of their own domain and may call Cancel on the very id
// being dispatched (lazy expiry inside the handler). At-most-once delivery
// comes from claiming the pending entry in-flight under r.mu instead.
type Router struct {
	mu        sync.Mutex
	pending   map[string]expectation
	completed map[string]time.Time

	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		pending:   make(map[string]expectation),
		completed: make(map[string]time.Time),
		retention: time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the router clock. Tests use this to age the completed set.
func (r *Router) SetClock(now func() time.Time) { r.now = now }

// Expect registers a pending expectation for correlationID. The state machine
// issuing an outbound call registers before performing the I/O so the
// response can never race an unregistered id.
func (r *Router) Expect(correlationID, kind string, fn HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pending[correlationID]; exists {
		return ErrDuplicateCorrelation
	}
	if _, done := r.completed[correlationID]; done {
		return ErrDuplicateCorrelation
	}
	r.pending[correlationID] = expectation{kind: kind, fn: fn}
	return nil
}

// Cancel withdraws a pending expectation, used when the owning entity goes
// terminal (timeout, expiry) before its callback arrives. The cancelled id is
// remembered so a late callback is treated as a duplicate, not an unknown.
// Safe to call from inside a handler being dispatched for the same id.
func (r *Router) Cancel(correlationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pending[correlationID]; exists {
		delete(r.pending, correlationID)
		r.completed[correlationID] = r.now()
	}
}

// Dispatch routes one callback. The winning caller claims the expectation
// in-flight, runs the handler with no router lock held, then finalizes.
// Concurrent dispatches for a claimed id resolve as duplicates.
func (r *Router) Dispatch(ctx context.Context, correlationID, kind string, body []byte) error {
	r.mu.Lock()
	exp, pendingOK := r.pending[correlationID]
	_, done := r.completed[correlationID]
	if done || !pendingOK || exp.inflight {
		r.mu.Unlock()
		return ErrUnknownCorrelation
	}
	if exp.kind != kind {
		r.mu.Unlock()
		return ErrUnexpectedCallback
	}
	exp.inflight = true
	r.pending[correlationID] = exp
	r.mu.Unlock()

	err := exp.fn(ctx, body)

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, stillPending := r.pending[correlationID]
	if !stillPending {
		// The handler (or a racing sweep) cancelled the id mid-flight; it is
		// already marked completed.
		return err
	}
	if err != nil {
		// The expectation stays registered so a corrected retry from the
		// bridge can still land.
		cur.inflight = false
		r.pending[correlationID] = cur
		return err
	}
	delete(r.pending, correlationID)
	r.completed[correlationID] = r.now()
	r.pruneLocked()
	return nil
}

// pruneLocked drops completed entries older than the retention window.
// Caller holds r.mu.
func (r *Router) pruneLocked() {
	cutoff := r.now().Add(-r.retention)
	for id, at := range r.completed {
		if at.Before(cutoff) {
			delete(r.completed, id)
		}
	}
}

// PendingCount reports the number of registered expectations.
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
