package callback

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRouter() *Router {
	return NewRouter(zerolog.New(os.Stderr))
}

func TestDispatch_RoutesToExpectation(t *testing.T) {
	r := newTestRouter()
	var got []byte
	r.Expect("corr-1", "discovery.result", func(_ context.Context, body []byte) error {
		got = body
		return nil
	})

	err := r.Dispatch(context.Background(), "corr-1", "discovery.result", []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"x":1}` {
		t.Errorf("body = %s", got)
	}
}

func TestDispatch_UnknownCorrelation(t *testing.T) {
	r := newTestRouter()
	err := r.Dispatch(context.Background(), "ghost", "discovery.result", nil)
	if !errors.Is(err, ErrUnknownCorrelation) {
		t.Fatalf("expected ErrUnknownCorrelation, got %v", err)
	}
}

func TestDispatch_KindMismatch(t *testing.T) {
	r := newTestRouter()
	r.Expect("corr-1", "discovery.result", func(context.Context, []byte) error { return nil })

	err := r.Dispatch(context.Background(), "corr-1", "data.delivered", nil)
	if !errors.Is(err, ErrUnexpectedCallback) {
		t.Fatalf("expected ErrUnexpectedCallback, got %v", err)
	}
	// Expectation must survive a misrouted callback.
	if r.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", r.PendingCount())
	}
}

func TestDispatch_DuplicateAfterCompletion(t *testing.T) {
	r := newTestRouter()
	var calls int32
	r.Expect("corr-1", "data.delivered", func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err := r.Dispatch(context.Background(), "corr-1", "data.delivered", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.Dispatch(context.Background(), "corr-1", "data.delivered", nil)
	if !errors.Is(err, ErrUnknownCorrelation) {
		t.Fatalf("expected ErrUnknownCorrelation on duplicate, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestDispatch_ConcurrentDuplicates_ExactlyOneWins(t *testing.T) {
	r := newTestRouter()
	var calls int32
	r.Expect("corr-1", "data.delivered", func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	var wg sync.WaitGroup
	var accepted int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Dispatch(context.Background(), "corr-1", "data.delivered", nil); err == nil {
				atomic.AddInt32(&accepted, 1)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
	if atomic.LoadInt32(&accepted) != 1 {
		t.Errorf("accepted = %d, want 1", accepted)
	}
}

func TestDispatch_HandlerErrorKeepsExpectation(t *testing.T) {
	r := newTestRouter()
	fail := true
	r.Expect("corr-1", "data.delivered", func(context.Context, []byte) error {
		if fail {
			return errors.New("not ready")
		}
		return nil
	})

	if err := r.Dispatch(context.Background(), "corr-1", "data.delivered", nil); err == nil {
		t.Fatal("expected handler error")
	}
	fail = false
	if err := r.Dispatch(context.Background(), "corr-1", "data.delivered", nil); err != nil {
		t.Fatalf("retry should succeed, got %v", err)
	}
}

func TestExpect_DuplicateID(t *testing.T) {
	r := newTestRouter()
	fn := func(context.Context, []byte) error { return nil }
	if err := r.Expect("corr-1", "a", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Expect("corr-1", "b", fn); !errors.Is(err, ErrDuplicateCorrelation) {
		t.Fatalf("expected ErrDuplicateCorrelation, got %v", err)
	}
}

func TestCancel_LateCallbackIsDuplicate(t *testing.T) {
	r := newTestRouter()
	r.Expect("corr-1", "data.delivered", func(context.Context, []byte) error {
		t.Fatal("cancelled expectation must not run")
		return nil
	})
	r.Cancel("corr-1")

	err := r.Dispatch(context.Background(), "corr-1", "data.delivered", nil)
	if !errors.Is(err, ErrUnknownCorrelation) {
		t.Fatalf("expected ErrUnknownCorrelation, got %v", err)
	}
}

// A handler may cancel its own correlation id (lazy expiry discovered while
// processing the callback). Dispatch must return rather than hang, and the id
// must afterwards resolve as a duplicate.
func TestDispatch_HandlerCancelsOwnID(t *testing.T) {
	r := newTestRouter()
	sentinel := errors.New("entity expired")
	r.Expect("corr-1", "discovery.result", func(context.Context, []byte) error {
		r.Cancel("corr-1")
		return sentinel
	})

	done := make(chan error, 1)
	go func() {
		done <- r.Dispatch(context.Background(), "corr-1", "discovery.result", nil)
	}()
	select {
	case err := <-done:
		if !errors.Is(err, sentinel) {
			t.Fatalf("dispatch err = %v, want handler error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never returned")
	}

	if err := r.Dispatch(context.Background(), "corr-1", "discovery.result", nil); !errors.Is(err, ErrUnknownCorrelation) {
		t.Fatalf("redispatch err = %v, want ErrUnknownCorrelation", err)
	}
}

func TestCompletedSet_PrunedByRetention(t *testing.T) {
	r := newTestRouter()
	fn := func(context.Context, []byte) error { return nil }

	base := time.Now()
	r.SetClock(func() time.Time { return base })
	r.Expect("corr-1", "k", fn)
	r.Dispatch(context.Background(), "corr-1", "k", nil)

	// Two hours later the completed marker is gone, so the id registers anew.
	r.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	r.Expect("corr-2", "k", fn)
	r.Dispatch(context.Background(), "corr-2", "k", nil)

	if err := r.Expect("corr-1", "k", fn); err != nil {
		t.Fatalf("expected pruned id to be reusable, got %v", err)
	}
}
