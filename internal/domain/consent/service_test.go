package consent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hie/gateway/internal/domain/callback"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewInMemoryRepo(), nil, nil, zerolog.Nop())
}

func mustRequest(t *testing.T, svc *Service, from, to string, types []string) *Artefact {
	t.Helper()
	a, err := svc.Request(context.Background(), "p-1", "hiu-1", "hip-1", day(from), day(to), types)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	return a
}

func TestRequestValidation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Request(context.Background(), "p-1", "hiu-1", "hip-1",
		day("2024-06-30"), day("2024-01-01"), []string{"Prescription"})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("inverted range err = %v, want ErrInvalidRange", err)
	}

	_, err = svc.Request(context.Background(), "p-1", "hiu-1", "hip-1",
		day("2024-01-01"), day("2024-06-30"), nil)
	if !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("empty scope err = %v, want ErrInvalidScope", err)
	}

	// Equal from and to is a valid one-day range.
	if _, err := svc.Request(context.Background(), "p-1", "hiu-1", "hip-1",
		day("2024-03-01"), day("2024-03-01"), []string{"Prescription"}); err != nil {
		t.Fatalf("one-day range: %v", err)
	}
}

func TestGrantDenyTransitions(t *testing.T) {
	svc := newTestService(t)
	svc.SetClock(func() time.Time { return day("2024-03-01") })
	a := mustRequest(t, svc, "2024-01-01", "2024-06-30", []string{"Prescription"})

	if err := svc.OnGrant(context.Background(), a.ConsentID, day("2024-07-01")); err != nil {
		t.Fatalf("OnGrant: %v", err)
	}
	got, _ := svc.Status(context.Background(), a.ConsentID)
	if got.Status != StatusGranted || got.ValidUntil == nil {
		t.Fatalf("after grant: %+v", got)
	}

	// Grant is not repeatable and deny cannot follow it.
	if err := svc.OnGrant(context.Background(), a.ConsentID, day("2024-08-01")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second grant err = %v", err)
	}
	if err := svc.OnDeny(context.Background(), a.ConsentID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("deny after grant err = %v", err)
	}

	b := mustRequest(t, svc, "2024-01-01", "2024-06-30", []string{"Prescription"})
	if err := svc.OnDeny(context.Background(), b.ConsentID); err != nil {
		t.Fatalf("OnDeny: %v", err)
	}
	got, _ = svc.Status(context.Background(), b.ConsentID)
	if got.Status != StatusDenied {
		t.Fatalf("after deny status = %q", got.Status)
	}

	if err := svc.OnGrant(context.Background(), "missing", day("2024-07-01")); !errors.Is(err, ErrUnknownConsent) {
		t.Fatalf("unknown consent err = %v", err)
	}
}

func TestRevoke(t *testing.T) {
	svc := newTestService(t)
	svc.SetClock(func() time.Time { return day("2024-03-01") })
	a := mustRequest(t, svc, "2024-01-01", "2024-06-30", []string{"Prescription"})

	// REQUESTED is not revocable.
	if _, err := svc.Revoke(context.Background(), a.ConsentID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("revoke REQUESTED err = %v", err)
	}

	svc.OnGrant(context.Background(), a.ConsentID, day("2024-07-01"))
	got, err := svc.Revoke(context.Background(), a.ConsentID)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if got.Status != StatusRevoked {
		t.Fatalf("status = %q", got.Status)
	}

	// Irreversible.
	if _, err := svc.Revoke(context.Background(), a.ConsentID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second revoke err = %v", err)
	}
}

func TestLazyExpiry(t *testing.T) {
	svc := newTestService(t)
	clock := day("2024-03-01")
	svc.SetClock(func() time.Time { return clock })

	a := mustRequest(t, svc, "2024-01-01", "2024-06-30", []string{"Prescription"})
	svc.OnGrant(context.Background(), a.ConsentID, day("2024-07-01"))

	ok, err := svc.CheckActive(context.Background(), a.ConsentID, "hip-1", "Prescription", day("2024-03-01"))
	if err != nil || !ok {
		t.Fatalf("CheckActive before expiry = %v, %v", ok, err)
	}

	clock = day("2024-07-02")
	ok, err = svc.CheckActive(context.Background(), a.ConsentID, "hip-1", "Prescription", day("2024-03-01"))
	if err != nil || ok {
		t.Fatalf("CheckActive after expiry = %v, %v", ok, err)
	}
	got, _ := svc.Status(context.Background(), a.ConsentID)
	if got.Status != StatusExpired {
		t.Fatalf("status after lazy expiry = %q, want EXPIRED", got.Status)
	}

	// Expired artefacts cannot be revoked.
	if _, err := svc.Revoke(context.Background(), a.ConsentID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("revoke expired err = %v", err)
	}
}

// CheckActive must return true only when every scope dimension matches,
// across randomized combinations.
func TestCheckActiveScopeProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	types := []string{"Prescription", "DiagnosticReport", "OPConsultation"}

	for i := 0; i < 200; i++ {
		svc := newTestService(t)
		clock := day("2024-03-15")
		svc.SetClock(func() time.Time { return clock })

		granted := types[:1+rng.Intn(len(types))]
		a := mustRequest(t, svc, "2024-01-01", "2024-06-30", granted)
		svc.OnGrant(context.Background(), a.ConsentID, day("2024-07-01"))

		hip := "hip-1"
		if rng.Intn(4) == 0 {
			hip = "hip-other"
		}
		queried := types[rng.Intn(len(types))]
		queryDate := day("2024-01-01").AddDate(0, 0, rng.Intn(365)-90)

		ok, err := svc.CheckActive(context.Background(), a.ConsentID, hip, queried, queryDate)
		if err != nil {
			t.Fatalf("CheckActive: %v", err)
		}

		want := hip == "hip-1" &&
			containsType(granted, queried) &&
			!queryDate.Before(day("2024-01-01")) && !queryDate.After(day("2024-06-30"))
		if ok != want {
			t.Fatalf("case %d: CheckActive(%s, %s, %s) = %v, want %v",
				i, hip, queried, queryDate.Format("2006-01-02"), ok, want)
		}
	}
}

func containsType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func TestAuthorize(t *testing.T) {
	svc := newTestService(t)
	svc.SetClock(func() time.Time { return day("2024-03-01") })
	a := mustRequest(t, svc, "2024-01-01", "2024-06-30", []string{"Prescription"})

	// Not granted yet.
	if _, err := svc.Authorize(context.Background(), a.ConsentID, "hiu-1", day("2024-03-01"), day("2024-03-31")); !errors.Is(err, ErrConsentNotActive) {
		t.Fatalf("authorize REQUESTED err = %v", err)
	}

	svc.OnGrant(context.Background(), a.ConsentID, day("2024-07-01"))

	got, err := svc.Authorize(context.Background(), a.ConsentID, "hiu-1", day("2024-03-01"), day("2024-03-31"))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if got.HIPID != "hip-1" {
		t.Fatalf("resolved hip = %q", got.HIPID)
	}

	// Wrong HIU.
	if _, err := svc.Authorize(context.Background(), a.ConsentID, "hiu-other", day("2024-03-01"), day("2024-03-31")); !errors.Is(err, ErrConsentNotActive) {
		t.Fatalf("wrong hiu err = %v", err)
	}
	// Window leaking past the consented range.
	if _, err := svc.Authorize(context.Background(), a.ConsentID, "hiu-1", day("2024-06-01"), day("2024-07-15")); !errors.Is(err, ErrConsentNotActive) {
		t.Fatalf("window overflow err = %v", err)
	}
}

// A decision callback dispatched through the router lands in the state
// machine, and a duplicate dispatch is suppressed.
func TestDecisionViaRouter(t *testing.T) {
	router := callback.NewRouter(zerolog.Nop())
	svc := NewService(NewInMemoryRepo(), router, nil, zerolog.Nop())
	svc.SetClock(func() time.Time { return day("2024-03-01") })

	a, err := svc.Request(context.Background(), "p-1", "hiu-1", "hip-1",
		day("2024-01-01"), day("2024-06-30"), []string{"Prescription"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	body := []byte(fmt.Sprintf(`{"consentId":%q,"granted":true,"validUntil":"2024-07-01T00:00:00Z"}`, a.ConsentID))
	if err := router.Dispatch(context.Background(), a.ConsentID, KindDecision, body); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	got, _ := svc.Status(context.Background(), a.ConsentID)
	if got.Status != StatusGranted {
		t.Fatalf("status = %q", got.Status)
	}

	err = router.Dispatch(context.Background(), a.ConsentID, KindDecision, body)
	if !errors.Is(err, callback.ErrUnknownCorrelation) {
		t.Fatalf("duplicate dispatch err = %v", err)
	}
}
