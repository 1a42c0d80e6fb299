package link

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hie/gateway/internal/domain/bridge"
	"github.com/hie/gateway/internal/domain/callback"
	"github.com/hie/gateway/internal/platform/keylock"
	"github.com/hie/gateway/internal/platform/outbound"
)

// Callback and outbound message kinds for the linking flow.
const (
	KindDiscover        = "link.discover"
	KindDiscoveryResult = "link.discovery.result"
	KindOTPNotify       = "link.otp.notify"
)

// BridgeDirectory resolves the HIP bridge a discovery call is forwarded to.
// Satisfied by the bridge service.
type BridgeDirectory interface {
	ResolveActive(ctx context.Context, bridgeID string) (*bridge.Bridge, error)
}

// Poster delivers one outbound protocol message. Satisfied by the outbound
// client.
type Poster interface {
	Post(ctx context.Context, url string, msg outbound.Message) error
}

// Awaiter registers and withdraws callback expectations. Satisfied by
// *callback.Router.
type Awaiter interface {
	Expect(correlationID, kind string, fn callback.HandlerFunc) error
	Cancel(correlationID string)
}

type Service struct {
	requests Repository
	links    LinkStore
	bridges  BridgeDirectory
	poster   Poster
	await    Awaiter
	locks    *keylock.KeyedMutex
	logger   zerolog.Logger

	ttl         time.Duration
	maxOTPTries int
	now         func() time.Time
}

func NewService(requests Repository, links LinkStore, bridges BridgeDirectory,
	poster Poster, await Awaiter, ttl time.Duration, maxOTPTries int, logger zerolog.Logger) *Service {
	return &Service{
		requests:    requests,
		links:       links,
		bridges:     bridges,
		poster:      poster,
		await:       await,
		locks:       keylock.New(),
		logger:      logger,
		ttl:         ttl,
		maxOTPTries: maxOTPTries,
		now:         time.Now,
	}
}

// SetClock overrides the service clock for simulated-time tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// InitDiscovery creates an INITIATED request and forwards a discovery call to
// the HIP bridge. The HIP answers asynchronously on the callback endpoint
// with the discovered care contexts and the OTP it issued to the patient.
func (s *Service) InitDiscovery(ctx context.Context, patientRef, hipID string) (*Request, error) {
	if patientRef == "" {
		return nil, fmt.Errorf("patientRef is required")
	}
	hip, err := s.bridges.ResolveActive(ctx, hipID)
	if err != nil {
		return nil, err
	}

	expires := s.now().Add(s.ttl)
	req := &Request{
		RequestID:  uuid.NewString(),
		PatientRef: patientRef,
		HIPID:      hipID,
		State:      StateInitiated,
		ExpiresAt:  &expires,
		CreatedAt:  s.now(),
		UpdatedAt:  s.now(),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	if err := s.await.Expect(req.RequestID, KindDiscoveryResult, s.onDiscoveryResultBody); err != nil {
		return nil, err
	}

	// Outbound I/O happens off the request path and outside any entity lock.
	go func(requestID string, callbackURL string, patientRef string) {
		msg := outbound.Message{
			Kind:          KindDiscover,
			CorrelationID: requestID,
			Body:          map[string]string{"patientRef": patientRef},
		}
		if err := s.poster.Post(context.Background(), callbackURL, msg); err != nil {
			s.logger.Warn().Err(err).
				Str("request_id", requestID).
				Str("hip_id", hipID).
				Msg("discovery forward failed; request will expire")
		}
	}(req.RequestID, hip.CallbackURL, patientRef)

	return req, nil
}

type discoveryResult struct {
	RequestID      string   `json:"requestId"`
	CareContextIDs []string `json:"careContextIds"`
	OTP            string   `json:"otp"`
}

func (s *Service) onDiscoveryResultBody(ctx context.Context, body []byte) error {
	var res discoveryResult
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("malformed discovery result: %w", err)
	}
	if res.RequestID == "" {
		return fmt.Errorf("discovery result missing requestId")
	}
	return s.OnDiscoveryResult(ctx, res.RequestID, res.CareContextIDs, res.OTP)
}

// OnDiscoveryResult records the HIP's candidate care contexts and the OTP,
// moving INITIATED → OTP_SENT and restarting the expiry window for the
// confirmation step.
func (s *Service) OnDiscoveryResult(ctx context.Context, requestID string, careContextIDs []string, otp string) error {
	if otp == "" || len(careContextIDs) == 0 {
		return fmt.Errorf("discovery result requires an otp and at least one care context")
	}

	s.locks.Lock(requestID)
	req, err := s.expireAware(ctx, requestID)
	if err != nil {
		s.locks.Unlock(requestID)
		return err
	}
	if req.State != StateInitiated {
		s.locks.Unlock(requestID)
		return ErrInvalidTransition
	}
	expires := s.now().Add(s.ttl)
	req.State = StateOTPSent
	req.OTP = otp
	req.CareContextIDs = careContextIDs
	req.ExpiresAt = &expires
	req.UpdatedAt = s.now()
	if err := s.requests.Update(ctx, req); err != nil {
		s.locks.Unlock(requestID)
		return err
	}
	hipID := req.HIPID
	s.locks.Unlock(requestID)

	s.logger.Info().
		Str("request_id", requestID).
		Int("care_contexts", len(careContextIDs)).
		Msg("otp sent, awaiting confirmation")

	// Notify the HIP that the OTP round has started. Fire and forget.
	go func() {
		hip, err := s.bridges.ResolveActive(context.Background(), hipID)
		if err != nil {
			return
		}
		msg := outbound.Message{
			Kind:          KindOTPNotify,
			CorrelationID: requestID,
			Body:          map[string]string{"requestId": requestID},
		}
		if err := s.poster.Post(context.Background(), hip.CallbackURL, msg); err != nil {
			s.logger.Warn().Err(err).Str("request_id", requestID).Msg("otp notify failed")
		}
	}()
	return nil
}

// Confirm checks the OTP and, on match, persists the care-context link.
// Wrong OTPs burn an attempt; exhausting the budget fails the request for
// good. Confirming an already CONFIRMED request returns the existing link
// together with ErrAlreadyConfirmed so callers can treat it as an idempotent
// success while duplicate downstream dispatch stays suppressed.
func (s *Service) Confirm(ctx context.Context, requestID, otp string) (*CareContextLink, error) {
	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)

	req, err := s.expireAware(ctx, requestID)
	if err != nil {
		return nil, err
	}

	switch req.State {
	case StateConfirmed:
		l, err := s.links.Get(ctx, req.PatientRef, req.HIPID)
		if err != nil {
			return nil, err
		}
		return l, ErrAlreadyConfirmed
	case StateExpired:
		return nil, ErrRequestExpired
	case StateFailed:
		return nil, ErrInvalidTransition
	case StateInitiated:
		// No OTP issued yet; nothing to confirm against.
		return nil, ErrInvalidTransition
	}

	if otp != req.OTP {
		req.OTPAttempts++
		req.UpdatedAt = s.now()
		if req.OTPAttempts >= s.maxOTPTries {
			req.State = StateFailed
			s.logger.Info().Str("request_id", requestID).Msg("otp attempts exhausted, request failed")
		}
		if uerr := s.requests.Update(ctx, req); uerr != nil {
			return nil, uerr
		}
		return nil, ErrInvalidOtp
	}

	req.State = StateConfirmed
	req.UpdatedAt = s.now()
	if err := s.requests.Update(ctx, req); err != nil {
		return nil, err
	}
	l, err := s.links.Append(ctx, &CareContextLink{
		PatientRef:     req.PatientRef,
		HIPID:          req.HIPID,
		CareContextIDs: req.CareContextIDs,
		LinkedAt:       s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("request_id", requestID).
		Str("patient_ref", req.PatientRef).
		Str("hip_id", req.HIPID).
		Msg("care contexts linked")
	return l, nil
}

// Status returns the request with lazy expiry applied.
func (s *Service) Status(ctx context.Context, requestID string) (*Request, error) {
	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)
	return s.expireAware(ctx, requestID)
}

// Link returns the durable care-context link for a patient at a HIP.
func (s *Service) Link(ctx context.Context, patientRef, hipID string) (*CareContextLink, error) {
	return s.links.Get(ctx, patientRef, hipID)
}

// Sweep expires overdue non-terminal requests. It re-checks each deadline
// under the entity lock so it cannot race a concurrent confirm into a
// backward transition, and it never performs external I/O.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	active, err := s.requests.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, req := range active {
		s.locks.Lock(req.RequestID)
		fresh, err := s.expireAware(ctx, req.RequestID)
		s.locks.Unlock(req.RequestID)
		if err != nil {
			continue
		}
		if fresh.State == StateExpired {
			expired++
		}
	}
	return expired, nil
}

// expireAware loads the request and applies the lazy TTL transition. Caller
// holds the entity lock.
func (s *Service) expireAware(ctx context.Context, requestID string) (*Request, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.terminal() && req.ExpiresAt != nil && s.now().After(*req.ExpiresAt) {
		req.State = StateExpired
		req.UpdatedAt = s.now()
		if err := s.requests.Update(ctx, req); err != nil {
			return nil, err
		}
		// A discovery result that arrives after expiry is a duplicate, not
		// an unknown correlation.
		s.await.Cancel(requestID)
		s.logger.Info().Str("request_id", requestID).Msg("link request expired")
	}
	return req, nil
}
