package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hie/gateway/internal/domain/callback"
	"github.com/hie/gateway/internal/platform/keylock"
)

// KindDecision is the callback kind carrying the patient's grant/deny
// decision from the consent approval channel.
const KindDecision = "consent.decision"

// PatientNotifier delivers the consent request to the patient-facing approval
// channel. Delivery is fire-and-forget; the artefact stays REQUESTED until a
// decision callback arrives.
type PatientNotifier interface {
	NotifyConsentRequested(ctx context.Context, a *Artefact) error
}

// Awaiter registers callback expectations. Satisfied by *callback.Router.
type Awaiter interface {
	Expect(correlationID, kind string, fn callback.HandlerFunc) error
}

type Service struct {
	artefacts Repository
	locks     *keylock.KeyedMutex
	await     Awaiter
	notifier  PatientNotifier
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(artefacts Repository, await Awaiter, notifier PatientNotifier, logger zerolog.Logger) *Service {
	return &Service{
		artefacts: artefacts,
		locks:     keylock.New(),
		await:     await,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the service clock for simulated-time tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Request validates the scope, creates a REQUESTED artefact, registers a
// decision expectation and notifies the patient approval channel.
func (s *Service) Request(ctx context.Context, patientID, hiuID, hipID string, dateFrom, dateTo time.Time, recordTypes []string) (*Artefact, error) {
	if patientID == "" || hiuID == "" || hipID == "" {
		return nil, fmt.Errorf("patientId, hiuId and hipId are required")
	}
	if dateFrom.After(dateTo) {
		return nil, ErrInvalidRange
	}
	if len(recordTypes) == 0 {
		return nil, ErrInvalidScope
	}

	a := &Artefact{
		ConsentID:   uuid.NewString(),
		PatientID:   patientID,
		HIUID:       hiuID,
		HIPID:       hipID,
		DateFrom:    dateFrom,
		DateTo:      dateTo,
		RecordTypes: recordTypes,
		Status:      StatusRequested,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	if err := s.artefacts.Create(ctx, a); err != nil {
		return nil, err
	}

	if s.await != nil {
		if err := s.await.Expect(a.ConsentID, KindDecision, s.onDecisionBody); err != nil {
			return nil, err
		}
	}
	if s.notifier != nil {
		go func(artefact Artefact) {
			if err := s.notifier.NotifyConsentRequested(context.Background(), &artefact); err != nil {
				s.logger.Warn().Err(err).
					Str("consent_id", artefact.ConsentID).
					Msg("consent approval notification failed")
			}
		}(*a)
	}
	return a, nil
}

type decisionBody struct {
	Granted    bool       `json:"granted"`
	ValidUntil *time.Time `json:"validUntil"`
}

func (s *Service) onDecisionBody(ctx context.Context, body []byte) error {
	var d decisionBody
	if err := json.Unmarshal(body, &d); err != nil {
		return fmt.Errorf("malformed decision body: %w", err)
	}
	// The router keys decisions by consent id, so the correlation id is the
	// consent id itself; it travels inside the body as well.
	var idHolder struct {
		ConsentID string `json:"consentId"`
	}
	if err := json.Unmarshal(body, &idHolder); err != nil || idHolder.ConsentID == "" {
		return fmt.Errorf("decision body missing consentId")
	}
	if !d.Granted {
		return s.OnDeny(ctx, idHolder.ConsentID)
	}
	if d.ValidUntil == nil {
		return fmt.Errorf("grant decision missing validUntil")
	}
	return s.OnGrant(ctx, idHolder.ConsentID, *d.ValidUntil)
}

// OnGrant moves REQUESTED → GRANTED and stamps validUntil.
func (s *Service) OnGrant(ctx context.Context, consentID string, validUntil time.Time) error {
	s.locks.Lock(consentID)
	defer s.locks.Unlock(consentID)

	a, err := s.artefacts.Get(ctx, consentID)
	if err != nil {
		return err
	}
	if a.Status != StatusRequested {
		return ErrInvalidTransition
	}
	grantedAt := s.now()
	a.Status = StatusGranted
	a.GrantedAt = &grantedAt
	a.ValidUntil = &validUntil
	a.UpdatedAt = grantedAt
	if err := s.artefacts.Update(ctx, a); err != nil {
		return err
	}
	s.logger.Info().Str("consent_id", consentID).Time("valid_until", validUntil).Msg("consent granted")
	return nil
}

// OnDeny moves REQUESTED → DENIED.
func (s *Service) OnDeny(ctx context.Context, consentID string) error {
	s.locks.Lock(consentID)
	defer s.locks.Unlock(consentID)

	a, err := s.artefacts.Get(ctx, consentID)
	if err != nil {
		return err
	}
	if a.Status != StatusRequested {
		return ErrInvalidTransition
	}
	a.Status = StatusDenied
	a.UpdatedAt = s.now()
	if err := s.artefacts.Update(ctx, a); err != nil {
		return err
	}
	s.logger.Info().Str("consent_id", consentID).Msg("consent denied")
	return nil
}

// Revoke is allowed only from GRANTED and is irreversible. An artefact that
// already lapsed past validUntil expires first, so revoking it conflicts.
func (s *Service) Revoke(ctx context.Context, consentID string) (*Artefact, error) {
	s.locks.Lock(consentID)
	defer s.locks.Unlock(consentID)

	a, err := s.getExpiredAware(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusGranted {
		return nil, ErrInvalidTransition
	}
	a.Status = StatusRevoked
	a.UpdatedAt = s.now()
	if err := s.artefacts.Update(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info().Str("consent_id", consentID).Msg("consent revoked")
	return a, nil
}

// CheckActive reports whether the artefact authorizes a fetch of recordType
// from hipId on queryDate. GRANTED artefacts past validUntil flip to EXPIRED
// here, at read time, which keeps the invariant exact at observation time
// without a mandatory sweeper.
func (s *Service) CheckActive(ctx context.Context, consentID, hipID, recordType string, queryDate time.Time) (bool, error) {
	s.locks.Lock(consentID)
	defer s.locks.Unlock(consentID)

	a, err := s.getExpiredAware(ctx, consentID)
	if err != nil {
		return false, err
	}
	if a.Status != StatusGranted {
		return false, nil
	}
	if a.HIPID != hipID {
		return false, nil
	}
	if !a.coversRecordType(recordType) {
		return false, nil
	}
	return a.coversDate(queryDate), nil
}

// Authorize resolves the artefact for a data request: the caller must be the
// consented HIU and the whole query window must sit inside the consented date
// range. Returns ErrConsentNotActive on any scope or status mismatch.
func (s *Service) Authorize(ctx context.Context, consentID, hiuID string, windowFrom, windowTo time.Time) (*Artefact, error) {
	s.locks.Lock(consentID)
	defer s.locks.Unlock(consentID)

	a, err := s.getExpiredAware(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusGranted {
		return nil, ErrConsentNotActive
	}
	if a.HIUID != hiuID {
		return nil, ErrConsentNotActive
	}
	if windowFrom.After(windowTo) {
		return nil, ErrInvalidRange
	}
	if !a.coversDate(windowFrom) || !a.coversDate(windowTo) {
		return nil, ErrConsentNotActive
	}
	return a, nil
}

// Status returns the artefact with lazy expiry applied.
func (s *Service) Status(ctx context.Context, consentID string) (*Artefact, error) {
	s.locks.Lock(consentID)
	defer s.locks.Unlock(consentID)
	return s.getExpiredAware(ctx, consentID)
}

// getExpiredAware loads the artefact and applies the lazy GRANTED → EXPIRED
// transition when now has passed validUntil. Caller holds the entity lock.
func (s *Service) getExpiredAware(ctx context.Context, consentID string) (*Artefact, error) {
	a, err := s.artefacts.Get(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusGranted && a.ValidUntil != nil && s.now().After(*a.ValidUntil) {
		a.Status = StatusExpired
		a.UpdatedAt = s.now()
		if err := s.artefacts.Update(ctx, a); err != nil {
			return nil, err
		}
		s.logger.Info().Str("consent_id", consentID).Msg("consent expired")
	}
	return a, nil
}
