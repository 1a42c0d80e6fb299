package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hie/gateway/internal/domain/bridge"
	"github.com/hie/gateway/internal/domain/callback"
	"github.com/hie/gateway/internal/domain/consent"
	"github.com/hie/gateway/internal/platform/keylock"
	"github.com/hie/gateway/internal/platform/outbound"
)

// Callback and outbound message kinds for the data transfer flow.
const (
	KindFetch    = "data.fetch"
	KindDelivery = "data.delivery"
	KindPush     = "data.push"
)

// Authorizer gates job creation on an active consent covering the caller and
// the query window. Satisfied by the consent service.
type Authorizer interface {
	Authorize(ctx context.Context, consentID, hiuID string, windowFrom, windowTo time.Time) (*consent.Artefact, error)
}

// BridgeDirectory resolves the bridges traffic is forwarded to. Satisfied by
// the bridge service.
type BridgeDirectory interface {
	ResolveActive(ctx context.Context, bridgeID string) (*bridge.Bridge, error)
}

// Poster delivers outbound messages with the bounded retry budget. Satisfied
// by the outbound client.
type Poster interface {
	PostWithRetry(ctx context.Context, url string, msg outbound.Message) error
}

// Awaiter registers and withdraws callback expectations. Satisfied by
// *callback.Router.
type Awaiter interface {
	Expect(correlationID, kind string, fn callback.HandlerFunc) error
	Cancel(correlationID string)
}

// RecordSink receives delivered payloads on the HIU side. Satisfied by the
// records service; a nil sink disables ingestion.
type RecordSink interface {
	Ingest(ctx context.Context, patientRef, sourceHIPID string, payload []byte) error
}

type Service struct {
	jobs     Repository
	consents Authorizer
	bridges  BridgeDirectory
	poster   Poster
	await    Awaiter
	sink     RecordSink
	locks    *keylock.KeyedMutex
	logger   zerolog.Logger

	deliveryTimeout time.Duration
	now             func() time.Time
}

func NewService(jobs Repository, consents Authorizer, bridges BridgeDirectory,
	poster Poster, await Awaiter, sink RecordSink, deliveryTimeout time.Duration,
	logger zerolog.Logger) *Service {
	return &Service{
		jobs:            jobs,
		consents:        consents,
		bridges:         bridges,
		poster:          poster,
		await:           await,
		sink:            sink,
		locks:           keylock.New(),
		logger:          logger,
		deliveryTimeout: deliveryTimeout,
		now:             time.Now,
	}
}

// SetClock overrides the service clock for simulated-time tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// RequestData authorizes the query window against the consent artefact,
// creates the job and forwards the fetch request to the owning HIP. The
// consent check happens exactly once, at job creation; a later revocation
// does not cancel jobs already in flight.
func (s *Service) RequestData(ctx context.Context, hiuID, consentID string, windowFrom, windowTo time.Time) (*Job, error) {
	a, err := s.consents.Authorize(ctx, consentID, hiuID, windowFrom, windowTo)
	if err != nil {
		return nil, err
	}
	hip, err := s.bridges.ResolveActive(ctx, a.HIPID)
	if err != nil {
		return nil, err
	}

	// The deadline is stamped at creation so a job orphaned before its forward
	// outcome is recorded still gets reaped by the sweep.
	deadline := s.now().Add(s.deliveryTimeout)
	j := &Job{
		TransferID: uuid.NewString(),
		ConsentID:  consentID,
		PatientRef: a.PatientID,
		HIPID:      a.HIPID,
		HIUID:      hiuID,
		WindowFrom: windowFrom,
		WindowTo:   windowTo,
		State:      StatePending,
		DeadlineAt: &deadline,
		CreatedAt:  s.now(),
		UpdatedAt:  s.now(),
	}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, err
	}
	if err := s.await.Expect(j.TransferID, KindDelivery, s.onDeliveredBody); err != nil {
		return nil, err
	}

	go s.forward(j.TransferID, hip.CallbackURL, consentID, windowFrom, windowTo)
	return j, nil
}

// forward pushes the fetch request to the HIP with the bounded retry budget.
// Runs outside any entity lock; only the outcome is recorded under the lock.
func (s *Service) forward(transferID, hipURL, consentID string, windowFrom, windowTo time.Time) {
	ctx := context.Background()
	msg := outbound.Message{
		Kind:          KindFetch,
		CorrelationID: transferID,
		Body: map[string]any{
			"consentId": consentID,
			"queryWindow": map[string]string{
				"from": windowFrom.Format(time.RFC3339),
				"to":   windowTo.Format(time.RFC3339),
			},
		},
	}
	err := s.poster.PostWithRetry(ctx, hipURL, msg)

	s.locks.Lock(transferID)
	defer s.locks.Unlock(transferID)

	j, gerr := s.jobs.Get(ctx, transferID)
	if gerr != nil {
		return
	}
	if j.State != StatePending {
		// A delivery callback beat the forward bookkeeping; leave it be.
		return
	}
	if err != nil {
		j.State = StateFailed
		j.FailureReason = ReasonForwardFailed
		j.UpdatedAt = s.now()
		if uerr := s.jobs.Update(ctx, j); uerr != nil {
			s.logger.Error().Err(uerr).Str("transfer_id", transferID).Msg("recording forward failure failed")
		}
		s.await.Cancel(transferID)
		s.logger.Error().Err(err).Str("transfer_id", transferID).Msg("fetch forward exhausted retries")
		return
	}
	deadline := s.now().Add(s.deliveryTimeout)
	j.State = StateForwarded
	j.DeadlineAt = &deadline
	j.UpdatedAt = s.now()
	if uerr := s.jobs.Update(ctx, j); uerr != nil {
		s.logger.Error().Err(uerr).Str("transfer_id", transferID).Msg("recording forward outcome failed")
		return
	}
	s.logger.Info().Str("transfer_id", transferID).Time("deadline", deadline).Msg("fetch forwarded to hip")
}

type deliveryBody struct {
	TransferID string          `json:"transferId"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *Service) onDeliveredBody(ctx context.Context, body []byte) error {
	var d deliveryBody
	if err := json.Unmarshal(body, &d); err != nil {
		return fmt.Errorf("malformed delivery body: %w", err)
	}
	if d.TransferID == "" {
		return fmt.Errorf("delivery body missing transferId")
	}
	return s.OnDataDelivered(ctx, d.TransferID, d.Payload)
}

// OnDataDelivered stores the payload and marks the job DELIVERED, then pushes
// the payload on to the requesting HIU. Duplicate callbacks for a resolved
// job fail with ErrAlreadyDelivered and leave the stored payload untouched.
func (s *Service) OnDataDelivered(ctx context.Context, transferID string, payload []byte) error {
	s.locks.Lock(transferID)
	j, err := s.jobs.Get(ctx, transferID)
	if err != nil {
		s.locks.Unlock(transferID)
		return err
	}
	if j.State == StateDelivered || j.State == StateFailed {
		s.locks.Unlock(transferID)
		return ErrAlreadyDelivered
	}
	deliveredAt := s.now()
	j.State = StateDelivered
	j.Payload = payload
	j.DeliveredAt = &deliveredAt
	j.DeadlineAt = nil
	j.UpdatedAt = deliveredAt
	if err := s.jobs.Update(ctx, j); err != nil {
		s.locks.Unlock(transferID)
		return err
	}
	hiuID, patientRef, hipID := j.HIUID, j.PatientRef, j.HIPID
	s.locks.Unlock(transferID)

	s.logger.Info().Str("transfer_id", transferID).Int("payload_bytes", len(payload)).Msg("data delivered")

	go s.push(transferID, hiuID, patientRef, hipID, payload)
	return nil
}

// push forwards a delivered payload to the HIU callback URL and fans it into
// the record sink. Push exhaustion fails the job without touching the stored
// payload.
func (s *Service) push(transferID, hiuID, patientRef, hipID string, payload []byte) {
	ctx := context.Background()

	if s.sink != nil {
		if err := s.sink.Ingest(ctx, patientRef, hipID, payload); err != nil {
			s.logger.Warn().Err(err).Str("transfer_id", transferID).Msg("record ingestion failed")
		}
	}

	hiu, err := s.bridges.ResolveActive(ctx, hiuID)
	if err == nil {
		msg := outbound.Message{
			Kind:          KindPush,
			CorrelationID: transferID,
			Body: map[string]any{
				"transferId": transferID,
				"payload":    json.RawMessage(payload),
			},
		}
		err = s.poster.PostWithRetry(ctx, hiu.CallbackURL, msg)
	}
	if err == nil {
		return
	}

	s.locks.Lock(transferID)
	defer s.locks.Unlock(transferID)
	j, gerr := s.jobs.Get(ctx, transferID)
	if gerr != nil || j.State != StateDelivered {
		return
	}
	j.State = StateFailed
	j.FailureReason = ReasonPushFailed
	j.UpdatedAt = s.now()
	if uerr := s.jobs.Update(ctx, j); uerr != nil {
		s.logger.Error().Err(uerr).Str("transfer_id", transferID).Msg("recording push failure failed")
	}
	s.logger.Error().Err(err).Str("transfer_id", transferID).Msg("push to hiu exhausted retries")
}

// Status returns the job with the lazy delivery-timeout check applied.
func (s *Service) Status(ctx context.Context, transferID string) (*Job, error) {
	s.locks.Lock(transferID)
	defer s.locks.Unlock(transferID)
	return s.timeoutAware(ctx, transferID)
}

// Sweep fails PENDING and FORWARDED jobs whose deadline has passed. Deadlines
// are re-checked under the entity lock so the sweep cannot race a delivery
// callback into overwriting a terminal outcome.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	unresolved, err := s.jobs.ListUnresolved(ctx)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, j := range unresolved {
		s.locks.Lock(j.TransferID)
		fresh, err := s.timeoutAware(ctx, j.TransferID)
		s.locks.Unlock(j.TransferID)
		if err != nil {
			continue
		}
		if fresh.State == StateFailed &&
			(fresh.FailureReason == ReasonTimeout || fresh.FailureReason == ReasonForwardTimeout) {
			failed++
		}
	}
	return failed, nil
}

// timeoutAware loads the job and applies the deadline transition: FORWARDED
// becomes FAILED(TIMEOUT), and a PENDING job whose forward outcome was never
// recorded becomes FAILED(FORWARD_TIMEOUT). Caller holds the entity lock.
func (s *Service) timeoutAware(ctx context.Context, transferID string) (*Job, error) {
	j, err := s.jobs.Get(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if (j.State == StatePending || j.State == StateForwarded) &&
		j.DeadlineAt != nil && s.now().After(*j.DeadlineAt) {
		reason := ReasonTimeout
		if j.State == StatePending {
			reason = ReasonForwardTimeout
		}
		j.State = StateFailed
		j.FailureReason = reason
		j.UpdatedAt = s.now()
		if err := s.jobs.Update(ctx, j); err != nil {
			return nil, err
		}
		// A delivery that lands after the timeout is a duplicate.
		s.await.Cancel(transferID)
		s.logger.Info().Str("transfer_id", transferID).Str("reason", reason).Msg("deadline lapsed, job failed")
	}
	return j, nil
}
