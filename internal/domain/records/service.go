package records

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	records Repository
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(records Repository, logger zerolog.Logger) *Service {
	return &Service{records: records, logger: logger, now: time.Now}
}

// SetClock overrides the service clock for simulated-time tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

type payloadEntry struct {
	RecordType string          `json:"recordType"`
	Date       *time.Time      `json:"date"`
	Content    json.RawMessage `json:"content"`
}

type deliveredPayload struct {
	Entries []payloadEntry `json:"entries"`
}

// Ingest fans a delivered transfer payload into per-patient health records.
// Payloads that do not carry the entries structure are kept whole as a single
// opaque record rather than dropped.
func (s *Service) Ingest(ctx context.Context, patientRef, sourceHIPID string, payload []byte) error {
	var parsed deliveredPayload
	if err := json.Unmarshal(payload, &parsed); err != nil || len(parsed.Entries) == 0 {
		rec := &HealthRecord{
			RecordID:       uuid.NewString(),
			PatientRef:     patientRef,
			RecordType:     RecordTypeOpaque,
			SourceHospital: sourceHIPID,
			Data:           append(json.RawMessage(nil), payload...),
			ReceivedAt:     s.now(),
		}
		if err := s.records.Create(ctx, rec); err != nil {
			return err
		}
		s.logger.Info().
			Str("patient_ref", patientRef).
			Str("source", sourceHIPID).
			Msg("opaque payload stored as single record")
		return nil
	}

	for _, e := range parsed.Entries {
		recordType := e.RecordType
		if recordType == "" {
			recordType = RecordTypeOpaque
		}
		rec := &HealthRecord{
			RecordID:       uuid.NewString(),
			PatientRef:     patientRef,
			RecordType:     recordType,
			RecordDate:     e.Date,
			SourceHospital: sourceHIPID,
			Data:           append(json.RawMessage(nil), e.Content...),
			ReceivedAt:     s.now(),
		}
		if err := s.records.Create(ctx, rec); err != nil {
			return err
		}
	}
	s.logger.Info().
		Str("patient_ref", patientRef).
		Str("source", sourceHIPID).
		Int("entries", len(parsed.Entries)).
		Msg("delivered records ingested")
	return nil
}

// List returns a patient's received records, optionally filtered by record
// type and source hospital.
func (s *Service) List(ctx context.Context, patientRef string, f Filter) ([]*HealthRecord, error) {
	return s.records.ListByPatient(ctx, patientRef, f)
}

// Summarize aggregates counts by type and source plus the latest receipt time.
func (s *Service) Summarize(ctx context.Context, patientRef string) (*Summary, error) {
	recs, err := s.records.ListByPatient(ctx, patientRef, Filter{})
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		TotalRecords: len(recs),
		ByType:       make(map[string]int),
		BySource:     make(map[string]int),
	}
	for _, r := range recs {
		sum.ByType[r.RecordType]++
		sum.BySource[r.SourceHospital]++
		if sum.LastUpdated == nil || r.ReceivedAt.After(*sum.LastUpdated) {
			t := r.ReceivedAt
			sum.LastUpdated = &t
		}
	}
	return sum, nil
}
