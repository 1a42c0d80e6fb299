package consent

import (
	"errors"
	"time"
)

// Consent statuses. REQUESTED is the only non-terminal pre-grant state;
// EXPIRED is reached lazily once now passes validUntil.
const (
	StatusRequested = "REQUESTED"
	StatusGranted   = "GRANTED"
	StatusDenied    = "DENIED"
	StatusExpired   = "EXPIRED"
	StatusRevoked   = "REVOKED"
)

var (
	ErrUnknownConsent    = errors.New("unknown consent")
	ErrInvalidRange      = errors.New("dateRange.from must not be after dateRange.to")
	ErrInvalidScope      = errors.New("recordTypes must not be empty")
	ErrInvalidTransition = errors.New("invalid consent state transition")
	ErrConsentNotActive  = errors.New("consent is not active")
)

// Artefact maps to the consent_artefact table. The scope fields (patient,
// hiu, hip, date range, record types) are immutable after creation; only
// status, grantedAt and validUntil change.
type Artefact struct {
	ConsentID   string     `db:"consent_id" json:"consentId"`
	PatientID   string     `db:"patient_id" json:"patientId"`
	HIUID       string     `db:"hiu_id" json:"hiuId"`
	HIPID       string     `db:"hip_id" json:"hipId"`
	DateFrom    time.Time  `db:"date_from" json:"dateFrom"`
	DateTo      time.Time  `db:"date_to" json:"dateTo"`
	RecordTypes []string   `db:"record_types" json:"recordTypes"`
	Status      string     `db:"status" json:"status"`
	GrantedAt   *time.Time `db:"granted_at" json:"grantedAt,omitempty"`
	ValidUntil  *time.Time `db:"valid_until" json:"validUntil,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

func (a *Artefact) coversRecordType(recordType string) bool {
	for _, rt := range a.RecordTypes {
		if rt == recordType {
			return true
		}
	}
	return false
}

func (a *Artefact) coversDate(d time.Time) bool {
	return !d.Before(a.DateFrom) && !d.After(a.DateTo)
}
