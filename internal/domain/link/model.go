package link

import (
	"errors"
	"time"
)

// Link request states. Transitions are monotonic; CONFIRMED, FAILED and
// EXPIRED are terminal.
const (
	StateInitiated = "INITIATED"
	StateOTPSent   = "OTP_SENT"
	StateConfirmed = "CONFIRMED"
	StateFailed    = "FAILED"
	StateExpired   = "EXPIRED"
)

var (
	ErrUnknownRequest    = errors.New("unknown link request")
	ErrInvalidOtp        = errors.New("otp does not match")
	ErrRequestExpired    = errors.New("link request expired")
	ErrInvalidTransition = errors.New("invalid link state transition")
	ErrAlreadyConfirmed  = errors.New("link request already confirmed")
)

// Request maps to the link_request table. The request id doubles as the
// correlation key for the discovery round trip with the HIP bridge.
type Request struct {
	RequestID      string     `db:"request_id" json:"requestId"`
	PatientRef     string     `db:"patient_ref" json:"patientRef"`
	HIPID          string     `db:"hip_id" json:"hipId"`
	State          string     `db:"state" json:"state"`
	OTP            string     `db:"otp" json:"-"`
	OTPAttempts    int        `db:"otp_attempts" json:"otpAttempts"`
	CareContextIDs []string   `db:"care_context_ids" json:"careContextIds,omitempty"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

func (r *Request) terminal() bool {
	switch r.State {
	case StateConfirmed, StateFailed, StateExpired:
		return true
	}
	return false
}

// CareContextLink maps to the care_context_link table: the durable record of
// which care contexts a patient linked at a HIP. Contexts are append-only.
type CareContextLink struct {
	PatientRef     string    `db:"patient_ref" json:"patientRef"`
	HIPID          string    `db:"hip_id" json:"hipId"`
	CareContextIDs []string  `db:"care_context_ids" json:"careContextIds"`
	LinkedAt       time.Time `db:"linked_at" json:"linkedAt"`
}
