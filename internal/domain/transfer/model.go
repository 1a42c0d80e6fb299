package transfer

import (
	"errors"
	"time"
)

// Transfer job states. DELIVERED and FAILED are terminal, with one exception:
// a DELIVERED job whose push to the HIU exhausts its retries moves to FAILED
// while keeping the delivered payload (delivery to the gateway is the
// durability point).
const (
	StatePending   = "PENDING"
	StateForwarded = "FORWARDED"
	StateDelivered = "DELIVERED"
	StateFailed    = "FAILED"
)

// Failure reasons recorded on FAILED jobs. FORWARD_TIMEOUT marks a job whose
// forward outcome was never recorded (lost goroutine, restart) and that the
// deadline sweep reaped while still PENDING.
const (
	ReasonForwardFailed  = "FORWARD_FAILED"
	ReasonForwardTimeout = "FORWARD_TIMEOUT"
	ReasonTimeout        = "TIMEOUT"
	ReasonPushFailed     = "PUSH_FAILED"
)

var (
	ErrUnknownJob       = errors.New("unknown transfer job")
	ErrAlreadyDelivered = errors.New("transfer job already resolved")
)

// Job maps to the data_transfer_job table. The transfer id doubles as the
// correlation key for the HIP delivery callback.
type Job struct {
	TransferID    string     `db:"transfer_id" json:"transferId"`
	ConsentID     string     `db:"consent_id" json:"consentId"`
	PatientRef    string     `db:"patient_ref" json:"patientRef"`
	HIPID         string     `db:"hip_id" json:"hipId"`
	HIUID         string     `db:"hiu_id" json:"hiuId"`
	WindowFrom    time.Time  `db:"window_from" json:"windowFrom"`
	WindowTo      time.Time  `db:"window_to" json:"windowTo"`
	State         string     `db:"state" json:"state"`
	FailureReason string     `db:"failure_reason" json:"failureReason,omitempty"`
	Payload       []byte     `db:"payload" json:"-"`
	DeadlineAt    *time.Time `db:"deadline_at" json:"deadlineAt,omitempty"`
	DeliveredAt   *time.Time `db:"delivered_at" json:"deliveredAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}
