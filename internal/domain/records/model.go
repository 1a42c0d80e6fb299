package records

import (
	"encoding/json"
	"time"
)

// RecordTypeOpaque marks payloads that arrived without a parseable entry
// structure; the raw bytes are kept verbatim.
const RecordTypeOpaque = "OPAQUE"

// HealthRecord maps to the health_record table: one record received on the
// HIU side of a completed data transfer.
type HealthRecord struct {
	RecordID       string          `db:"record_id" json:"id"`
	PatientRef     string          `db:"patient_ref" json:"patientRef"`
	RecordType     string          `db:"record_type" json:"recordType"`
	RecordDate     *time.Time      `db:"record_date" json:"recordDate,omitempty"`
	SourceHospital string          `db:"source_hospital" json:"sourceHospital"`
	Data           json.RawMessage `db:"data" json:"data"`
	ReceivedAt     time.Time       `db:"received_at" json:"receivedAt"`
}

// Summary aggregates a patient's received records.
type Summary struct {
	TotalRecords int            `json:"totalRecords"`
	ByType       map[string]int `json:"byType"`
	BySource     map[string]int `json:"bySource"`
	LastUpdated  *time.Time     `json:"lastUpdated,omitempty"`
}
