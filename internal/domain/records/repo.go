package records

import "context"

// Filter narrows a patient record listing. Zero values match everything.
type Filter struct {
	RecordType     string
	SourceHospital string
}

type Repository interface {
	Create(ctx context.Context, r *HealthRecord) error
	ListByPatient(ctx context.Context, patientRef string, f Filter) ([]*HealthRecord, error)
}
