package records

import (
	"context"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory Repository used by tests and
// development mode.
type InMemoryRepo struct {
	mu      sync.RWMutex
	records map[string][]*HealthRecord
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{records: make(map[string][]*HealthRecord)}
}

func (r *InMemoryRepo) Create(_ context.Context, rec *HealthRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.PatientRef] = append(r.records[rec.PatientRef], &cp)
	return nil
}

func (r *InMemoryRepo) ListByPatient(_ context.Context, patientRef string, f Filter) ([]*HealthRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*HealthRecord{}
	for _, rec := range r.records[patientRef] {
		if f.RecordType != "" && rec.RecordType != f.RecordType {
			continue
		}
		if f.SourceHospital != "" && rec.SourceHospital != f.SourceHospital {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}
