package records

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestService() *Service {
	return NewService(NewInMemoryRepo(), zerolog.Nop())
}

func TestIngestStructuredPayload(t *testing.T) {
	svc := newTestService()
	payload := []byte(`{"entries":[
		{"recordType":"Prescription","content":{"drug":"amoxicillin"}},
		{"recordType":"DiagnosticReport","content":{"test":"cbc"}}
	]}`)

	if err := svc.Ingest(context.Background(), "patient-1", "hip-1", payload); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	recs, err := svc.List(context.Background(), "patient-1", Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].SourceHospital != "hip-1" {
		t.Errorf("source = %q", recs[0].SourceHospital)
	}
}

func TestIngestOpaquePayload(t *testing.T) {
	svc := newTestService()
	payload := []byte(`not json at all`)

	if err := svc.Ingest(context.Background(), "patient-1", "hip-1", payload); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	recs, _ := svc.List(context.Background(), "patient-1", Filter{})
	if len(recs) != 1 || recs[0].RecordType != RecordTypeOpaque {
		t.Fatalf("records = %+v", recs)
	}
	if string(recs[0].Data) != string(payload) {
		t.Fatal("opaque payload not kept verbatim")
	}
}

func TestListFilters(t *testing.T) {
	svc := newTestService()
	svc.Ingest(context.Background(), "patient-1", "hip-1",
		[]byte(`{"entries":[{"recordType":"Prescription","content":{}}]}`))
	svc.Ingest(context.Background(), "patient-1", "hip-2",
		[]byte(`{"entries":[{"recordType":"Prescription","content":{}},{"recordType":"DiagnosticReport","content":{}}]}`))

	recs, _ := svc.List(context.Background(), "patient-1", Filter{RecordType: "Prescription"})
	if len(recs) != 2 {
		t.Fatalf("by type = %d, want 2", len(recs))
	}
	recs, _ = svc.List(context.Background(), "patient-1", Filter{SourceHospital: "hip-2"})
	if len(recs) != 2 {
		t.Fatalf("by source = %d, want 2", len(recs))
	}
	recs, _ = svc.List(context.Background(), "patient-1", Filter{RecordType: "DiagnosticReport", SourceHospital: "hip-1"})
	if len(recs) != 0 {
		t.Fatalf("combined filter = %d, want 0", len(recs))
	}
	recs, _ = svc.List(context.Background(), "patient-other", Filter{})
	if len(recs) != 0 {
		t.Fatalf("unknown patient = %d records", len(recs))
	}
}

func TestSummarize(t *testing.T) {
	svc := newTestService()
	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return clock })

	svc.Ingest(context.Background(), "patient-1", "hip-1",
		[]byte(`{"entries":[{"recordType":"Prescription","content":{}}]}`))
	clock = clock.Add(time.Hour)
	svc.Ingest(context.Background(), "patient-1", "hip-2",
		[]byte(`{"entries":[{"recordType":"Prescription","content":{}},{"recordType":"DiagnosticReport","content":{}}]}`))

	sum, err := svc.Summarize(context.Background(), "patient-1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.TotalRecords != 3 {
		t.Errorf("total = %d", sum.TotalRecords)
	}
	if sum.ByType["Prescription"] != 2 || sum.ByType["DiagnosticReport"] != 1 {
		t.Errorf("byType = %v", sum.ByType)
	}
	if sum.BySource["hip-1"] != 1 || sum.BySource["hip-2"] != 2 {
		t.Errorf("bySource = %v", sum.BySource)
	}
	if sum.LastUpdated == nil || !sum.LastUpdated.Equal(clock) {
		t.Errorf("lastUpdated = %v, want %v", sum.LastUpdated, clock)
	}
}
