package records

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newHandlerServer(t *testing.T) (*echo.Echo, *Service) {
	t.Helper()
	e := echo.New()
	svc := newTestService()
	NewHandler(svc).Register(e.Group("/records"))
	return e, svc
}

func TestListEndpoint(t *testing.T) {
	e, svc := newHandlerServer(t)
	svc.Ingest(context.Background(), "patient-1", "hip-1",
		[]byte(`{"entries":[{"recordType":"Prescription","content":{}},{"recordType":"DiagnosticReport","content":{}}]}`))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records/patient-1?recordType=Prescription", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Total   int             `json:"total"`
		Records []*HealthRecord `json:"records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Records[0].RecordType != "Prescription" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	e, svc := newHandlerServer(t)
	svc.Ingest(context.Background(), "patient-1", "hip-1",
		[]byte(`{"entries":[{"recordType":"Prescription","content":{}}]}`))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records/patient-1/summary", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sum Summary
	json.Unmarshal(rec.Body.Bytes(), &sum)
	if sum.TotalRecords != 1 || sum.ByType["Prescription"] != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}
