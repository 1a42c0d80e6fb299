package link

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newHandlerFixture(t *testing.T) (*echo.Echo, *fixture) {
	t.Helper()
	f := newFixture(t)
	e := echo.New()
	NewHandler(f.svc).Register(e.Group("/link"))
	return e, f
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestInitEndpoint(t *testing.T) {
	e, _ := newHandlerFixture(t)

	rec := postJSON(e, "/link/init", `{"patientRef":"patient-1","hipId":"hip-1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["requestId"] == "" {
		t.Fatal("missing requestId")
	}

	rec = postJSON(e, "/link/init", `{"patientRef":"patient-1","hipId":"hip-missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown hip status = %d", rec.Code)
	}
}

func TestConfirmEndpoint(t *testing.T) {
	e, f := newHandlerFixture(t)
	req := f.initToOTPSent(t)

	rec := postJSON(e, "/link/confirm", `{"requestId":"`+req.RequestID+`","otp":"000000"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong otp status = %d", rec.Code)
	}

	rec = postJSON(e, "/link/confirm", `{"requestId":"`+req.RequestID+`","otp":"123456"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var l CareContextLink
	if err := json.Unmarshal(rec.Body.Bytes(), &l); err != nil {
		t.Fatalf("decode link: %v", err)
	}
	if len(l.CareContextIDs) != 2 {
		t.Fatalf("link = %+v", l)
	}

	// Re-confirm is an idempotent 200.
	rec = postJSON(e, "/link/confirm", `{"requestId":"`+req.RequestID+`","otp":"123456"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("re-confirm status = %d", rec.Code)
	}
}

func TestConfirmEndpointExpired(t *testing.T) {
	e, f := newHandlerFixture(t)
	req := f.initToOTPSent(t)

	*f.clock = f.clock.Add(11 * time.Minute)
	rec := postJSON(e, "/link/confirm", `{"requestId":"`+req.RequestID+`","otp":"123456"}`)
	if rec.Code != http.StatusGone {
		t.Fatalf("expired status = %d, want 410", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	e, f := newHandlerFixture(t)
	req, _ := f.svc.InitDiscovery(context.Background(), "patient-1", "hip-1")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/link/status/"+req.RequestID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/link/status/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing request status = %d", rec.Code)
	}
}
