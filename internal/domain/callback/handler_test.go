package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func postCallback(t *testing.T, h *Handler, correlationID, body string) (*httptest.ResponseRecorder, callbackResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/callback/"+correlationID, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/callback/:correlationId")
	c.SetParamNames("correlationId")
	c.SetParamValues(correlationID)

	if err := h.HandleCallback(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var resp callbackResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestHandleCallback_Accepted(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	r := NewRouter(logger)
	r.Expect("corr-1", "consent.granted", func(context.Context, []byte) error { return nil })
	h := NewHandler(r, logger)

	rec, resp := postCallback(t, h, "corr-1", `{"kind":"consent.granted","body":{"validUntil":"2024-07-01T00:00:00Z"}}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if resp.Status != "accepted" {
		t.Errorf("status = %q, want accepted", resp.Status)
	}
}

func TestHandleCallback_UnknownAlways200(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	h := NewHandler(NewRouter(logger), logger)

	rec, resp := postCallback(t, h, "ghost", `{"kind":"data.delivered","body":{}}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 even for unknown correlation", rec.Code)
	}
	if resp.Status != "dropped" {
		t.Errorf("status = %q, want dropped", resp.Status)
	}
}

func TestHandleCallback_KindMismatchAlways200(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	r := NewRouter(logger)
	r.Expect("corr-1", "consent.granted", func(context.Context, []byte) error { return nil })
	h := NewHandler(r, logger)

	rec, resp := postCallback(t, h, "corr-1", `{"kind":"data.delivered","body":{}}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if resp.Status != "dropped" {
		t.Errorf("status = %q, want dropped", resp.Status)
	}
}

func TestHandleCallback_MalformedBodyAlways200(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	h := NewHandler(NewRouter(logger), logger)

	rec, resp := postCallback(t, h, "corr-1", `{not json`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if resp.Status != "dropped" {
		t.Errorf("status = %q, want dropped", resp.Status)
	}
}
