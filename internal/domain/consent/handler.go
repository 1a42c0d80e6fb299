package consent

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/init", h.init)
	g.GET("/status/:consentId", h.status)
	g.POST("/:consentId/revoke", h.revoke)
}

type initRequest struct {
	PatientID string `json:"patientId"`
	HIUID     string `json:"hiuId"`
	HIPID     string `json:"hipId"`
	DateRange struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	} `json:"dateRange"`
	RecordTypes []string `json:"recordTypes"`
}

func (h *Handler) init(c echo.Context) error {
	var req initRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Request(c.Request().Context(),
		req.PatientID, req.HIUID, req.HIPID,
		req.DateRange.From, req.DateRange.To, req.RecordTypes)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"consentId": a.ConsentID})
}

func (h *Handler) status(c echo.Context) error {
	a, err := h.svc.Status(c.Request().Context(), c.Param("consentId"))
	if err != nil {
		if errors.Is(err, ErrUnknownConsent) {
			return echo.NewHTTPError(http.StatusNotFound, "consent not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"consentId":  a.ConsentID,
		"status":     a.Status,
		"validUntil": a.ValidUntil,
	})
}

func (h *Handler) revoke(c echo.Context) error {
	a, err := h.svc.Revoke(c.Request().Context(), c.Param("consentId"))
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownConsent):
			return echo.NewHTTPError(http.StatusNotFound, "consent not found")
		case errors.Is(err, ErrInvalidTransition):
			return echo.NewHTTPError(http.StatusConflict, "consent is not in a revocable state")
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"consentId": a.ConsentID,
		"status":    a.Status,
	})
}
