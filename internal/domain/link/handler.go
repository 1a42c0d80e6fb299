package link

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hie/gateway/internal/domain/bridge"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/init", h.init)
	g.POST("/confirm", h.confirm)
	g.GET("/status/:requestId", h.status)
}

type initRequest struct {
	PatientRef string `json:"patientRef"`
	HIPID      string `json:"hipId"`
}

func (h *Handler) init(c echo.Context) error {
	var req initRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.InitDiscovery(c.Request().Context(), req.PatientRef, req.HIPID)
	if err != nil {
		switch {
		case errors.Is(err, bridge.ErrUnknownBridge):
			return echo.NewHTTPError(http.StatusNotFound, "unknown hip bridge")
		case errors.Is(err, bridge.ErrBridgeSuspended):
			return echo.NewHTTPError(http.StatusConflict, "hip bridge is suspended")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"requestId": r.RequestID})
}

type confirmRequest struct {
	RequestID string `json:"requestId"`
	OTP       string `json:"otp"`
}

func (h *Handler) confirm(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	l, err := h.svc.Confirm(c.Request().Context(), req.RequestID, req.OTP)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, l)
	case errors.Is(err, ErrAlreadyConfirmed):
		// Idempotent re-confirmation returns the existing link.
		return c.JSON(http.StatusOK, l)
	case errors.Is(err, ErrInvalidOtp):
		return echo.NewHTTPError(http.StatusBadRequest, "otp does not match")
	case errors.Is(err, ErrRequestExpired):
		return echo.NewHTTPError(http.StatusGone, "link request expired")
	case errors.Is(err, ErrUnknownRequest):
		return echo.NewHTTPError(http.StatusNotFound, "link request not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, "link request is not confirmable")
	}
	return err
}

func (h *Handler) status(c echo.Context) error {
	r, err := h.svc.Status(c.Request().Context(), c.Param("requestId"))
	if err != nil {
		if errors.Is(err, ErrUnknownRequest) {
			return echo.NewHTTPError(http.StatusNotFound, "link request not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, r)
}
