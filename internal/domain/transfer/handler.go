package transfer

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hie/gateway/internal/domain/bridge"
	"github.com/hie/gateway/internal/domain/consent"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/request", h.request)
	g.GET("/status/:transferId", h.status)
}

type dataRequest struct {
	HIUID       string `json:"hiuId"`
	ConsentID   string `json:"consentId"`
	QueryWindow struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	} `json:"queryWindow"`
}

func (h *Handler) request(c echo.Context) error {
	var req dataRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	j, err := h.svc.RequestData(c.Request().Context(),
		req.HIUID, req.ConsentID, req.QueryWindow.From, req.QueryWindow.To)
	if err != nil {
		switch {
		case errors.Is(err, consent.ErrConsentNotActive):
			return echo.NewHTTPError(http.StatusForbidden, "consent is not active")
		case errors.Is(err, consent.ErrUnknownConsent):
			return echo.NewHTTPError(http.StatusNotFound, "consent not found")
		case errors.Is(err, consent.ErrInvalidRange):
			return echo.NewHTTPError(http.StatusBadRequest, "invalid query window")
		case errors.Is(err, bridge.ErrUnknownBridge):
			return echo.NewHTTPError(http.StatusNotFound, "unknown hip bridge")
		case errors.Is(err, bridge.ErrBridgeSuspended):
			return echo.NewHTTPError(http.StatusConflict, "hip bridge is suspended")
		}
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"transferId": j.TransferID})
}

func (h *Handler) status(c echo.Context) error {
	j, err := h.svc.Status(c.Request().Context(), c.Param("transferId"))
	if err != nil {
		if errors.Is(err, ErrUnknownJob) {
			return echo.NewHTTPError(http.StatusNotFound, "transfer job not found")
		}
		return err
	}
	resp := map[string]any{
		"transferId": j.TransferID,
		"consentId":  j.ConsentID,
		"state":      j.State,
	}
	if j.FailureReason != "" {
		resp["failureReason"] = j.FailureReason
	}
	if j.DeliveredAt != nil {
		resp["deliveredAt"] = j.DeliveredAt
	}
	return c.JSON(http.StatusOK, resp)
}
