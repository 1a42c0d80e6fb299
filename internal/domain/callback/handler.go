package callback

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler is the webhook entry point for all bridge callbacks. It always
// answers 200: surfacing internal failures as HTTP errors would only trigger
// retry storms on the bridge side. Outcomes are logged and observable via the
// domain status endpoints instead.
type Handler struct {
	router *Router
	logger zerolog.Logger
}

func NewHandler(router *Router, logger zerolog.Logger) *Handler {
	return &Handler{router: router, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/:correlationId", h.HandleCallback)
}

type callbackRequest struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

type callbackResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleCallback(c echo.Context) error {
	correlationID := c.Param("correlationId")

	var req callbackRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn().
			Str("correlation_id", correlationID).
			Err(err).
			Msg("malformed callback dropped")
		return c.JSON(http.StatusOK, callbackResponse{Status: "dropped"})
	}

	err := h.router.Dispatch(c.Request().Context(), correlationID, req.Kind, req.Body)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, callbackResponse{Status: "accepted"})
	case errors.Is(err, ErrUnknownCorrelation):
		h.logger.Info().
			Str("correlation_id", correlationID).
			Str("kind", req.Kind).
			Msg("duplicate or unknown callback dropped")
		return c.JSON(http.StatusOK, callbackResponse{Status: "dropped"})
	case errors.Is(err, ErrUnexpectedCallback):
		h.logger.Warn().
			Str("correlation_id", correlationID).
			Str("kind", req.Kind).
			Msg("callback kind mismatch dropped")
		return c.JSON(http.StatusOK, callbackResponse{Status: "dropped"})
	default:
		h.logger.Error().
			Str("correlation_id", correlationID).
			Str("kind", req.Kind).
			Err(err).
			Msg("callback handler failed")
		return c.JSON(http.StatusOK, callbackResponse{Status: "failed"})
	}
}
