package token

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the token endpoint bridges call to exchange their client
// credentials for a bearer token.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/token", h.IssueToken)
}

type tokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

func (h *Handler) IssueToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "clientId and clientSecret are required")
	}
	tok, err := h.svc.Issue(c.Request().Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid client credentials")
	}
	return c.JSON(http.StatusOK, tok)
}
