package bridge

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/register", h.register)
	g.GET("", h.list)
	g.GET("/:bridgeId", h.get)
	g.PATCH("/:bridgeId/url", h.updateURL)
	g.POST("/:bridgeId/suspend", h.suspend)
	g.POST("/:bridgeId/resume", h.resume)
}

type registerRequest struct {
	BridgeID    string   `json:"bridgeId"`
	Role        string   `json:"role"`
	CallbackURL string   `json:"callbackUrl"`
	Services    []string `json:"services"`
}

type registerResponse struct {
	Bridge       *Bridge `json:"bridge"`
	ClientID     string  `json:"clientId,omitempty"`
	ClientSecret string  `json:"clientSecret,omitempty"`
}

func (h *Handler) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, clientID, secret, err := h.svc.Register(c.Request().Context(),
		req.BridgeID, req.Role, req.CallbackURL, req.Services)
	if err != nil {
		if errors.Is(err, ErrDuplicateBridge) {
			return echo.NewHTTPError(http.StatusConflict, "bridge id already registered")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, registerResponse{Bridge: b, ClientID: clientID, ClientSecret: secret})
}

type updateURLRequest struct {
	CallbackURL string `json:"callbackUrl"`
}

func (h *Handler) updateURL(c echo.Context) error {
	var req updateURLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.UpdateCallback(c.Request().Context(), c.Param("bridgeId"), req.CallbackURL)
	if err != nil {
		if errors.Is(err, ErrUnknownBridge) {
			return echo.NewHTTPError(http.StatusNotFound, "bridge not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) get(c echo.Context) error {
	b, err := h.svc.Resolve(c.Request().Context(), c.Param("bridgeId"))
	if err != nil {
		if errors.Is(err, ErrUnknownBridge) {
			return echo.NewHTTPError(http.StatusNotFound, "bridge not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) list(c echo.Context) error {
	limit, offset := parsePage(c)
	items, total, err := h.svc.List(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

func (h *Handler) suspend(c echo.Context) error {
	return h.setStatus(c, h.svc.Suspend)
}

func (h *Handler) resume(c echo.Context) error {
	return h.setStatus(c, h.svc.Resume)
}

func (h *Handler) setStatus(c echo.Context, fn func(ctx context.Context, bridgeID string) (*Bridge, error)) error {
	b, err := fn(c.Request().Context(), c.Param("bridgeId"))
	if err != nil {
		if errors.Is(err, ErrUnknownBridge) {
			return echo.NewHTTPError(http.StatusNotFound, "bridge not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func parsePage(c echo.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
