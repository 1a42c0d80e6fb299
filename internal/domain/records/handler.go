package records

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/:patientRef", h.list)
	g.GET("/:patientRef/summary", h.summary)
}

func (h *Handler) list(c echo.Context) error {
	recs, err := h.svc.List(c.Request().Context(), c.Param("patientRef"), Filter{
		RecordType:     c.QueryParam("recordType"),
		SourceHospital: c.QueryParam("sourceHospital"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"patientRef": c.Param("patientRef"),
		"total":      len(recs),
		"records":    recs,
	})
}

func (h *Handler) summary(c echo.Context) error {
	sum, err := h.svc.Summarize(c.Request().Context(), c.Param("patientRef"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}
