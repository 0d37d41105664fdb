package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"geosvc/internal/geo"
)

// Modes handles GET /api/directions/modes: the full set of
// transport_mode aliases ParseProfile accepts.
func (h *Handler) Modes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"modes": geo.SupportedModes()})
}

// Health handles GET /health: a bare liveness probe.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
