package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"geosvc/pkg/apperror"
)

// CacheStatus handles GET /api/isochrone/cache/status: a snapshot of
// the Graph Cache's resident regions and queue depth.
func (h *Handler) CacheStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.deps.Graphs.Status())
}

// CacheClear handles POST /api/isochrone/cache/clear: drops every
// in-memory resident graph, keeping whatever is already persisted to the
// Graph Store.
func (h *Handler) CacheClear(c echo.Context) error {
	h.deps.Graphs.ClearMemory()
	return c.JSON(http.StatusOK, map[string]bool{"cleared": true})
}

// Preload handles POST /api/isochrone/preload: synchronously fetches
// (or reuses) a region so a subsequent request hits a warm cache. When a
// country name is supplied the graph is additionally stored under the
// country-wide key.
func (h *Handler) Preload(c echo.Context) error {
	var req PreloadRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Wrap(err, apperror.CodeBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	profile, err := resolveProfile(req.TravelMode)
	if err != nil {
		return err
	}

	if req.Country != "" {
		err = h.deps.Graphs.PreloadCountry(c.Request().Context(), req.Country, float64(req.Center.Lat), float64(req.Center.Lng), req.RadiusMeters, profile)
	} else {
		err = h.deps.Graphs.Preload(c.Request().Context(), float64(req.Center.Lat), float64(req.Center.Lng), req.RadiusMeters, profile)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
