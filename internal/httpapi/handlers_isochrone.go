package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"geosvc/internal/isochrone"
	"geosvc/pkg/apperror"
)

// Aggregate deadlines for the fan-out endpoints.
const (
	compareDeadline = 60 * time.Second
	batchDeadline   = 120 * time.Second
)

// cutoffsFrom folds a request's singular TravelTime into TravelTimes, so
// handlers only ever deal with one slice.
func cutoffsFrom(travelTimes []float64, travelTime float64) []float64 {
	if len(travelTimes) > 0 {
		return travelTimes
	}
	if travelTime > 0 {
		return []float64{travelTime}
	}
	return nil
}

// IsochroneCalculate handles POST /api/isochrone/calculate.
func (h *Handler) IsochroneCalculate(c echo.Context) error {
	var req IsochroneRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Wrap(err, apperror.CodeBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	cutoffs := cutoffsFrom(req.TravelTimes, req.TravelTime)
	if len(cutoffs) == 0 {
		return apperror.New(apperror.CodeBadRequest, "travel_times or travel_time is required")
	}

	profile, err := resolveProfile(req.TravelMode)
	if err != nil {
		return err
	}

	result, err := h.deps.Isochrone.Build(c.Request().Context(), req.Center.toGeo(), cutoffs, profile, req.SimplifyTolerance)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, IsochroneResponse{
		Center:   req.Center,
		Profile:  string(result.Profile),
		Polygons: polygonsToDTO(result.Polygons),
	})
}

// IsochroneGeoJSON handles POST /api/isochrone/geojson: the same
// build as /calculate, rendered as a GeoJSON FeatureCollection whose
// top-level "features" key is exactly what usage.extractIsochrone reads.
func (h *Handler) IsochroneGeoJSON(c echo.Context) error {
	var req IsochroneRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Wrap(err, apperror.CodeBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	cutoffs := cutoffsFrom(req.TravelTimes, req.TravelTime)
	if len(cutoffs) == 0 {
		return apperror.New(apperror.CodeBadRequest, "travel_times or travel_time is required")
	}

	profile, err := resolveProfile(req.TravelMode)
	if err != nil {
		return err
	}

	result, err := h.deps.Isochrone.Build(c.Request().Context(), req.Center.toGeo(), cutoffs, profile, req.SimplifyTolerance)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, isochrone.ToGeoJSON(result))
}

// IsochroneStats handles POST /api/isochrone/stats: the cheaper,
// geometry-free payload over the same build.
func (h *Handler) IsochroneStats(c echo.Context) error {
	var req IsochroneRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Wrap(err, apperror.CodeBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	cutoffs := cutoffsFrom(req.TravelTimes, req.TravelTime)
	if len(cutoffs) == 0 {
		return apperror.New(apperror.CodeBadRequest, "travel_times or travel_time is required")
	}

	profile, err := resolveProfile(req.TravelMode)
	if err != nil {
		return err
	}

	result, err := h.deps.Isochrone.Build(c.Request().Context(), req.Center.toGeo(), cutoffs, profile, req.SimplifyTolerance)
	if err != nil {
		return err
	}

	stats := make([]IsochroneStatDTO, len(result.Polygons))
	for i, p := range result.Polygons {
		stats[i] = IsochroneStatDTO{TravelTimeMinutes: p.TravelTimeMinutes, AreaKM2: p.AreaKM2, ReachableNodes: p.ReachableNodes}
	}

	return c.JSON(http.StatusOK, IsochroneStatsResponse{
		Center:  req.Center,
		Profile: string(result.Profile),
		Stats:   stats,
	})
}

// IsochroneCompare handles POST /api/isochrone/compare: builds the
// same cutoff set across up to 3 travel modes concurrently.
func (h *Handler) IsochroneCompare(c echo.Context) error {
	var req IsochroneCompareRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Wrap(err, apperror.CodeBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), compareDeadline)
	defer cancel()
	results := make([]IsochroneModeResult, len(req.TravelModes))

	runBounded(len(req.TravelModes), func(i int) {
		mode := req.TravelModes[i]
		profile, perr := resolveProfile(mode)
		if perr != nil {
			results[i] = IsochroneModeResult{Mode: mode, Error: perr.Error()}
			return
		}

		result, berr := h.deps.Isochrone.Build(ctx, req.Center.toGeo(), []float64{req.TravelTime}, profile, req.SimplifyTolerance)
		if berr != nil {
			results[i] = IsochroneModeResult{Mode: mode, Error: berr.Error()}
			return
		}
		results[i] = IsochroneModeResult{Mode: mode, Polygons: polygonsToDTO(result.Polygons)}
	})

	return c.JSON(http.StatusOK, IsochroneCompareResponse{Center: req.Center, Results: results})
}

// IsochroneBatch handles POST /api/isochrone/batch: builds the same
// cutoff set across up to 10 locations concurrently.
func (h *Handler) IsochroneBatch(c echo.Context) error {
	var req IsochroneBatchRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Wrap(err, apperror.CodeBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	cutoffs := cutoffsFrom(req.TravelTimes, req.TravelTime)
	if len(cutoffs) == 0 {
		return apperror.New(apperror.CodeBadRequest, "travel_times or travel_time is required")
	}

	profile, err := resolveProfile(req.TravelMode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), batchDeadline)
	defer cancel()
	results := make([]IsochroneBatchResult, len(req.Locations))

	runBounded(len(req.Locations), func(i int) {
		center := req.Locations[i]
		result, berr := h.deps.Isochrone.Build(ctx, center.toGeo(), cutoffs, profile, req.SimplifyTolerance)
		if berr != nil {
			results[i] = IsochroneBatchResult{Center: center, Error: berr.Error()}
			return
		}
		results[i] = IsochroneBatchResult{Center: center, Polygons: polygonsToDTO(result.Polygons)}
	})

	return c.JSON(http.StatusOK, IsochroneBatchResponse{Results: results})
}
