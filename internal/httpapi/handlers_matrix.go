package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"geosvc/internal/geo"
	"geosvc/internal/solver"
	"geosvc/pkg/apperror"
)

// MatrixCalculate handles POST /api/matrix/calculate: builds the
// pairwise matrix over current_location+locations and returns the Route
// Solver's output directly (TSP or PDP, toggled by the pdp flag) — unlike
// route_pdp, there is no separate "directions" step here.
func (h *Handler) MatrixCalculate(c echo.Context) error {
	var req MatrixRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Wrap(err, apperror.CodeBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	profile, err := resolveProfile(req.TransportMode)
	if err != nil {
		return err
	}

	coords := make([]geo.Coordinate, 0, len(req.Locations)+1)
	coords = append(coords, req.CurrentLocation.toGeo())
	ids := make([]string, 0, len(req.Locations)+1)
	ids = append(ids, "current")
	for _, t := range req.Locations {
		coords = append(coords, t.toGeo())
		ids = append(ids, t.LocationID)
	}

	_, m, err := h.fetchAndBuildMatrix(c, coords, profile)
	if err != nil {
		return err
	}

	locations := labeledLocationsWithIDs(ids, coords)

	solveKind := "tsp"
	if req.PDP {
		solveKind = "pdp"
	}

	solveStart := time.Now()
	var route *solver.Route
	if req.PDP {
		pairs, perr := buildPDPPairs(req.Locations)
		if perr != nil {
			return perr
		}
		route, err = solver.SolvePDP(m, locations, pairs)
	} else {
		route, err = solver.SolveTSP(m, locations)
	}
	h.recordSolve(solveKind, solveStart, err)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, MatrixCalculateResponse{
		OrderedLocationIDs:         route.Labels,
		OptimalRouteCoordinates:    coordsToPairs(route.Coordinates),
		MinimumDistanceKM:          route.TotalDistanceKM,
		EstimatedTravelTimeSeconds: route.TotalTimeS,
		EstimatedTravelTimeHuman:   route.TotalTimeHuman,
		Segments:                   toSegmentDTOs(route.Segments),
	})
}
