package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"geosvc/internal/geo"
	"geosvc/internal/graph"
	"geosvc/internal/matrix"
	"geosvc/internal/solver"
	"geosvc/pkg/apperror"
)

// DirectionsRoute handles POST /api/directions/route: an ordered set
// of waypoints, optionally TSP-reordered, returned as a solved Route plus
// its road-following polyline.
func (h *Handler) DirectionsRoute(c echo.Context) error {
	var req DirectionsRouteRequest
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

	coords := make([]geo.Coordinate, len(req.Waypoints))
	for i, w := range req.Waypoints {
		coords[i] = w.toGeo()
	}

	g, m, err := h.fetchAndBuildMatrix(c, coords, profile)
	if err != nil {
		return err
	}

	locations := labeledLocations("wp", coords)

	optimize := req.OptimizeRoute == nil || *req.OptimizeRoute
	solveKind := "sequential"
	if optimize {
		solveKind = "tsp"
	}

	solveStart := time.Now()
	var route *solver.Route
	if optimize {
		route, err = solver.SolveTSP(m, locations)
	} else {
		route, err = solver.SolveSequential(m, locations)
	}
	h.recordSolve(solveKind, solveStart, err)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, buildRouteResponse(g, m, route))
}

// DirectionsSimple handles POST /api/directions/simple: a fixed
// origin/destination pair, never reordered.
func (h *Handler) DirectionsSimple(c echo.Context) error {
	var req DirectionsSimpleRequest
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

	coords := []geo.Coordinate{req.Origin.toGeo(), req.Destination.toGeo()}

	g, m, err := h.fetchAndBuildMatrix(c, coords, profile)
	if err != nil {
		return err
	}

	locations := labeledLocations("wp", coords)
	solveStart := time.Now()
	route, err := solver.SolveSequential(m, locations)
	h.recordSolve("sequential", solveStart, err)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, buildRouteResponse(g, m, route))
}

// DirectionsRoutePDP handles POST /api/directions/route_pdp: runs the
// matrix then the PDP solver, degrading to partial_success if the solver
// itself cannot produce a consistent directions order.
func (h *Handler) DirectionsRoutePDP(c echo.Context) error {
	var req RoutePDPRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Wrap(err, apperror.CodeBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	pairs, err := buildPDPPairs(req.Locations)
	if err != nil {
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

	g, m, err := h.fetchAndBuildMatrix(c, coords, profile)
	if err != nil {
		return err
	}

	locations := labeledLocationsWithIDs(ids, coords)

	resp := RoutePDPResponse{Matrix: MatrixSetDTO{Distance: m.Distances, Time: m.Times}}

	solveStart := time.Now()
	route, solveErr := solver.SolvePDP(m, locations, pairs)
	h.recordSolve("pdp", solveStart, solveErr)
	if solveErr != nil {
		resp.PartialSuccess = true
		resp.DirectionsError = solveErr.Error()
		return c.JSON(http.StatusOK, resp)
	}

	directions := buildRouteResponse(g, m, route)
	resp.Directions = &directions
	return c.JSON(http.StatusOK, resp)
}

// recordSolve reports one Route Solver invocation to the metrics layer;
// a nil Metrics dep makes it a no-op.
func (h *Handler) recordSolve(kind string, start time.Time, err error) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.RecordRouteSolve(kind, err == nil, time.Since(start))
	}
}

// fetchAndBuildMatrix snaps coords onto a Graph Cache region and builds
// the pairwise matrix over them — the shared first half of every
// directions-style handler.
func (h *Handler) fetchAndBuildMatrix(c echo.Context, coords []geo.Coordinate, profile geo.Profile) (*graph.Graph, *matrix.Set, error) {
	ctx := c.Request().Context()
	center, radius := centerAndRadius(coords)

	g, err := h.deps.Graphs.Get(ctx, center.Lat, center.Lng, radius, profile)
	if err != nil {
		return nil, nil, err
	}

	nodeIDs, err := snapNodes(g, coords)
	if err != nil {
		return nil, nil, err
	}

	m, err := h.deps.Matrix.Build(ctx, g, nodeIDs)
	if err != nil {
		return nil, nil, err
	}
	return g, m, nil
}

func labeledLocations(prefix string, coords []geo.Coordinate) []solver.Location {
	out := make([]solver.Location, len(coords))
	for i, c := range coords {
		out[i] = solver.Location{Label: labelFor(prefix, i), Coord: c}
	}
	return out
}

func labeledLocationsWithIDs(ids []string, coords []geo.Coordinate) []solver.Location {
	out := make([]solver.Location, len(coords))
	for i, c := range coords {
		out[i] = solver.Location{Label: ids[i], Coord: c}
	}
	return out
}

func labelFor(prefix string, i int) string {
	return prefix + strconv.Itoa(i)
}

// buildPDPPairs derives solver.PDPPair indices from tasks' type/package_id
// fields; tasks is indexed without the leading
// current_location slot, so pairs are offset by 1 to match the locations
// slice DirectionsRoutePDP/MatrixCalculate actually build.
func buildPDPPairs(tasks []Task) ([]solver.PDPPair, error) {
	type slot struct{ pickup, delivery int }
	byPackage := map[string]*slot{}
	pickups, deliveries := 0, 0

	for i, t := range tasks {
		switch t.Type {
		case "pickup":
			pickups++
			if t.PackageID == "" {
				continue
			}
			s := byPackage[t.PackageID]
			if s == nil {
				s = &slot{pickup: -1, delivery: -1}
				byPackage[t.PackageID] = s
			}
			if s.pickup != -1 {
				return nil, apperror.NewWithField(apperror.CodeBadRequest, "package_id used by more than one pickup", "package_id")
			}
			s.pickup = i
		case "delivery":
			deliveries++
			if t.PackageID == "" {
				continue
			}
			s := byPackage[t.PackageID]
			if s == nil {
				s = &slot{pickup: -1, delivery: -1}
				byPackage[t.PackageID] = s
			}
			if s.delivery != -1 {
				return nil, apperror.NewWithField(apperror.CodeBadRequest, "package_id used by more than one delivery", "package_id")
			}
			s.delivery = i
		}
	}

	if pickups == 0 || deliveries == 0 {
		return nil, apperror.New(apperror.CodeBadRequest, "PDP requires at least one pickup and one delivery location")
	}

	var pairs []solver.PDPPair
	for _, s := range byPackage {
		if s.pickup == -1 || s.delivery == -1 {
			continue
		}
		pairs = append(pairs, solver.PDPPair{PickupIndex: s.pickup + 1, DeliveryIndex: s.delivery + 1})
	}
	return pairs, nil
}

// buildRouteResponse renders a solved Route, including the full
// road-following polyline built by walking the matrix's per-leg node
// paths (falling back to a straight line for any PDP fallback leg that
// has no matrix path).
func buildRouteResponse(g *graph.Graph, m *matrix.Set, route *solver.Route) RouteResponse {
	geomCoords := fullPathCoordinates(g, m, route)
	polyline := encodePolyline(geomCoords)

	return RouteResponse{
		Labels:                  route.Labels,
		OptimalRouteCoordinates: coordsToPairs(route.Coordinates),
		DecodedPolyline:         coordsToPairs(decodePolyline(polyline)),
		Segments:                toSegmentDTOs(route.Segments),
		Route: RouteDetail{
			DistanceMeters: route.TotalDistanceKM * 1000,
			DurationSecs:   route.TotalTimeS,
			DurationHuman:  route.TotalTimeHuman,
			Polyline:       polyline,
			Geometry:       coordsToPairs(geomCoords),
		},
	}
}

// fullPathCoordinates concatenates each leg's matrix-derived node path
// into one continuous geometry, skipping the junction node shared by
// consecutive legs. A leg with no matrix path (a PDP fallback hop) falls
// back to its two endpoint coordinates.
func fullPathCoordinates(g *graph.Graph, m *matrix.Set, route *solver.Route) []geo.Coordinate {
	var coords []geo.Coordinate
	for k := 1; k < len(route.Order); k++ {
		from, to := route.Order[k-1], route.Order[k]
		path := m.Paths[from][to]

		if path == nil {
			coords = append(coords, route.Coordinates[k-1], route.Coordinates[k])
			continue
		}

		for i, id := range path {
			if k > 1 && i == 0 {
				continue
			}
			if n, ok := g.Node(id); ok {
				coords = append(coords, n.Coord)
			}
		}
	}
	if len(coords) == 0 {
		return route.Coordinates
	}
	return coords
}

func toSegmentDTOs(segs []solver.Segment) []SegmentDTO {
	out := make([]SegmentDTO, len(segs))
	for i, s := range segs {
		out[i] = SegmentDTO{
			From:          s.From,
			To:            s.To,
			DistanceKM:    s.DistanceKM,
			DurationS:     s.DurationS,
			DurationHuman: s.DurationHuman,
		}
	}
	return out
}
