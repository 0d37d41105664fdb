package httpapi

import (
	"geosvc/internal/geo"
	"geosvc/internal/graph"
	"geosvc/pkg/apperror"
)

// bboxBufferMeters is added to the largest centroid-to-point distance of a
// set of query coordinates before asking the Graph Cache for a region.
const bboxBufferMeters = 10_000

// minFetchRadiusMeters floors the radius passed to the Graph Cache so a
// tight cluster of waypoints (or a single point) still requests a usable
// neighborhood instead of a near-zero circle.
const minFetchRadiusMeters = 2_000

// centerAndRadius computes the centroid of coords and a radius (meters)
// guaranteed to cover every point plus a fixed buffer, for use as a
// center+radius Graph Cache query.
func centerAndRadius(coords []geo.Coordinate) (geo.Coordinate, float64) {
	var sumLat, sumLng float64
	for _, c := range coords {
		sumLat += c.Lat
		sumLng += c.Lng
	}
	n := float64(len(coords))
	center := geo.Coordinate{Lat: sumLat / n, Lng: sumLng / n}

	var maxDist float64
	for _, c := range coords {
		if d := geo.Haversine(center.Lat, center.Lng, c.Lat, c.Lng); d > maxDist {
			maxDist = d
		}
	}

	radius := maxDist + bboxBufferMeters
	if radius < minFetchRadiusMeters {
		radius = minFetchRadiusMeters
	}
	return center, radius
}

// snapNodes resolves each coordinate to its nearest graph node, failing
// with RouteUnavailable if the graph has nothing to snap to.
func snapNodes(g *graph.Graph, coords []geo.Coordinate) ([]graph.NodeID, error) {
	ids := make([]graph.NodeID, len(coords))
	for i, c := range coords {
		id, _, found := g.NearestNode(c)
		if !found {
			return nil, apperror.New(apperror.CodeRouteUnavailable, "no graph nodes available near a requested location")
		}
		ids[i] = id
	}
	return ids, nil
}

// resolveProfile normalizes a request's transport_mode, defaulting to
// driving when empty, and raises BadRequest with the supported alias set
// on an unrecognized value.
func resolveProfile(raw string) (geo.Profile, error) {
	if raw == "" {
		return geo.ProfileDriving, nil
	}
	p, ok := geo.ParseProfile(raw)
	if !ok {
		return "", apperror.NewWithField(apperror.CodeBadRequest, "unknown transport_mode", "transport_mode").
			WithDetails("supported_modes", geo.SupportedModes())
	}
	return p, nil
}

func coordsToPairs(coords []geo.Coordinate) [][2]float64 {
	out := make([][2]float64, len(coords))
	for i, c := range coords {
		out[i] = [2]float64{c.Lat, c.Lng}
	}
	return out
}
