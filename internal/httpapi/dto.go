package httpapi

import (
	"fmt"
	"strconv"
	"strings"

	"geosvc/internal/geo"
	"geosvc/internal/isochrone"
)

// FlexFloat decodes from either a JSON number or a numeric string, since
// clients routinely send lat/lng values quoted.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %s", string(b))
	}
	*f = FlexFloat(v)
	return nil
}

// LatLng is the wire shape for a bare coordinate.
type LatLng struct {
	Lat FlexFloat `json:"lat" validate:"min=-90,max=90"`
	Lng FlexFloat `json:"lng" validate:"min=-180,max=180"`
}

func (c LatLng) toGeo() geo.Coordinate {
	return geo.Coordinate{Lat: float64(c.Lat), Lng: float64(c.Lng)}
}

// Waypoint is one stop of a /directions/route request.
type Waypoint struct {
	Lat FlexFloat `json:"lat" validate:"min=-90,max=90"`
	Lng FlexFloat `json:"lng" validate:"min=-180,max=180"`
}

func (w Waypoint) toGeo() geo.Coordinate {
	return geo.Coordinate{Lat: float64(w.Lat), Lng: float64(w.Lng)}
}

// DirectionsRouteRequest is POST /api/directions/route's body.
type DirectionsRouteRequest struct {
	Waypoints        []Waypoint `json:"waypoints" validate:"required,min=2,dive"`
	TransportMode    string     `json:"transport_mode"`
	OptimizeRoute    *bool      `json:"optimize_route"`
	UseOSMNXFallback bool       `json:"use_osmnx_fallback"`
}

// DirectionsSimpleRequest is POST /api/directions/simple's body.
type DirectionsSimpleRequest struct {
	Origin        LatLng `json:"origin"`
	Destination   LatLng `json:"destination"`
	TransportMode string `json:"transport_mode"`
	Alternatives  bool   `json:"alternatives"`
}

// Task is one pickup/delivery stop, shared by the
// PDP directions and matrix endpoints.
type Task struct {
	Latitude   FlexFloat `json:"latitude" validate:"min=-90,max=90"`
	Longitude  FlexFloat `json:"longitude" validate:"min=-180,max=180"`
	Type       string    `json:"type" validate:"omitempty,oneof=pickup delivery"`
	LocationID string    `json:"location_id" validate:"required"`
	PackageID  string    `json:"package_id,omitempty"`
}

func (t Task) toGeo() geo.Coordinate {
	return geo.Coordinate{Lat: float64(t.Latitude), Lng: float64(t.Longitude)}
}

// RoutePDPRequest is POST /api/directions/route_pdp's body.
type RoutePDPRequest struct {
	CurrentLocation Task   `json:"current_location"`
	Locations       []Task `json:"locations" validate:"required,min=2,dive"`
	TransportMode   string `json:"transport_mode"`
}

// MatrixRequest is POST /api/matrix/calculate's body.
type MatrixRequest struct {
	CurrentLocation Task   `json:"current_location"`
	Locations       []Task `json:"locations" validate:"required,min=1,dive"`
	PDP             bool   `json:"pdp"`
	TransportMode   string `json:"transport_mode"`
}

// IsochroneRequest is POST /api/isochrone/{calculate,geojson}'s body.
// Either TravelTimes or the singular TravelTime may be set; the handler
// folds TravelTime into TravelTimes before building.
type IsochroneRequest struct {
	Center            LatLng    `json:"center"`
	TravelTimes       []float64 `json:"travel_times" validate:"omitempty,max=10,dive,gt=0,lte=120"`
	TravelTime        float64   `json:"travel_time" validate:"omitempty,gt=0,lte=120"`
	TravelMode        string    `json:"travel_mode"`
	SimplifyTolerance float64   `json:"simplify_tolerance" validate:"omitempty,min=0"`
}

// IsochroneCompareRequest is POST /api/isochrone/compare's body (≤3 modes).
type IsochroneCompareRequest struct {
	Center            LatLng   `json:"center"`
	TravelTime        float64  `json:"travel_time" validate:"required,gt=0,lte=120"`
	TravelModes       []string `json:"travel_modes" validate:"required,min=1,max=3"`
	SimplifyTolerance float64  `json:"simplify_tolerance" validate:"omitempty,min=0"`
}

// IsochroneBatchRequest is POST /api/isochrone/batch's body (≤10 locations).
type IsochroneBatchRequest struct {
	Locations         []LatLng  `json:"locations" validate:"required,min=1,max=10,dive"`
	TravelTimes       []float64 `json:"travel_times" validate:"omitempty,max=10,dive,gt=0,lte=120"`
	TravelTime        float64   `json:"travel_time" validate:"omitempty,gt=0,lte=120"`
	TravelMode        string    `json:"travel_mode"`
	SimplifyTolerance float64   `json:"simplify_tolerance" validate:"omitempty,min=0"`
}

// PreloadRequest is POST /api/isochrone/preload's body.
type PreloadRequest struct {
	Center       LatLng  `json:"center"`
	RadiusMeters float64 `json:"radius_meters" validate:"required,gt=0"`
	TravelMode   string  `json:"travel_mode"`
	Country      string  `json:"country,omitempty"`
}

// RouteDetail is the `route` object extracted by usage.extractRouting
// (response["route"]["distance"|"duration"|"polyline"|"geometry"]) — field
// names here are load-bearing, not cosmetic.
type RouteDetail struct {
	DistanceMeters float64      `json:"distance"`
	DurationSecs   float64      `json:"duration"`
	DurationHuman  string       `json:"duration_human"`
	Polyline       string       `json:"polyline"`
	Geometry       [][2]float64 `json:"geometry"`
}

// SegmentDTO is one leg of a solved route.
type SegmentDTO struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	DistanceKM    float64 `json:"distance_km"`
	DurationS     float64 `json:"duration_s"`
	DurationHuman string  `json:"duration_human"`
}

// RouteResponse is the body of every directions-style endpoint.
// OptimalRouteCoordinates is the ordered per-waypoint coordinate list (one
// entry per visited location); Route.Geometry/Polyline is the full
// road-following geometry built by walking the matrix's node paths.
type RouteResponse struct {
	Labels                  []string     `json:"labels"`
	Route                   RouteDetail  `json:"route"`
	OptimalRouteCoordinates [][2]float64 `json:"optimal_route_coordinates"`
	DecodedPolyline         [][2]float64 `json:"decoded_polyline"`
	Segments                []SegmentDTO `json:"segments"`
}

// MatrixCalculateResponse is POST /api/matrix/calculate's response —
// field names here match usage.extractMatrix exactly.
type MatrixCalculateResponse struct {
	OrderedLocationIDs         []string     `json:"ordered_location_ids"`
	OptimalRouteCoordinates    [][2]float64 `json:"optimal_route_coordinates"`
	MinimumDistanceKM          float64      `json:"minimum_distance_km"`
	EstimatedTravelTimeSeconds float64      `json:"estimated_travel_time_seconds"`
	EstimatedTravelTimeHuman   string       `json:"estimated_travel_time_human"`
	Segments                   []SegmentDTO `json:"segments"`
}

// MatrixSetDTO exposes a raw NxN matrix (meters/seconds), used by the
// route_pdp endpoint's always-present "matrix" field.
type MatrixSetDTO struct {
	Distance [][]float64 `json:"distance"`
	Time     [][]float64 `json:"time"`
}

// RoutePDPResponse is POST /api/directions/route_pdp's body: the raw
// matrix is always present; directions degrades to partial_success if the
// solver itself fails.
type RoutePDPResponse struct {
	Matrix          MatrixSetDTO   `json:"matrix"`
	Directions      *RouteResponse `json:"directions,omitempty"`
	PartialSuccess  bool           `json:"partial_success,omitempty"`
	DirectionsError string         `json:"directions_error,omitempty"`
}

// IsochronePolygonDTO renders one isochrone.Polygon for JSON responses.
type IsochronePolygonDTO struct {
	TravelTimeMinutes float64      `json:"travel_time_minutes"`
	AreaKM2           float64      `json:"area_km2"`
	ReachableNodes    int          `json:"reachable_nodes"`
	ExteriorRing      [][2]float64 `json:"exterior_ring"`
}

// IsochroneResponse is POST /api/isochrone/calculate's body.
type IsochroneResponse struct {
	Center   LatLng                `json:"center"`
	Profile  string                `json:"profile"`
	Polygons []IsochronePolygonDTO `json:"polygons"`
}

// IsochroneStatDTO is the cheaper, geometry-free payload for /stats.
type IsochroneStatDTO struct {
	TravelTimeMinutes float64 `json:"travel_time_minutes"`
	AreaKM2           float64 `json:"area_km2"`
	ReachableNodes    int     `json:"reachable_nodes"`
}

// IsochroneStatsResponse is POST /api/isochrone/stats's body.
type IsochroneStatsResponse struct {
	Center  LatLng             `json:"center"`
	Profile string             `json:"profile"`
	Stats   []IsochroneStatDTO `json:"stats"`
}

// IsochroneModeResult is one travel mode's outcome within a compare request.
type IsochroneModeResult struct {
	Mode     string                `json:"mode"`
	Polygons []IsochronePolygonDTO `json:"polygons,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// IsochroneCompareResponse is POST /api/isochrone/compare's body.
type IsochroneCompareResponse struct {
	Center  LatLng                 `json:"center"`
	Results []IsochroneModeResult `json:"results"`
}

// IsochroneBatchResult is one location's outcome within a batch request.
type IsochroneBatchResult struct {
	Center   LatLng                `json:"center"`
	Polygons []IsochronePolygonDTO `json:"polygons,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// IsochroneBatchResponse is POST /api/isochrone/batch's body.
type IsochroneBatchResponse struct {
	Results []IsochroneBatchResult `json:"results"`
}

func polygonsToDTO(polys []isochrone.Polygon) []IsochronePolygonDTO {
	out := make([]IsochronePolygonDTO, len(polys))
	for i, p := range polys {
		out[i] = IsochronePolygonDTO{
			TravelTimeMinutes: p.TravelTimeMinutes,
			AreaKM2:           p.AreaKM2,
			ReachableNodes:    p.ReachableNodes,
			ExteriorRing:      p.ExteriorRing,
		}
	}
	return out
}
