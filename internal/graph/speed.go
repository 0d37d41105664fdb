package graph

import (
	"strconv"
	"strings"
)

// HighwaySpeedKPH is the fallback per-highway-class speed table shared by
// the Network Loader and the Matrix Builder's realistic travel-time
// model; both cite the same fixed numbers, so they share one table
// rather than risk the two drifting apart.
var HighwaySpeedKPH = map[string]float64{
	"motorway": 120, "trunk": 100, "primary": 90, "secondary": 80,
	"tertiary": 60, "residential": 40, "service": 30, "living_street": 20,
	"pedestrian": 5, "track": 30, "unclassified": 50,
}

// DefaultHighwaySpeedKPH applies when an edge's highway class is absent or
// unrecognized by HighwaySpeedKPH.
const DefaultHighwaySpeedKPH = 50

// ParseMaxSpeedKPH parses an OSM maxspeed tag value ("50", "30 mph",
// "national") to km/h, returning 0 if it cannot be parsed as numeric
// (possibly with a "mph" suffix converted via ×1.60934).
func ParseMaxSpeedKPH(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if strings.HasSuffix(raw, "mph") {
		numPart := strings.TrimSpace(strings.TrimSuffix(raw, "mph"))
		if v, err := strconv.ParseFloat(numPart, 64); err == nil {
			return v * 1.60934
		}
		return 0
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return 0
}

// DrivingSpeedKPH resolves an edge's speed: a numeric
// MaxSpeedKPH if posted, else the highway-class table, else the default.
// This is the realistic-travel-time model's edge speed rule; it does not
// take profile into account; walking/cycling's uniform speeds are applied
// separately by the Network Loader, not this model.
func DrivingSpeedKPH(e *Edge) float64 {
	if e.MaxSpeedKPH > 0 {
		return e.MaxSpeedKPH
	}
	if speed, ok := HighwaySpeedKPH[e.Highway]; ok {
		return speed
	}
	return DefaultHighwaySpeedKPH
}
