package usage

import (
	"encoding/json"
	"strings"
)

// Extract dispatches analytics extraction on kind, combining whatever the
// request and response JSON bodies offer. Either body may be
// nil; extraction never panics or returns an error — a partially filled
// AnalyticsRecord is always better than none, per the "extraction
// failures must not fail the request" contract.
func Extract(kind APIKind, request, response map[string]any) *AnalyticsRecord {
	rec := &AnalyticsRecord{}
	if request != nil {
		rec.RawRequestBlob = truncate(marshalQuiet(request), rawBlobLimit)
	}

	switch kind {
	case KindGeocoding:
		extractGeocoding(rec, request, response)
	case KindMatrix:
		extractMatrix(rec, request, response)
	case KindRouting:
		extractRouting(rec, request, response)
	case KindIsochrone:
		extractIsochrone(rec, request, response)
	}
	return rec
}

// extractGeocoding handles geocoding payloads: request address OR
// (lat,lng); response formatted_address/place_id/location_type/resolved
// (lat,lng); first result for batch responses.
func extractGeocoding(rec *AnalyticsRecord, request, response map[string]any) {
	if request != nil {
		if addr, ok := stringField(request, "address"); ok {
			rec.Address = truncate(addr, 500)
		}
		if lat, lng, ok := coordFields(request, "latitude", "longitude"); ok {
			rec.StartLat, rec.StartLng, rec.HasStart = lat, lng, true
		}
	}

	if response == nil {
		return
	}

	// Batch geocoding responses nest the real payload in the first result.
	if results, ok := response["results"].([]any); ok && len(results) > 0 {
		if first, ok := results[0].(map[string]any); ok {
			if _, hasErr := first["error"]; !hasErr {
				extractGeocoding(rec, nil, first)
			}
		}
		return
	}

	if lat, lng, ok := coordFields(response, "latitude", "longitude"); ok {
		rec.StartLat, rec.StartLng, rec.HasStart = lat, lng, true
	} else if lat, lng, ok := coordFields(response, "lat", "lon"); ok {
		rec.StartLat, rec.StartLng, rec.HasStart = lat, lng, true
	}

	if name, ok := stringField(response, "display_name"); ok {
		rec.FormattedAddress = truncate(name, 500)
	} else if name, ok := stringField(response, "formatted_address"); ok {
		rec.FormattedAddress = truncate(name, 500)
	}

	if raw, ok := response["raw"].(map[string]any); ok {
		if id, ok := stringField(raw, "place_id"); ok {
			rec.PlaceID = truncate(id, 255)
		}
		if t, ok := stringField(raw, "type"); ok {
			rec.LocationType = truncate(t, 100)
		} else if t, ok := stringField(raw, "class"); ok {
			rec.LocationType = truncate(t, 100)
		}
	}
}

// extractMatrix handles matrix payloads.
func extractMatrix(rec *AnalyticsRecord, request, response map[string]any) {
	if request != nil {
		if loc, ok := request["current_location"].(map[string]any); ok {
			if lat, lng, ok := coordFields(loc, "latitude", "longitude"); ok {
				rec.StartLat, rec.StartLng, rec.HasStart = lat, lng, true
			}
		}
		if locs, ok := request["locations"].([]any); ok {
			rec.WaypointsCount = len(locs)
		}
		if pdp, ok := request["pdp"].(bool); ok {
			if pdp {
				rec.RouteType = "pickup_delivery"
			} else {
				rec.RouteType = "standard"
			}
		}
	}

	if response == nil {
		return
	}

	if km, ok := floatField(response, "minimum_distance_km"); ok {
		rec.DistanceM = km * 1000
	}
	if s, ok := floatField(response, "estimated_travel_time_seconds"); ok {
		rec.DurationS = s
	}

	coords, _ := response["optimal_route_coordinates"].([]any)
	if len(coords) > 0 {
		if pair, ok := coords[len(coords)-1].([]any); ok && len(pair) >= 2 {
			lat, latOK := asFloat(pair[0])
			lng, lngOK := asFloat(pair[1])
			if latOK && lngOK {
				rec.EndLat, rec.EndLng, rec.HasEnd = lat, lng, true
			}
		}
		rec.RawPolyline = truncate(marshalQuiet(coords), rawBlobLimit)
	}
}

// extractRouting handles routing payloads.
func extractRouting(rec *AnalyticsRecord, request, response map[string]any) {
	if request != nil {
		if waypoints, ok := request["waypoints"].([]any); ok {
			rec.WaypointsCount = len(waypoints)
			if len(waypoints) > 0 {
				if first, ok := waypoints[0].(map[string]any); ok {
					if lat, lng, ok := coordFields(first, "lat", "lng"); ok {
						rec.StartLat, rec.StartLng, rec.HasStart = lat, lng, true
					} else if lat, lng, ok := coordFields(first, "latitude", "longitude"); ok {
						rec.StartLat, rec.StartLng, rec.HasStart = lat, lng, true
					}
				}
			}
			if len(waypoints) > 1 {
				if last, ok := waypoints[len(waypoints)-1].(map[string]any); ok {
					if lat, lng, ok := coordFields(last, "lat", "lng"); ok {
						rec.EndLat, rec.EndLng, rec.HasEnd = lat, lng, true
					} else if lat, lng, ok := coordFields(last, "latitude", "longitude"); ok {
						rec.EndLat, rec.EndLng, rec.HasEnd = lat, lng, true
					}
				}
			}
		}
		if mode, ok := stringField(request, "transport_mode"); ok {
			rec.RouteType = truncate(mode, 50)
		}
	}

	if response == nil {
		return
	}

	route, ok := response["route"].(map[string]any)
	if !ok {
		if routes, ok := response["routes"].([]any); ok && len(routes) > 0 {
			route, _ = routes[0].(map[string]any)
		}
	}
	if route == nil {
		return
	}

	if d, ok := floatField(route, "distance"); ok {
		rec.DistanceM = d
	}
	if d, ok := floatField(route, "duration"); ok {
		rec.DurationS = d
	}
	if p, ok := stringField(route, "polyline"); ok {
		rec.RawPolyline = truncate(p, rawBlobLimit)
	} else if g, ok := route["geometry"]; ok {
		rec.RawPolyline = truncate(marshalQuiet(g), rawBlobLimit)
	}
}

// extractIsochrone handles isochrone payloads.
func extractIsochrone(rec *AnalyticsRecord, request, response map[string]any) {
	if request != nil {
		if center, ok := request["center"].(map[string]any); ok {
			if lat, lng, ok := coordFields(center, "latitude", "longitude"); ok {
				rec.StartLat, rec.StartLng, rec.HasStart = lat, lng, true
			} else if lat, lng, ok := coordFields(center, "lat", "lng"); ok {
				rec.StartLat, rec.StartLng, rec.HasStart = lat, lng, true
			}
		}
		if times, ok := request["travel_times"].([]any); ok {
			rec.WaypointsCount = len(times)
			var max float64
			for _, t := range times {
				if v, ok := asFloat(t); ok && v > max {
					max = v
				}
			}
			rec.DurationS = max * 60
		}
		if mode, ok := stringField(request, "travel_mode"); ok {
			rec.RouteType = truncate(mode, 50)
		}
	}

	if response == nil {
		return
	}
	if features, ok := response["features"].([]any); ok {
		rec.RawPolyline = truncate(marshalQuiet(features), rawBlobLimit)
	} else if polygon, ok := response["polygon"]; ok {
		rec.RawPolyline = truncate(marshalQuiet(polygon), rawBlobLimit)
	}
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	default:
		return marshalQuiet(v), true
	}
}

func floatField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func coordFields(m map[string]any, latKey, lngKey string) (float64, float64, bool) {
	lat, ok1 := floatField(m, latKey)
	lng, ok2 := floatField(m, lngKey)
	return lat, lng, ok1 && ok2
}

func marshalQuiet(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return strings.TrimSpace(s[:limit])
}
