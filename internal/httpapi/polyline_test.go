package httpapi

import (
	"math"
	"testing"

	"geosvc/internal/geo"
)

func TestEncodePolyline_KnownVector(t *testing.T) {
	// Reference sequence from the polyline format's own documentation.
	coords := []geo.Coordinate{
		{Lat: 38.5, Lng: -120.2},
		{Lat: 40.7, Lng: -120.95},
		{Lat: 43.252, Lng: -126.453},
	}
	const want = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	if got := encodePolyline(coords); got != want {
		t.Errorf("encodePolyline = %q, want %q", got, want)
	}
}

func TestPolylineRoundTrip(t *testing.T) {
	coords := []geo.Coordinate{
		{Lat: 41.9981, Lng: 21.4254},
		{Lat: 41.9964, Lng: 20.9631},
		{Lat: 41.1231, Lng: 20.8016},
		{Lat: -33.8688, Lng: 151.2093},
	}

	decoded := decodePolyline(encodePolyline(coords))
	if len(decoded) != len(coords) {
		t.Fatalf("decoded %d points, want %d", len(decoded), len(coords))
	}
	for i := range coords {
		if math.Abs(decoded[i].Lat-coords[i].Lat) > 1e-5 || math.Abs(decoded[i].Lng-coords[i].Lng) > 1e-5 {
			t.Errorf("point %d round-tripped to (%f,%f), want (%f,%f)", i, decoded[i].Lat, decoded[i].Lng, coords[i].Lat, coords[i].Lng)
		}
	}
}

func TestDecodePolyline_Empty(t *testing.T) {
	if got := decodePolyline(""); got != nil {
		t.Errorf("decodePolyline(\"\") = %v, want nil", got)
	}
}
