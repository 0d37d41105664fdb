package httpapi

import (
	"math"
	"strings"

	"geosvc/internal/geo"
)

// encodePolyline implements the Google Encoded Polyline Algorithm Format
// (precision 1e5), the de facto wire format for route geometries. It is
// a closed, fully specified bit-packing algorithm; paulmach/orb (used
// throughout internal/isochrone) targets GeoJSON, not this
// Google-specific varint format.
func encodePolyline(coords []geo.Coordinate) string {
	var sb strings.Builder
	var prevLat, prevLng int64

	for _, c := range coords {
		lat := round1e5(c.Lat)
		lng := round1e5(c.Lng)

		encodeSigned(&sb, lat-prevLat)
		encodeSigned(&sb, lng-prevLng)

		prevLat, prevLng = lat, lng
	}
	return sb.String()
}

// decodePolyline reverses encodePolyline. Used only to populate
// decoded_polyline from the polyline this handler just encoded, so the
// round-trip invariant holds by construction.
func decodePolyline(encoded string) []geo.Coordinate {
	var coords []geo.Coordinate
	var lat, lng int64
	i := 0

	for i < len(encoded) {
		dLat, next := decodeSigned(encoded, i)
		i = next
		dLng, next2 := decodeSigned(encoded, i)
		i = next2

		lat += dLat
		lng += dLng

		coords = append(coords, geo.Coordinate{
			Lat: float64(lat) / 1e5,
			Lng: float64(lng) / 1e5,
		})
	}
	return coords
}

func round1e5(v float64) int64 {
	return int64(math.Round(v * 1e5))
}

func encodeSigned(sb *strings.Builder, v int64) {
	shifted := v << 1
	if v < 0 {
		shifted = ^shifted
	}
	for shifted >= 0x20 {
		sb.WriteByte(byte((0x20|(shifted&0x1f))+63))
		shifted >>= 5
	}
	sb.WriteByte(byte(shifted + 63))
}

func decodeSigned(encoded string, start int) (int64, int) {
	i := start
	shift := uint(0)
	var result int64
	for {
		b := int64(encoded[i]) - 63
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), i
	}
	return result >> 1, i
}
