package geo

import (
	"fmt"
	"math"
	"strings"
)

// Coordinate is a (latitude, longitude) pair in decimal degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinate falls within the legal WGS84 range.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Profile is one of the three travel modes the Geospatial Compute Engine
// understands. Every component downstream of the HTTP boundary works with
// a normalized Profile, never a raw request string.
type Profile string

const (
	ProfileDriving Profile = "driving"
	ProfileWalking Profile = "walking"
	ProfileCycling Profile = "cycling"
)

// DefaultSpeedKPH is the per-profile speed assumed where edge attributes
// are missing.
func (p Profile) DefaultSpeedKPH() float64 {
	switch p {
	case ProfileWalking:
		return 5
	case ProfileCycling:
		return 15
	default:
		return 50
	}
}

// profileAliases maps request-level transport_mode spellings to a
// canonical Profile. Normalization is idempotent: feeding a canonical
// value back through it returns the same value.
var profileAliases = map[string]Profile{
	"driving":    ProfileDriving,
	"drive":      ProfileDriving,
	"car":        ProfileDriving,
	"auto":       ProfileDriving,
	"walking":    ProfileWalking,
	"walk":       ProfileWalking,
	"pedestrian": ProfileWalking,
	"foot":       ProfileWalking,
	"cycling":    ProfileCycling,
	"cycle":      ProfileCycling,
	"bike":       ProfileCycling,
	"bicycle":    ProfileCycling,
}

// ParseProfile normalizes a raw transport_mode string to a canonical
// Profile, or reports ok=false for unrecognized aliases. The caller is
// expected to raise BadRequest with the supported set on failure.
func ParseProfile(raw string) (Profile, bool) {
	p, ok := profileAliases[strings.ToLower(strings.TrimSpace(raw))]
	return p, ok
}

// SupportedModes lists every alias accepted by ParseProfile, in a stable
// order, for inclusion in BadRequest responses and the /modes endpoint.
func SupportedModes() []string {
	return []string{
		"driving", "drive", "car", "auto",
		"walking", "walk", "pedestrian", "foot",
		"cycling", "cycle", "bike", "bicycle",
	}
}

// RegionKey is the Graph Cache and Graph Store's cache key: a bucketed
// center plus radius plus profile. Two queries landing in the same bucket
// share a cached graph.
type RegionKey struct {
	LatBucket    float64
	LonBucket    float64
	RadiusBucket int
	Profile      Profile
}

// roundTo3 rounds to 3 decimal places, matching the RegionKey bucketing rule.
func roundTo3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// NewRegionKey buckets a (lat, lng, radius) query into a RegionKey.
// radiusM is in meters; radiusBucket is the radius in kilometers rounded
// down to an integer.
func NewRegionKey(lat, lng, radiusM float64, profile Profile) RegionKey {
	return RegionKey{
		LatBucket:    roundTo3(lat),
		LonBucket:    roundTo3(lng),
		RadiusBucket: int(math.Floor(radiusM / 1000)),
		Profile:      profile,
	}
}

// String renders the on-disk/log-friendly form of the key:
// "<lat>_<lng>_<km>km_<profile>".
func (k RegionKey) String() string {
	return fmt.Sprintf("%.3f_%.3f_%dkm_%s", k.LatBucket, k.LonBucket, k.RadiusBucket, k.Profile)
}

// NeighborKeys returns the 8 RegionKeys one bucket away in each axis,
// used by the Graph Cache to seed background prefetch.
func (k RegionKey) NeighborKeys() []RegionKey {
	const step = 0.001
	neighbors := make([]RegionKey, 0, 8)
	for dLat := -1; dLat <= 1; dLat++ {
		for dLon := -1; dLon <= 1; dLon++ {
			if dLat == 0 && dLon == 0 {
				continue
			}
			neighbors = append(neighbors, RegionKey{
				LatBucket:    roundTo3(k.LatBucket + float64(dLat)*step),
				LonBucket:    roundTo3(k.LonBucket + float64(dLon)*step),
				RadiusBucket: k.RadiusBucket,
				Profile:      k.Profile,
			})
		}
	}
	return neighbors
}

// BBoxKey identifies a graph built from an explicit enclosing rectangle
// rather than a center+radius query.
type BBoxKey struct {
	MinLat, MinLng, MaxLat, MaxLng float64
	Profile                        Profile
}

// String renders the on-disk form "bbox_<10-char-hash>".
func (k BBoxKey) String() string {
	h := fnv32(fmt.Sprintf("%.5f_%.5f_%.5f_%.5f_%s", k.MinLat, k.MinLng, k.MaxLat, k.MaxLng, k.Profile))
	return fmt.Sprintf("bbox_%010x", h)[:15]
}

// fnv32 is a small dependency-free hash good enough for a cache filename;
// it is not used for anything security-sensitive.
func fnv32(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
