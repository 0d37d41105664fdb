// Package isochrone implements the Isochrone Builder: for a center
// coordinate and a sorted set of travel-time cutoffs, fetches a graph
// scoped to the worst cutoff, runs a single cutoff-limited Dijkstra on
// travel_time, and turns each cutoff's reachable-node set into a
// simplified convex-hull polygon with its area and GeoJSON rendering.
//
// The pipeline is hull-then-simplify-then-export: reachable nodes
// become a convex hull, the hull is Douglas-Peucker simplified, and the
// result is rendered as a closed ring with its area.
package isochrone

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"

	"geosvc/internal/geo"
	"geosvc/internal/graph"
	"geosvc/pkg/apperror"
)

// Config mirrors config.IsochroneConfig.
type Config struct {
	MinFetchRadiusMeters   float64
	RadiusSafetyFactor     float64
	SubgraphNodeThreshold  int
	DefaultToleranceMeters float64
}

// GraphSource obtains a graph covering a center/radius/profile, satisfied
// by internal/graphcache.Cache.Get.
type GraphSource interface {
	Get(ctx context.Context, lat, lon, radiusM float64, profile geo.Profile) (*graph.Graph, error)
}

// MetricsSink receives isochrone build observability; nil is a
// valid no-op sink.
type MetricsSink interface {
	RecordIsochroneBuild(profile string, duration time.Duration, areaKM2 float64)
}

// Builder computes isochrone polygons.
type Builder struct {
	cfg     Config
	source  GraphSource
	metrics MetricsSink
	result  *ResultCache
}

// New constructs a Builder, filling unset Config fields with defaults.
// resultCache may be nil to disable result memoization.
func New(cfg Config, source GraphSource, metrics MetricsSink, resultCache *ResultCache) *Builder {
	if cfg.MinFetchRadiusMeters <= 0 {
		cfg.MinFetchRadiusMeters = 2000
	}
	if cfg.RadiusSafetyFactor <= 0 {
		cfg.RadiusSafetyFactor = 1.5
	}
	if cfg.SubgraphNodeThreshold <= 0 {
		cfg.SubgraphNodeThreshold = 10_000
	}
	if cfg.DefaultToleranceMeters < 0 {
		cfg.DefaultToleranceMeters = 0
	}
	return &Builder{cfg: cfg, source: source, metrics: metrics, result: resultCache}
}

// Polygon is one cutoff's isochrone result.
type Polygon struct {
	TravelTimeMinutes float64
	AreaKM2           float64
	ReachableNodes    int
	ExteriorRing      [][2]float64 // [lng, lat] pairs, closed ring
}

// Result bundles every cutoff that produced a polygon; cutoffs with fewer
// than 3 reachable nodes are silently skipped.
type Result struct {
	Center   geo.Coordinate
	Profile  geo.Profile
	Polygons []Polygon
}

// Build computes isochrone polygons for center across the sorted cutoffs
// (minutes, each ≤120 — validated by the HTTP layer) at the given
// simplification tolerance (meters, ≥0; 0 disables simplification).
func (b *Builder) Build(ctx context.Context, center geo.Coordinate, cutoffsMinutes []float64, profile geo.Profile, toleranceMeters float64) (*Result, error) {
	start := time.Now()

	cutoffs := append([]float64(nil), cutoffsMinutes...)
	sort.Float64s(cutoffs)
	if len(cutoffs) == 0 {
		return &Result{Center: center, Profile: profile}, nil
	}

	cacheKey := NewCacheKey(center, cutoffs, profile, toleranceMeters)
	if cached, hit := b.result.Get(ctx, cacheKey); hit {
		return cached, nil
	}

	maxCutoff := cutoffs[len(cutoffs)-1]
	radius := b.fetchRadius(maxCutoff, profile)

	g, err := b.source.Get(ctx, center.Lat, center.Lng, radius, profile)
	if err != nil {
		return nil, err
	}

	nearest, _, found := g.NearestNode(center)
	if !found {
		return nil, apperror.New(apperror.CodeRouteUnavailable, "no graph nodes available to anchor the isochrone center")
	}

	// For graphs above SubgraphNodeThreshold the cutoff
	// itself bounds expansion; below it, the fetch radius already scoped
	// the graph to roughly the isochrone's footprint, so a separate
	// subgraph-extraction pass would visit the same nodes Dijkstra does.
	// Either way a single cutoff-limited Dijkstra at the worst cutoff
	// produces every node any smaller cutoff could need.
	s := graph.ShortestPaths(ctx, g, nearest, byTravelTime, maxCutoff*60)
	defer s.Release()

	result := &Result{Center: center, Profile: profile}
	var lastAreaKM2 float64

	for _, cutoffMin := range cutoffs {
		cutoffSec := cutoffMin * 60
		points := make(orb.MultiPoint, 0, len(s.Dist))
		for nodeID, dist := range s.Dist {
			if dist > cutoffSec+graph.Epsilon {
				continue
			}
			n, ok := g.Node(nodeID)
			if !ok {
				continue
			}
			points = append(points, orb.Point{n.Coord.Lng, n.Coord.Lat})
		}

		if len(points) < 3 {
			continue
		}

		ring := convexHull(points)
		ring = simplifyRing(ring, toleranceMeters)
		ring = closeRing(ring)

		areaDeg2 := math.Abs(ringArea(ring))
		areaKM2 := areaDeg2 * 111.32 * 111.32
		lastAreaKM2 = areaKM2

		result.Polygons = append(result.Polygons, Polygon{
			TravelTimeMinutes: cutoffMin,
			AreaKM2:           areaKM2,
			ReachableNodes:    len(points),
			ExteriorRing:      ringToLngLat(ring),
		})
	}

	if b.metrics != nil {
		b.metrics.RecordIsochroneBuild(string(profile), time.Since(start), lastAreaKM2)
	}

	b.result.Set(ctx, cacheKey, result)
	return result, nil
}

// fetchRadius picks a graph radius covering the worst cutoff with margin.
func (b *Builder) fetchRadius(maxCutoffMinutes float64, profile geo.Profile) float64 {
	speedKPH := profile.DefaultSpeedKPH()
	r := maxCutoffMinutes * speedKPH * 1000 / 60 * b.cfg.RadiusSafetyFactor
	if r < b.cfg.MinFetchRadiusMeters {
		return b.cfg.MinFetchRadiusMeters
	}
	return r
}

func byTravelTime(e *graph.Edge) float64 { return e.TravelTimeS }

// convexHull computes the convex hull of points via Andrew's monotone
// chain, returning an open counter-clockwise ring. Caller guarantees
// len(points) >= 3.
func convexHull(points orb.MultiPoint) orb.Ring {
	pts := append(orb.MultiPoint(nil), points...)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	var lower, upper []orb.Point
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	return orb.Ring(hull)
}

// simplifyRing applies Douglas-Peucker at (toleranceMeters / 111,320)
// degrees; a non-positive tolerance skips simplification.
func simplifyRing(ring orb.Ring, toleranceMeters float64) orb.Ring {
	if toleranceMeters <= 0 {
		return ring
	}
	toleranceDeg := toleranceMeters / 111_320.0
	simplified := simplify.DouglasPeucker(toleranceDeg).Simplify(ring)
	if r, ok := simplified.(orb.Ring); ok && len(r) >= 3 {
		return r
	}
	return ring
}

// closeRing ensures the ring's first and last points coincide, matching
// the GeoJSON contract.
func closeRing(ring orb.Ring) orb.Ring {
	if len(ring) == 0 {
		return ring
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// ringArea computes the shoelace-formula signed area of ring in the
// coordinates' own units (degrees squared here).
func ringArea(ring orb.Ring) float64 {
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}

func ringToLngLat(ring orb.Ring) [][2]float64 {
	out := make([][2]float64, len(ring))
	for i, p := range ring {
		out[i] = [2]float64{p[0], p[1]}
	}
	return out
}

// ToGeoJSON wraps each polygon as a Feature carrying the
// travel_time_minutes, area_km2, and reachable_nodes properties.
func ToGeoJSON(result *Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range result.Polygons {
		ring := make(orb.Ring, len(p.ExteriorRing))
		for i, pt := range p.ExteriorRing {
			ring[i] = orb.Point{pt[0], pt[1]}
		}
		polygon := orb.Polygon{ring}

		f := geojson.NewFeature(polygon)
		f.Properties = geojson.Properties{
			"travel_time_minutes": p.TravelTimeMinutes,
			"area_km2":            p.AreaKM2,
			"reachable_nodes":     p.ReachableNodes,
		}
		fc.Append(f)
	}
	return fc
}
