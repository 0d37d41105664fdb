// Package matrix implements the Matrix Builder: for an ordered set
// of node ids over a Graph, computes a square distance matrix (meters) and
// a square travel-time matrix (seconds) via the realistic travel-time
// model, falling back to great-circle distance for unreachable pairs.
//
// Each source node gets one length-keyed Dijkstra pass with pooled
// scratch maps; travel times are then derived per pair from the
// recovered path via the realistic travel-time model.
package matrix

import (
	"context"
	"time"

	"geosvc/internal/geo"
	"geosvc/internal/graph"
	"geosvc/pkg/apperror"
)

// Config carries the realistic travel-time model's fixed constants,
// mirroring config.MatrixConfig.
type Config struct {
	IntersectionPenaltySeconds float64
	CongestionFactor           float64
	StartupOverheadSeconds     float64
	FallbackSpeedKPH           float64
}

// MetricsSink receives matrix build observability; nil is a valid
// no-op sink.
type MetricsSink interface {
	RecordMatrixBuild(profile string, duration time.Duration, locations int)
}

// Set is the output of a matrix build: square distance/time matrices and
// the node-id path taken for each pair, indexed the same way as the input
// node id slice.
type Set struct {
	NodeIDs   []graph.NodeID
	Distances [][]float64 // meters
	Times     [][]float64 // seconds
	Paths     [][][]graph.NodeID
}

// Builder computes Sets.
type Builder struct {
	cfg     Config
	metrics MetricsSink
}

// New constructs a Builder. Zero-valued Config fields fall back to the
// fixed model constants so a caller cannot silently zero out the
// congestion factor or startup overhead.
func New(cfg Config, metrics MetricsSink) *Builder {
	if cfg.IntersectionPenaltySeconds == 0 {
		cfg.IntersectionPenaltySeconds = 15
	}
	if cfg.CongestionFactor == 0 {
		cfg.CongestionFactor = 1.4
	}
	if cfg.StartupOverheadSeconds == 0 {
		cfg.StartupOverheadSeconds = 20
	}
	if cfg.FallbackSpeedKPH == 0 {
		cfg.FallbackSpeedKPH = 25
	}
	return &Builder{cfg: cfg, metrics: metrics}
}

// Build computes the distance/time/path matrices for nodeIDs over g. All
// ids must already exist in g (the caller is responsible for snapping raw
// coordinates onto the graph via g.NearestNode first).
func (b *Builder) Build(ctx context.Context, g *graph.Graph, nodeIDs []graph.NodeID) (*Set, error) {
	start := time.Now()
	n := len(nodeIDs)

	set := &Set{
		NodeIDs:   nodeIDs,
		Distances: make([][]float64, n),
		Times:     make([][]float64, n),
		Paths:     make([][][]graph.NodeID, n),
	}
	for i := range set.Distances {
		set.Distances[i] = make([]float64, n)
		set.Times[i] = make([]float64, n)
		set.Paths[i] = make([][]graph.NodeID, n)
	}

	for i, source := range nodeIDs {
		select {
		case <-ctx.Done():
			return nil, apperror.Wrap(ctx.Err(), apperror.CodeInternal, "matrix build cancelled")
		default:
		}

		s := graph.ShortestPaths(ctx, g, source, byLength, graph.Infinity)

		for j, target := range nodeIDs {
			if i == j {
				set.Distances[i][j] = 0
				set.Times[i][j] = 0
				set.Paths[i][j] = []graph.NodeID{source}
				continue
			}

			if dist, ok := s.Dist[target]; ok {
				path := graph.PathTo(s.Prev, source, target)
				set.Distances[i][j] = dist
				set.Times[i][j] = b.realisticTime(g, path)
				set.Paths[i][j] = path
				continue
			}

			dist, t := b.greatCircleFallback(g, source, target)
			set.Distances[i][j] = dist
			set.Times[i][j] = t
			set.Paths[i][j] = nil
		}

		s.Release()
	}

	if b.metrics != nil {
		b.metrics.RecordMatrixBuild(string(g.Profile), time.Since(start), n)
	}

	return set, nil
}

// realisticTime estimates travel time over an already-computed shortest
// path's edges: per-edge kinematic time at the resolved speed, plus the
// intersection penalty per interior node, scaled by the congestion
// factor, plus the startup overhead.
func (b *Builder) realisticTime(g *graph.Graph, path []graph.NodeID) float64 {
	if len(path) < 2 {
		return 0
	}

	var edgeTime float64
	for k := 0; k < len(path)-1; k++ {
		e := findEdge(g, path[k], path[k+1])
		if e == nil {
			// Path came from Dijkstra over g, so a missing edge here would be
			// a bug in PathTo/ShortestPaths, not a data issue; degrade
			// gracefully with the fallback speed rather than panic.
			fromLat, fromLng := nodeCoord(g, path[k])
			toLat, toLng := nodeCoord(g, path[k+1])
			d := geo.Haversine(fromLat, fromLng, toLat, toLng)
			edgeTime += d / (b.cfg.FallbackSpeedKPH * 1000 / 3600)
			continue
		}
		speed := graph.DrivingSpeedKPH(e)
		edgeTime += e.Length / (speed * 1000 / 3600)
	}

	interiorNodes := len(path) - 2
	if interiorNodes < 0 {
		interiorNodes = 0
	}
	penalty := float64(interiorNodes) * b.cfg.IntersectionPenaltySeconds

	return (edgeTime+penalty)*b.cfg.CongestionFactor + b.cfg.StartupOverheadSeconds
}

// greatCircleFallback handles unreachable pairs: great-circle distance
// at a conservative speed.
func (b *Builder) greatCircleFallback(g *graph.Graph, from, to graph.NodeID) (distanceM, timeS float64) {
	fromNode, _ := g.Node(from)
	toNode, _ := g.Node(to)
	if fromNode == nil || toNode == nil {
		return 0, 0
	}
	d := geo.Haversine(fromNode.Coord.Lat, fromNode.Coord.Lng, toNode.Coord.Lat, toNode.Coord.Lng)
	return d, d / (b.cfg.FallbackSpeedKPH * 1000 / 3600)
}

func byLength(e *graph.Edge) float64 { return e.Length }

// findEdge returns the lowest-length edge from→to, matching the edge
// Dijkstra would have relaxed along when multiple parallel OSM-derived
// edges connect the same pair of nodes.
func findEdge(g *graph.Graph, from, to graph.NodeID) *graph.Edge {
	var best *graph.Edge
	for _, e := range g.Neighbors(from) {
		if e.To != to {
			continue
		}
		if best == nil || e.Length < best.Length {
			best = e
		}
	}
	return best
}

func nodeCoord(g *graph.Graph, id graph.NodeID) (lat, lng float64) {
	if n, ok := g.Node(id); ok {
		return n.Coord.Lat, n.Coord.Lng
	}
	return 0, 0
}
