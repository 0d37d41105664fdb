// Package graph holds the in-memory road network representation shared by
// the Matrix Builder, Route Solver, and Isochrone Builder.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"geosvc/internal/geo"
)

// Epsilon is the tolerance for floating-point comparisons in graph and
// matrix arithmetic.
const Epsilon = 1e-9

// Infinity represents an unreachable distance or travel time.
const Infinity = 1e18

// NodeID identifies a graph node, typically an OSM node id.
type NodeID int64

// Node carries a coordinate. OSM tags beyond position are not retained;
// everything the Matrix Builder needs lives on the edges.
type Node struct {
	ID    NodeID
	Coord geo.Coordinate
}

// Edge carries the attributes the realistic travel-time model consumes.
// Every edge in a profile-annotated graph must have positive
// Length and TravelTimeS; graphs lacking TravelTimeS must be annotated on
// load.
type Edge struct {
	From        NodeID
	To          NodeID
	Length      float64 // meters
	Highway     string  // OSM highway class tag, e.g. "primary"
	MaxSpeedKPH float64 // 0 means "not posted"
	SpeedKPH    float64 // resolved speed used for travel time
	TravelTimeS float64 // seconds
	Geometry    []geo.Coordinate
}

// Graph is a directed multigraph: parallel edges between the same pair of
// nodes are legal (OSM ways are frequently split into several segments
// between the same two junctions by tagging changes).
type Graph struct {
	Profile geo.Profile

	mu       sync.RWMutex
	nodes    map[NodeID]*Node
	outgoing map[NodeID][]*Edge
}

// New creates an empty graph for the given profile.
func New(profile geo.Profile) *Graph {
	return &Graph{
		Profile:  profile,
		nodes:    make(map[NodeID]*Node),
		outgoing: make(map[NodeID][]*Edge),
	}
}

// AddNode inserts or overwrites a node.
func (g *Graph) AddNode(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID] = n
}

// AddEdge appends a directed edge. Callers that want bidirectional travel
// must call AddEdge twice, once in each direction — the Network Loader
// does this for two-way OSM ways.
func (g *Graph) AddEdge(e *Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outgoing[e.From] = append(g.outgoing[e.From], e)
}

// Node returns the node for id, if present.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Neighbors returns the outgoing edges from id, in insertion order.
func (g *Graph) Neighbors(id NodeID) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.outgoing[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the total number of directed edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := 0
	for _, edges := range g.outgoing {
		total += len(edges)
	}
	return total
}

// NodeIDs returns every node id in ascending order, for deterministic
// iteration (matrix construction, Dijkstra priming).
func (g *Graph) NodeIDs() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NearestNode returns the node closest to the given coordinate by
// great-circle distance, used to snap isochrone centers and matrix
// locations onto the graph.
func (g *Graph) NearestNode(c geo.Coordinate) (NodeID, float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var (
		best     NodeID
		bestDist = Infinity
		found    bool
	)
	for id, n := range g.nodes {
		d := geo.Haversine(c.Lat, c.Lng, n.Coord.Lat, n.Coord.Lng)
		if d < bestDist {
			bestDist = d
			best = id
			found = true
		}
	}
	return best, bestDist, found
}

// Validate checks the invariant that every edge in a
// profile-annotated graph has positive length and positive travel time.
func (g *Graph) Validate() []error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for from, edges := range g.outgoing {
		for _, e := range edges {
			if e.Length <= 0 {
				errs = append(errs, fmt.Errorf("edge %d->%d has non-positive length %f", from, e.To, e.Length))
			}
			if e.TravelTimeS <= 0 {
				errs = append(errs, fmt.Errorf("edge %d->%d has non-positive travel time %f", from, e.To, e.TravelTimeS))
			}
			if _, ok := g.nodes[e.To]; !ok {
				errs = append(errs, fmt.Errorf("edge %d->%d references unknown node %d", from, e.To, e.To))
			}
		}
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("outgoing edges reference unknown source node %d", from))
		}
	}
	return errs
}
