package matrix

import (
	"context"
	"math"
	"testing"

	"geosvc/internal/geo"
	"geosvc/internal/graph"
)

func testGraph() *graph.Graph {
	g := graph.New(geo.ProfileDriving)
	g.AddNode(&graph.Node{ID: 1, Coord: geo.Coordinate{Lat: 41.00, Lng: 20.00}})
	g.AddNode(&graph.Node{ID: 2, Coord: geo.Coordinate{Lat: 41.01, Lng: 20.00}})
	g.AddNode(&graph.Node{ID: 3, Coord: geo.Coordinate{Lat: 41.02, Lng: 20.00}})
	g.AddNode(&graph.Node{ID: 4, Coord: geo.Coordinate{Lat: 45.00, Lng: 25.00}}) // disconnected

	g.AddEdge(&graph.Edge{From: 1, To: 2, Length: 1000, Highway: "residential"})
	g.AddEdge(&graph.Edge{From: 2, To: 1, Length: 1000, Highway: "residential"})
	g.AddEdge(&graph.Edge{From: 2, To: 3, Length: 2000, Highway: "residential"})
	g.AddEdge(&graph.Edge{From: 3, To: 2, Length: 2000, Highway: "residential"})
	return g
}

func defaultConfig() Config {
	return Config{
		IntersectionPenaltySeconds: 15,
		CongestionFactor:           1.4,
		StartupOverheadSeconds:     20,
		FallbackSpeedKPH:           25,
	}
}

func TestBuilder_DiagonalIsZero(t *testing.T) {
	b := New(defaultConfig(), nil)
	set, err := b.Build(context.Background(), testGraph(), []graph.NodeID{1, 2, 3})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := range set.NodeIDs {
		if set.Distances[i][i] != 0 || set.Times[i][i] != 0 {
			t.Errorf("diagonal [%d][%d] = (%f, %f), want (0, 0)", i, i, set.Distances[i][i], set.Times[i][i])
		}
	}
}

func TestBuilder_RealisticTimeModel(t *testing.T) {
	b := New(defaultConfig(), nil)
	set, err := b.Build(context.Background(), testGraph(), []graph.NodeID{1, 2, 3})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// 1 -> 3: edge 1-2 (1000m @ 40kph = 90s) + edge 2-3 (2000m @ 40kph = 180s)
	// = 270s edge time, + 1 interior node * 15s penalty = 285s,
	// * 1.4 congestion = 399s, + 20s startup = 419s.
	const wantDist = 3000.0
	const wantTime = 419.0

	if math.Abs(set.Distances[0][2]-wantDist) > 0.01 {
		t.Errorf("Distances[0][2] = %f, want %f", set.Distances[0][2], wantDist)
	}
	if math.Abs(set.Times[0][2]-wantTime) > 0.01 {
		t.Errorf("Times[0][2] = %f, want %f", set.Times[0][2], wantTime)
	}

	wantPath := []graph.NodeID{1, 2, 3}
	if len(set.Paths[0][2]) != len(wantPath) {
		t.Fatalf("Paths[0][2] = %v, want %v", set.Paths[0][2], wantPath)
	}
	for i := range wantPath {
		if set.Paths[0][2][i] != wantPath[i] {
			t.Fatalf("Paths[0][2] = %v, want %v", set.Paths[0][2], wantPath)
		}
	}
}

func TestBuilder_DirectNeighborHasNoIntersectionPenalty(t *testing.T) {
	b := New(defaultConfig(), nil)
	set, err := b.Build(context.Background(), testGraph(), []graph.NodeID{1, 2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// 1 -> 2 directly: 1000m @ 40kph = 90s edge time, 0 interior nodes,
	// * 1.4 = 126s, + 20s startup = 146s.
	const wantTime = 146.0
	if math.Abs(set.Times[0][1]-wantTime) > 0.01 {
		t.Errorf("Times[0][1] = %f, want %f", set.Times[0][1], wantTime)
	}
}

func TestBuilder_UnreachablePairFallsBackToGreatCircle(t *testing.T) {
	b := New(defaultConfig(), nil)
	set, err := b.Build(context.Background(), testGraph(), []graph.NodeID{1, 4})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if set.Paths[0][1] != nil {
		t.Errorf("unreachable pair should have a nil path, got %v", set.Paths[0][1])
	}
	if set.Distances[0][1] <= 0 {
		t.Errorf("unreachable pair should still report a great-circle distance, got %f", set.Distances[0][1])
	}

	wantTime := set.Distances[0][1] / (25.0 * 1000 / 3600)
	if math.Abs(set.Times[0][1]-wantTime) > 0.01 {
		t.Errorf("Times[0][1] = %f, want %f (distance / 25kph)", set.Times[0][1], wantTime)
	}
}

func TestBuilder_MaxSpeedOverridesHighwayClass(t *testing.T) {
	g := graph.New(geo.ProfileDriving)
	g.AddNode(&graph.Node{ID: 1, Coord: geo.Coordinate{Lat: 0, Lng: 0}})
	g.AddNode(&graph.Node{ID: 2, Coord: geo.Coordinate{Lat: 0, Lng: 0.01}})
	g.AddEdge(&graph.Edge{From: 1, To: 2, Length: 1000, Highway: "residential", MaxSpeedKPH: 100})

	b := New(defaultConfig(), nil)
	set, err := b.Build(context.Background(), g, []graph.NodeID{1, 2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// 1000m @ 100kph = 36s edge time, * 1.4 = 50.4s, + 20s = 70.4s.
	const wantTime = 70.4
	if math.Abs(set.Times[0][1]-wantTime) > 0.01 {
		t.Errorf("Times[0][1] = %f, want %f (posted maxspeed should override the residential class table)", set.Times[0][1], wantTime)
	}
}
