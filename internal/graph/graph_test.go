package graph

import (
	"testing"

	"geosvc/internal/geo"
)

func newTestGraph() *Graph {
	g := New(geo.ProfileDriving)
	g.AddNode(&Node{ID: 1, Coord: geo.Coordinate{Lat: 41.00, Lng: 20.00}})
	g.AddNode(&Node{ID: 2, Coord: geo.Coordinate{Lat: 41.01, Lng: 20.00}})
	g.AddNode(&Node{ID: 3, Coord: geo.Coordinate{Lat: 41.02, Lng: 20.00}})
	g.AddEdge(&Edge{From: 1, To: 2, Length: 100, TravelTimeS: 10, Highway: "residential"})
	g.AddEdge(&Edge{From: 2, To: 1, Length: 100, TravelTimeS: 10, Highway: "residential"})
	g.AddEdge(&Edge{From: 2, To: 3, Length: 150, TravelTimeS: 15, Highway: "residential"})
	g.AddEdge(&Edge{From: 3, To: 2, Length: 150, TravelTimeS: 15, Highway: "residential"})
	return g
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := newTestGraph()

	if g.NodeCount() != 3 {
		t.Fatalf("NodeCount() = %d, want 3", g.NodeCount())
	}
	if g.EdgeCount() != 4 {
		t.Fatalf("EdgeCount() = %d, want 4", g.EdgeCount())
	}

	neighbors := g.Neighbors(1)
	if len(neighbors) != 1 || neighbors[0].To != 2 {
		t.Errorf("Neighbors(1) = %+v, want single edge to node 2", neighbors)
	}
}

func TestGraph_MultigraphParallelEdges(t *testing.T) {
	g := New(geo.ProfileDriving)
	g.AddNode(&Node{ID: 1, Coord: geo.Coordinate{Lat: 0, Lng: 0}})
	g.AddNode(&Node{ID: 2, Coord: geo.Coordinate{Lat: 0, Lng: 1}})
	g.AddEdge(&Edge{From: 1, To: 2, Length: 50, TravelTimeS: 5, Highway: "service"})
	g.AddEdge(&Edge{From: 1, To: 2, Length: 60, TravelTimeS: 6, Highway: "residential"})

	neighbors := g.Neighbors(1)
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 parallel edges between the same node pair, got %d", len(neighbors))
	}
}

func TestGraph_NearestNode(t *testing.T) {
	g := newTestGraph()

	id, dist, found := g.NearestNode(geo.Coordinate{Lat: 41.011, Lng: 20.00})
	if !found {
		t.Fatal("expected NearestNode to find a node")
	}
	if id != 2 {
		t.Errorf("NearestNode = %d, want 2", id)
	}
	if dist < 0 {
		t.Errorf("distance should not be negative, got %f", dist)
	}
}

func TestGraph_NodeIDs_Sorted(t *testing.T) {
	g := newTestGraph()
	ids := g.NodeIDs()
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("NodeIDs() not strictly ascending: %v", ids)
		}
	}
}

func TestGraph_Validate_PositiveLengthAndTravelTime(t *testing.T) {
	g := newTestGraph()
	if errs := g.Validate(); len(errs) != 0 {
		t.Fatalf("expected a well-formed graph to validate cleanly, got %v", errs)
	}

	bad := New(geo.ProfileDriving)
	bad.AddNode(&Node{ID: 1, Coord: geo.Coordinate{Lat: 0, Lng: 0}})
	bad.AddNode(&Node{ID: 2, Coord: geo.Coordinate{Lat: 0, Lng: 1}})
	bad.AddEdge(&Edge{From: 1, To: 2, Length: 0, TravelTimeS: 0})

	if errs := bad.Validate(); len(errs) == 0 {
		t.Fatal("expected non-positive length/travel-time edge to fail validation")
	}
}
