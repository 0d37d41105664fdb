package solver

import (
	"testing"

	"geosvc/internal/geo"
	"geosvc/internal/graph"
	"geosvc/internal/matrix"
	"geosvc/pkg/apperror"
)

func newSet(n int) *matrixSetBuilder {
	b := &matrixSetBuilder{n: n}
	b.dist = make([][]float64, n)
	b.times = make([][]float64, n)
	b.paths = make([][][]graph.NodeID, n)
	for i := range b.dist {
		b.dist[i] = make([]float64, n)
		b.times[i] = make([]float64, n)
		b.paths[i] = make([][]graph.NodeID, n)
	}
	return b
}

// matrixSetBuilder is test-only scaffolding for hand-authored matrix.Set
// fixtures (the real builder lives in package matrix and requires an
// actual graph.Graph; these tests exercise the solver in isolation).
type matrixSetBuilder struct {
	n     int
	dist  [][]float64
	times [][]float64
	paths [][][]graph.NodeID
}

func (b *matrixSetBuilder) link(i, j int, dist, t float64) *matrixSetBuilder {
	b.dist[i][j] = dist
	b.dist[j][i] = dist
	b.times[i][j] = t
	b.times[j][i] = t
	b.paths[i][j] = []graph.NodeID{graph.NodeID(i), graph.NodeID(j)}
	b.paths[j][i] = []graph.NodeID{graph.NodeID(j), graph.NodeID(i)}
	return b
}

func (b *matrixSetBuilder) build() *matrix.Set {
	ids := make([]graph.NodeID, b.n)
	for i := range ids {
		ids[i] = graph.NodeID(i)
	}
	return &matrix.Set{NodeIDs: ids, Distances: b.dist, Times: b.times, Paths: b.paths}
}

func locs(n int) []Location {
	out := make([]Location, n)
	for i := range out {
		out[i] = Location{Label: label(i), Coord: geo.Coordinate{Lat: float64(i), Lng: float64(i)}}
	}
	return out
}

func label(i int) string {
	return [...]string{"A", "B", "C", "D", "E"}[i]
}

func TestSolveTSP_NearestNeighborOrder(t *testing.T) {
	m := newSet(4).
		link(0, 1, 50000, 5000).
		link(0, 2, 10000, 1000).
		link(0, 3, 30000, 3000).
		link(1, 2, 20000, 2000).
		link(1, 3, 15000, 1500).
		link(2, 3, 25000, 2500).
		build()

	route, err := SolveTSP(m, locs(4))
	if err != nil {
		t.Fatalf("SolveTSP: %v", err)
	}

	want := []int{0, 2, 1, 3}
	if len(route.Order) != len(want) {
		t.Fatalf("Order = %v, want %v", route.Order, want)
	}
	for i := range want {
		if route.Order[i] != want[i] {
			t.Fatalf("Order = %v, want %v", route.Order, want)
		}
	}
	if route.Labels[0] != "A" {
		t.Errorf("route must start at index 0's label, got %q", route.Labels[0])
	}
}

func TestSolveTSP_TieBreaksOnSmallerIndex(t *testing.T) {
	m := newSet(3).
		link(0, 1, 10000, 1000).
		link(0, 2, 10000, 1000).
		link(1, 2, 5000, 500).
		build()

	route, err := SolveTSP(m, locs(3))
	if err != nil {
		t.Fatalf("SolveTSP: %v", err)
	}
	if route.Order[1] != 1 {
		t.Errorf("Order[1] = %d, want 1 (smaller index wins an exact distance tie)", route.Order[1])
	}
}

func TestSolveTSP_Disconnected(t *testing.T) {
	m := newSet(2).build() // no links: every off-diagonal path stays nil

	_, err := SolveTSP(m, locs(2))
	if err == nil {
		t.Fatal("expected an error for a fully disconnected matrix")
	}
	if apperror.Code(err) != apperror.CodeDisconnected {
		t.Errorf("Code = %v, want CodeDisconnected", apperror.Code(err))
	}
}

func TestSolvePDP_PickupBeforeDelivery(t *testing.T) {
	m := newSet(3).
		link(0, 1, 10000, 1000).
		link(0, 2, 5000, 500). // delivery is geometrically closer...
		link(1, 2, 3000, 300).
		build()

	pairs := []PDPPair{{PickupIndex: 1, DeliveryIndex: 2}}
	route, err := SolvePDP(m, locs(3), pairs)
	if err != nil {
		t.Fatalf("SolvePDP: %v", err)
	}

	pickupPos, deliveryPos := -1, -1
	for pos, idx := range route.Order {
		if idx == 1 {
			pickupPos = pos
		}
		if idx == 2 {
			deliveryPos = pos
		}
	}
	if pickupPos == -1 || deliveryPos == -1 || pickupPos >= deliveryPos {
		t.Errorf("Order = %v, want pickup (1) before delivery (2) despite delivery being closer", route.Order)
	}
}

func TestSolvePDP_DeadlockedPrecedenceIsInconsistent(t *testing.T) {
	m := newSet(3).
		link(0, 1, 10000, 1000).
		link(0, 2, 20000, 2000).
		link(1, 2, 5000, 500).
		build()

	// Each location claims the other as its prerequisite pickup — neither
	// can ever become selectable, forcing the fallback step to violate
	// precedence.
	pairs := []PDPPair{
		{PickupIndex: 2, DeliveryIndex: 1},
		{PickupIndex: 1, DeliveryIndex: 2},
	}

	_, err := SolvePDP(m, locs(3), pairs)
	if err == nil {
		t.Fatal("expected InconsistentPDP for a deadlocked precedence graph")
	}
	if apperror.Code(err) != apperror.CodeInconsistentPDP {
		t.Errorf("Code = %v, want CodeInconsistentPDP", apperror.Code(err))
	}
}

func TestHumanDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "0m0s"},
		{65, "1m5s"},
		{3661, "1h1m1s"},
		{7199, "1h59m59s"},
	}
	for _, c := range cases {
		if got := humanDuration(c.seconds); got != c.want {
			t.Errorf("humanDuration(%f) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestSolveSequentialKeepsCallerOrder(t *testing.T) {
	m := newSet(3).
		link(0, 1, 10000, 1000).
		link(1, 2, 20000, 2000).
		link(0, 2, 50000, 5000).
		build()

	route, err := SolveSequential(m, locs(3))
	if err != nil {
		t.Fatalf("SolveSequential: %v", err)
	}

	want := []int{0, 1, 2}
	for i := range want {
		if route.Order[i] != want[i] {
			t.Fatalf("Order = %v, want %v", route.Order, want)
		}
	}
	// Must sum the direct 0->1->2 legs, not the shorter 0->2 shortcut.
	if route.TotalDistanceKM != 30 {
		t.Errorf("TotalDistanceKM = %v, want 30 (10km+20km along the given order)", route.TotalDistanceKM)
	}
}

func TestSolveSequentialDisconnectedLeg(t *testing.T) {
	// Overall connectivity exists (0<->2) but the caller-supplied order's
	// first leg (0->1) has no matrix path, which SolveSequential must
	// reject even though checkConnected's graph-wide check passes.
	m := newSet(3).link(0, 2, 50000, 5000).build()

	_, err := SolveSequential(m, locs(3))
	if !apperror.Is(err, apperror.CodeDisconnected) {
		t.Fatalf("expected CodeDisconnected, got %v", err)
	}
}
