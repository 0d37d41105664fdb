// Package solver implements the Route Solver: nearest-neighbor TSP
// over an open tour, and its pickup-before-delivery-constrained PDP
// variant with a precedence-safe fallback step.
//
// Both modes share one greedy frontier (closest unvisited node by
// matrix distance, smaller-index tie-break) parameterized by an
// "is this candidate selectable right now" predicate, so the
// unconstrained TSP and the precedence-constrained PDP run the same
// loop.
package solver

import (
	"fmt"

	"geosvc/internal/geo"
	"geosvc/internal/matrix"
	"geosvc/pkg/apperror"
)

// Location is one stop in a route, carrying only what the output needs to
// render.
type Location struct {
	Label string
	Coord geo.Coordinate
}

// PDPPair associates a pickup location index with its paired delivery
// index, both indices into the Solve input's locations/matrix.
type PDPPair struct {
	PickupIndex   int
	DeliveryIndex int
}

// Segment describes one leg of the emitted route.
type Segment struct {
	From          string
	To            string
	DistanceKM    float64
	DurationS     float64
	DurationHuman string
}

// Route is the Route Solver's output for both TSP and PDP modes.
type Route struct {
	Order           []int
	Labels          []string
	Coordinates     []geo.Coordinate
	TotalDistanceKM float64
	TotalTimeS      float64
	TotalTimeHuman  string
	Segments        []Segment
}

// fallbackSpeedKPH and the congestion factor applied to the PDP fallback
// step's great-circle estimate.
const (
	fallbackSpeedKPH   = 20.0
	fallbackCongestion = 1.4
)

// SolveTSP computes an open nearest-neighbor tour starting at index 0
// over the given matrix/locations. The tour is open: it does not return
// to the start.
func SolveTSP(m *matrix.Set, locations []Location) (*Route, error) {
	if err := checkConnected(m); err != nil {
		return nil, err
	}
	order, err := greedyOrder(m, len(locations), nil)
	if err != nil {
		return nil, err
	}
	return buildRoute(m, locations, order), nil
}

// SolveSequential builds a Route that visits locations in the exact order
// given, without any nearest-neighbor reordering — used by callers that
// only want the matrix-derived cost of a caller-supplied waypoint order.
func SolveSequential(m *matrix.Set, locations []Location) (*Route, error) {
	if err := checkConnected(m); err != nil {
		return nil, err
	}
	order := make([]int, len(locations))
	for i := range order {
		order[i] = i
	}
	for i := 1; i < len(order); i++ {
		if m.Paths[order[i-1]][order[i]] == nil {
			return nil, apperror.ErrDisconnected
		}
	}
	return buildRoute(m, locations, order), nil
}

// SolvePDP computes a precedence-constrained nearest-neighbor tour
// starting at index 0, where each PDPPair's delivery index only becomes
// selectable once its pickup index has been visited.
func SolvePDP(m *matrix.Set, locations []Location, pairs []PDPPair) (*Route, error) {
	if err := checkConnected(m); err != nil {
		return nil, err
	}

	deliveryToPickup := make(map[int]int, len(pairs))
	for _, p := range pairs {
		deliveryToPickup[p.DeliveryIndex] = p.PickupIndex
	}

	selectable := func(candidate int, visited []bool) bool {
		pickup, isDelivery := deliveryToPickup[candidate]
		if !isDelivery {
			return true
		}
		return visited[pickup]
	}

	order, err := greedyOrder(m, len(locations), selectable)
	if err != nil {
		return nil, err
	}

	// Re-walk the order to confirm precedence and price each hop: hops
	// with a matrix path use the matrix, hops without one use a fixed
	// great-circle estimate at the PDP fallback speed.
	return buildPDPRoute(m, locations, order, deliveryToPickup)
}

// greedyOrder runs the shared nearest-neighbor frontier: starting from
// index 0, repeatedly pick the closest unvisited node (by distance,
// smaller index breaking ties) for which selectable (if non-nil) returns
// true. When no candidate is selectable, the smallest-index unvisited
// node is forced; that node has itself failed selectable, so a forced
// step returns InconsistentPDP instead of breaking precedence.
func greedyOrder(m *matrix.Set, n int, selectable func(candidate int, visited []bool) bool) ([]int, error) {
	visited := make([]bool, n)
	order := make([]int, 0, n)

	current := 0
	visited[0] = true
	order = append(order, 0)

	for len(order) < n {
		next, found := -1, false
		bestDist := 0.0

		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			if selectable != nil && !selectable(j, visited) {
				continue
			}
			d := m.Distances[current][j]
			if !found || d < bestDist || (d == bestDist && j < next) {
				next, bestDist, found = j, d, true
			}
		}

		if !found {
			// Fallback step: force-select the smallest-index
			// unvisited node regardless of selectable.
			for j := 0; j < n; j++ {
				if !visited[j] {
					next, found = j, true
					break
				}
			}
		}

		if !found {
			break
		}

		if selectable != nil && !selectable(next, visited) {
			return nil, apperror.ErrInconsistentPDP.WithDetails("forced_index", next)
		}

		visited[next] = true
		order = append(order, next)
		current = next
	}

	return order, nil
}

// checkConnected detects a fully disconnected input: if no off-diagonal
// pair in m has a matrix path, the requested locations share no
// connectivity at all.
func checkConnected(m *matrix.Set) error {
	n := len(m.NodeIDs)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if m.Paths[i][j] != nil {
				return nil
			}
		}
	}
	return apperror.ErrDisconnected
}

// buildRoute assembles the TSP output from a visit order, reading segment
// costs straight from the matrix.
func buildRoute(m *matrix.Set, locations []Location, order []int) *Route {
	r := &Route{Order: order}
	var totalDistM, totalTimeS float64

	for k, idx := range order {
		r.Labels = append(r.Labels, locations[idx].Label)
		r.Coordinates = append(r.Coordinates, locations[idx].Coord)

		if k == 0 {
			continue
		}
		from, to := order[k-1], idx
		distM := m.Distances[from][to]
		timeS := m.Times[from][to]
		totalDistM += distM
		totalTimeS += timeS

		r.Segments = append(r.Segments, Segment{
			From:          locations[from].Label,
			To:            locations[to].Label,
			DistanceKM:    distM / 1000,
			DurationS:     timeS,
			DurationHuman: humanDuration(timeS),
		})
	}

	r.TotalDistanceKM = totalDistM / 1000
	r.TotalTimeS = totalTimeS
	r.TotalTimeHuman = humanDuration(totalTimeS)
	return r
}

// buildPDPRoute is like buildRoute but re-checks pickup-before-delivery
// precedence along order and prices every hop that has no matrix path
// via great-circle distance at the fallback speed instead of the matrix.
func buildPDPRoute(m *matrix.Set, locations []Location, order []int, deliveryToPickup map[int]int) (*Route, error) {
	visited := make(map[int]bool)
	visited[order[0]] = true

	r := &Route{Order: order}
	var totalDistM, totalTimeS float64

	for k, idx := range order {
		r.Labels = append(r.Labels, locations[idx].Label)
		r.Coordinates = append(r.Coordinates, locations[idx].Coord)

		if k > 0 {
			if pickup, isDelivery := deliveryToPickup[idx]; isDelivery && !visited[pickup] {
				return nil, apperror.ErrInconsistentPDP.WithDetails("delivery_index", idx).WithDetails("pickup_index", pickup)
			}
		}
		visited[idx] = true

		if k == 0 {
			continue
		}
		from, to := order[k-1], idx

		var distM, timeS float64
		if m.Paths[from][to] != nil || from == to {
			distM = m.Distances[from][to]
			timeS = m.Times[from][to]
		} else {
			// This hop had no matrix-reachable path: great-circle distance
			// at the fallback speed, with no intersection penalty.
			distM = geo.Haversine(locations[from].Coord.Lat, locations[from].Coord.Lng, locations[to].Coord.Lat, locations[to].Coord.Lng)
			timeS = (distM / (fallbackSpeedKPH * 1000 / 3600)) * fallbackCongestion
		}

		totalDistM += distM
		totalTimeS += timeS
		r.Segments = append(r.Segments, Segment{
			From:          locations[from].Label,
			To:            locations[to].Label,
			DistanceKM:    distM / 1000,
			DurationS:     timeS,
			DurationHuman: humanDuration(timeS),
		})
	}

	r.TotalDistanceKM = totalDistM / 1000
	r.TotalTimeS = totalTimeS
	r.TotalTimeHuman = humanDuration(totalTimeS)
	return r, nil
}

// humanDuration renders seconds as "HhMmSs" when the duration spans at
// least an hour, else "MmSs".
func humanDuration(seconds float64) string {
	total := int64(seconds + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	return fmt.Sprintf("%dm%ds", m, s)
}
