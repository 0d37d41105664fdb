package graph

import (
	"container/heap"
	"context"
)

// EdgeWeight extracts the scalar weight Dijkstra should minimize for an
// edge — callers pass Length for the Matrix Builder's distance pass, or
// TravelTimeS for the Isochrone Builder's cutoff pass.
type EdgeWeight func(e *Edge) float64

// pqItem is a min-heap entry ordered by distance, tie-broken by node id
// for deterministic results.
type pqItem struct {
	node NodeID
	dist float64
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].node < pq[j].node
}
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)         { *pq = append(*pq, x.(*pqItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// ShortestPaths runs single-source Dijkstra from source over g, weighting
// edges with the supplied weight function, stopping expansion of any node
// whose distance exceeds cutoff (pass Infinity for no cutoff). The
// returned Scratch's Dist/Prev maps are populated for every node reached
// within the cutoff and must be released by the caller.
//
// Cancellation is checked at each pop, satisfying the requirement that
// Dijkstra aborts at the next iteration boundary.
func ShortestPaths(ctx context.Context, g *Graph, source NodeID, weight EdgeWeight, cutoff float64) *Scratch {
	s := AcquireScratch()
	s.Dist[source] = 0

	pq := make(priorityQueue, 0, 64)
	heap.Init(&pq)
	heap.Push(&pq, &pqItem{node: source, dist: 0})

	for pq.Len() > 0 {
		select {
		case <-ctx.Done():
			return s
		default:
		}

		cur := heap.Pop(&pq).(*pqItem)
		u := cur.node

		if d, ok := s.Dist[u]; ok && cur.dist > d+Epsilon {
			continue
		}
		if cur.dist > cutoff {
			continue
		}
		s.Seen[u] = true

		for _, e := range g.Neighbors(u) {
			w := weight(e)
			nd := cur.dist + w
			if nd > cutoff {
				continue
			}
			if existing, ok := s.Dist[e.To]; !ok || nd < existing-Epsilon {
				s.Dist[e.To] = nd
				s.Prev[e.To] = u
				heap.Push(&pq, &pqItem{node: e.To, dist: nd})
			}
		}
	}

	return s
}

// PathTo reconstructs the node sequence from source to target using the
// predecessor map populated by ShortestPaths. Returns nil if target was
// never reached.
func PathTo(prev map[NodeID]NodeID, source, target NodeID) []NodeID {
	if target == source {
		return []NodeID{source}
	}
	if _, ok := prev[target]; !ok {
		return nil
	}

	path := []NodeID{target}
	cur := target
	for cur != source {
		p, ok := prev[cur]
		if !ok {
			return nil
		}
		path = append(path, p)
		cur = p
		if len(path) > 1_000_000 {
			return nil // a malformed predecessor map would cycle forever
		}
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
