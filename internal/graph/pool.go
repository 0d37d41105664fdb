package graph

import "sync"

// ScratchPool provides memory pooling for the per-source scratch maps the
// Matrix Builder and Isochrone Builder allocate once per Dijkstra run.
// Road graphs can carry tens of thousands of nodes; reusing
// these maps across the many single-source runs a matrix build performs
// noticeably cuts GC pressure under concurrent load.
type ScratchPool struct {
	floatMaps sync.Pool
	nodeMaps  sync.Pool
	boolMaps  sync.Pool
}

var globalScratchPool = &ScratchPool{
	floatMaps: sync.Pool{
		New: func() any { return make(map[NodeID]float64, 256) },
	},
	nodeMaps: sync.Pool{
		New: func() any { return make(map[NodeID]NodeID, 256) },
	},
	boolMaps: sync.Pool{
		New: func() any { return make(map[NodeID]bool, 256) },
	},
}

// GetScratchPool returns the global scratch pool.
func GetScratchPool() *ScratchPool {
	return globalScratchPool
}

// AcquireFloatMap obtains a cleared map[NodeID]float64 from the pool.
func (p *ScratchPool) AcquireFloatMap() map[NodeID]float64 {
	return p.floatMaps.Get().(map[NodeID]float64)
}

// ReleaseFloatMap clears and returns a map[NodeID]float64 to the pool.
func (p *ScratchPool) ReleaseFloatMap(m map[NodeID]float64) {
	if m == nil {
		return
	}
	clear(m)
	p.floatMaps.Put(m)
}

// AcquireNodeMap obtains a cleared map[NodeID]NodeID from the pool, used
// for Dijkstra predecessor tracking.
func (p *ScratchPool) AcquireNodeMap() map[NodeID]NodeID {
	return p.nodeMaps.Get().(map[NodeID]NodeID)
}

// ReleaseNodeMap clears and returns a map[NodeID]NodeID to the pool.
func (p *ScratchPool) ReleaseNodeMap(m map[NodeID]NodeID) {
	if m == nil {
		return
	}
	clear(m)
	p.nodeMaps.Put(m)
}

// AcquireBoolMap obtains a cleared map[NodeID]bool from the pool, used for
// visited-set tracking in cutoff Dijkstra and reachability sets.
func (p *ScratchPool) AcquireBoolMap() map[NodeID]bool {
	return p.boolMaps.Get().(map[NodeID]bool)
}

// ReleaseBoolMap clears and returns a map[NodeID]bool to the pool.
func (p *ScratchPool) ReleaseBoolMap(m map[NodeID]bool) {
	if m == nil {
		return
	}
	clear(m)
	p.boolMaps.Put(m)
}

// Scratch bundles the three scratch maps a single Dijkstra run needs and
// releases them together.
type Scratch struct {
	pool  *ScratchPool
	Dist  map[NodeID]float64
	Prev  map[NodeID]NodeID
	Seen  map[NodeID]bool
}

// AcquireScratch checks out a Dist/Prev/Seen triple from the global pool.
func AcquireScratch() *Scratch {
	p := globalScratchPool
	return &Scratch{
		pool: p,
		Dist: p.AcquireFloatMap(),
		Prev: p.AcquireNodeMap(),
		Seen: p.AcquireBoolMap(),
	}
}

// Release returns all three maps to the pool. Safe to call once; do not
// reuse the Scratch afterward.
func (s *Scratch) Release() {
	s.pool.ReleaseFloatMap(s.Dist)
	s.pool.ReleaseNodeMap(s.Prev)
	s.pool.ReleaseBoolMap(s.Seen)
}
