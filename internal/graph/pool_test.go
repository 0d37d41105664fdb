package graph

import "testing"

func TestScratchPool_AcquireReleaseClears(t *testing.T) {
	pool := GetScratchPool()

	m := pool.AcquireFloatMap()
	m[1] = 42
	pool.ReleaseFloatMap(m)

	m2 := pool.AcquireFloatMap()
	if len(m2) != 0 {
		t.Errorf("expected released map to come back cleared, got %v", m2)
	}
}

func TestAcquireScratch_ReturnsEmptyMaps(t *testing.T) {
	s := AcquireScratch()
	defer s.Release()

	if len(s.Dist) != 0 || len(s.Prev) != 0 || len(s.Seen) != 0 {
		t.Errorf("expected fresh scratch maps to be empty, got Dist=%v Prev=%v Seen=%v", s.Dist, s.Prev, s.Seen)
	}

	s.Dist[1] = 1.0
	s.Prev[1] = 2
	s.Seen[1] = true
}

func TestScratchPool_ReleaseNil(t *testing.T) {
	pool := GetScratchPool()
	// Must not panic.
	pool.ReleaseFloatMap(nil)
	pool.ReleaseNodeMap(nil)
	pool.ReleaseBoolMap(nil)
}
