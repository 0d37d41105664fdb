package graphcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"geosvc/internal/geo"
	"geosvc/internal/graph"
)

type fakeLoader struct {
	mu       sync.Mutex
	calls    map[string]int
	delay    time.Duration
	fail     bool
	building func(lat, lon float64) *graph.Graph
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{calls: make(map[string]int)}
}

func (f *fakeLoader) Fetch(ctx context.Context, lat, lon, radiusM float64, profile geo.Profile) (*graph.Graph, error) {
	f.mu.Lock()
	f.calls[fmt.Sprintf("%.3f_%.3f", lat, lon)]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail {
		return nil, errors.New("upstream exploded")
	}

	g := graph.New(profile)
	g.AddNode(&graph.Node{ID: 1, Coord: geo.Coordinate{Lat: lat, Lng: lon}})
	g.AddNode(&graph.Node{ID: 2, Coord: geo.Coordinate{Lat: lat + 0.01, Lng: lon}})
	g.AddEdge(&graph.Edge{From: 1, To: 2, Length: 100, SpeedKPH: 50, TravelTimeS: 10})
	return g, nil
}

func (f *fakeLoader) callCount(lat, lon float64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[fmt.Sprintf("%.3f_%.3f", lat, lon)]
}

func newTestStore(t *testing.T) *graph.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "graphcache-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	store, err := graph.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestCache_MemoryHitAvoidsRefetch(t *testing.T) {
	loader := newFakeLoader()
	c := New(Config{MaxMemoryGraphs: 5}, newTestStore(t), loader, nil)
	defer c.Close()

	ctx := context.Background()
	g1, err := c.Get(ctx, 41.0, 21.0, 5000, geo.ProfileDriving)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	g2, err := c.Get(ctx, 41.0, 21.0, 5000, geo.ProfileDriving)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g1 != g2 {
		t.Error("second Get for the same region should be a memory hit returning the same Graph instance")
	}
	if loader.callCount(41.0, 21.0) != 1 {
		t.Errorf("loader should be called exactly once, got %d", loader.callCount(41.0, 21.0))
	}
}

func TestCache_DiskHitPromotesToMemoryWithoutRefetch(t *testing.T) {
	loader := newFakeLoader()
	store := newTestStore(t)
	c := New(Config{MaxMemoryGraphs: 5}, store, loader, nil)
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Get(ctx, 41.0, 21.0, 5000, geo.ProfileDriving); err != nil {
		t.Fatalf("Get: %v", err)
	}

	c.ClearMemory()
	if c.Size() != 0 {
		t.Fatalf("ClearMemory should empty the in-memory LRU")
	}

	if _, err := c.Get(ctx, 41.0, 21.0, 5000, geo.ProfileDriving); err != nil {
		t.Fatalf("Get after ClearMemory: %v", err)
	}
	if loader.callCount(41.0, 21.0) != 1 {
		t.Errorf("a disk hit must not trigger a second fetch, loader called %d times", loader.callCount(41.0, 21.0))
	}
}

func TestCache_LRUEvictionBound(t *testing.T) {
	loader := newFakeLoader()
	c := New(Config{MaxMemoryGraphs: 2}, newTestStore(t), loader, nil)
	defer c.Close()

	ctx := context.Background()
	regions := [][2]float64{{40.0, 20.0}, {41.0, 21.0}, {42.0, 22.0}}
	for _, r := range regions {
		if _, err := c.Get(ctx, r[0], r[1], 5000, geo.ProfileDriving); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}

	if c.Size() > 2 {
		t.Errorf("memory cache size %d exceeds MaxMemoryGraphs=2", c.Size())
	}
}

func TestCache_PrefetchEnqueuesNeighbors(t *testing.T) {
	loader := newFakeLoader()
	loader.delay = 5 * time.Millisecond
	c := New(Config{MaxMemoryGraphs: 64, PrefetchQueueSize: 16}, newTestStore(t), loader, nil)
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Get(ctx, 40.0, 20.0, 5000, geo.ProfileDriving); err != nil {
		t.Fatalf("Get: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Size() > 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected at least one neighbor region to have been prefetched into memory")
}

func TestCache_ConcurrentRequestsForSameKeyFetchOnce(t *testing.T) {
	loader := newFakeLoader()
	loader.delay = 100 * time.Millisecond
	c := New(Config{MaxMemoryGraphs: 5}, newTestStore(t), loader, nil)
	defer c.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(ctx, 40.5, 20.5, 5000, geo.ProfileDriving); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 10 {
		t.Errorf("expected all 10 concurrent callers to succeed, got %d", successes.Load())
	}
	if loader.callCount(40.5, 20.5) != 1 {
		t.Errorf("concurrent requests for the same RegionKey must fetch at most once, got %d calls", loader.callCount(40.5, 20.5))
	}
}

func TestCache_UnavailableRegionOnLoaderFailure(t *testing.T) {
	loader := newFakeLoader()
	loader.fail = true
	c := New(Config{MaxMemoryGraphs: 5}, newTestStore(t), loader, nil)
	defer c.Close()

	_, err := c.Get(context.Background(), 10.0, 10.0, 5000, geo.ProfileDriving)
	if err == nil {
		t.Fatal("expected an error when the loader fails")
	}
}

func TestCache_Status(t *testing.T) {
	loader := newFakeLoader()
	c := New(Config{MaxMemoryGraphs: 5}, newTestStore(t), loader, nil)
	defer c.Close()

	if _, err := c.Get(context.Background(), 40.0, 20.0, 5000, geo.ProfileDriving); err != nil {
		t.Fatalf("Get: %v", err)
	}

	status := c.Status()
	if status.ResidentRegions != 1 {
		t.Errorf("ResidentRegions = %d, want 1", status.ResidentRegions)
	}
	if status.MaxRegions != 5 {
		t.Errorf("MaxRegions = %d, want 5", status.MaxRegions)
	}
}

func TestCache_PreloadCountryStoresCountryKey(t *testing.T) {
	loader := newFakeLoader()
	store := newTestStore(t)
	c := New(Config{MaxMemoryGraphs: 5}, store, loader, nil)
	defer c.Close()

	if err := c.PreloadCountry(context.Background(), "North Macedonia", 41.6, 21.7, 50000, geo.ProfileDriving); err != nil {
		t.Fatalf("PreloadCountry: %v", err)
	}
	if !store.Has("north_macedonia") {
		t.Error("expected a graph persisted under the country-wide key")
	}

	// A second preload must short-circuit on the disk copy.
	if err := c.PreloadCountry(context.Background(), "North Macedonia", 41.6, 21.7, 50000, geo.ProfileDriving); err != nil {
		t.Fatalf("PreloadCountry (second): %v", err)
	}
	if loader.callCount(41.6, 21.7) != 1 {
		t.Errorf("expected a single fetch across repeated country preloads, got %d", loader.callCount(41.6, 21.7))
	}
}
