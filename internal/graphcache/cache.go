// Package graphcache implements the Graph Cache: a bounded
// in-memory LRU of road-network graphs over the on-disk Graph Store, with
// an in-progress set guarding against duplicate concurrent fetches and a
// bounded background prefetch queue for neighbouring regions.
//
// The cache is a value owning its own mutex, worker goroutine, and
// shutdown channel, in the same style as pkg/cache's MemoryCache but
// specialized to an LRU-of-*graph.Graph that also
// tracks in-progress fetches, which a generic byte cache has no notion of.
package graphcache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"geosvc/internal/geo"
	"geosvc/internal/graph"
	"geosvc/pkg/apperror"
	"geosvc/pkg/logger"
)

// log falls back to slog.Default when the process-wide logger has not
// been initialized (tests construct a Cache without calling logger.Init).
func log() *slog.Logger {
	if logger.Log != nil {
		return logger.Log
	}
	return slog.Default()
}

// Loader fetches a fresh Graph for a region from the upstream OSM
// provider. Implemented by internal/loader.Loader.
type Loader interface {
	Fetch(ctx context.Context, lat, lon, radiusM float64, profile geo.Profile) (*graph.Graph, error)
}

// MetricsSink receives cache lookup outcomes; nil is a valid no-op sink.
type MetricsSink interface {
	RecordGraphCacheLookup(outcome string)
	SetGraphCacheSize(n int)
	SetPrefetchQueueDepth(n int)
}

// Config sizes the cache (mirrors config.GraphConfig, kept decoupled from
// pkg/config so this package has no import on the config layer).
type Config struct {
	MaxMemoryGraphs   int
	PrefetchQueueSize int
	NearestFallbackKM float64
}

type entry struct {
	key        geo.RegionKey
	g          *graph.Graph
	accessedAt time.Time
}

// waiter is closed once the in-progress fetch for its key completes,
// letting concurrent callers for the same key block without re-fetching.
type waiter struct {
	done   chan struct{}
	result *graph.Graph
	err    error
}

// Cache is the Graph Cache. It owns its lock, its prefetch worker,
// and a shutdown signal; the lock is never exposed beyond this type's
// methods, and is always released before any disk or network I/O runs.
type Cache struct {
	cfg     Config
	store   *graph.Store
	loader  Loader
	metrics MetricsSink

	mu         sync.Mutex
	memory     map[geo.RegionKey]*entry
	inProgress map[geo.RegionKey]*waiter
	queue      chan geo.RegionKey
	queued     map[geo.RegionKey]bool

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Cache backed by store and loader, and starts its single
// background prefetch worker.
func New(cfg Config, store *graph.Store, loader Loader, metrics MetricsSink) *Cache {
	if cfg.MaxMemoryGraphs <= 0 {
		cfg.MaxMemoryGraphs = 5
	}
	if cfg.PrefetchQueueSize <= 0 {
		cfg.PrefetchQueueSize = 32
	}
	if cfg.NearestFallbackKM <= 0 {
		cfg.NearestFallbackKM = 50
	}

	c := &Cache{
		cfg:        cfg,
		store:      store,
		loader:     loader,
		metrics:    metrics,
		memory:     make(map[geo.RegionKey]*entry),
		inProgress: make(map[geo.RegionKey]*waiter),
		queue:      make(chan geo.RegionKey, cfg.PrefetchQueueSize),
		queued:     make(map[geo.RegionKey]bool),
		shutdown:   make(chan struct{}),
	}

	c.wg.Add(1)
	go c.prefetchWorker()

	return c
}

// Close stops the prefetch worker and waits for it to drain its current
// item. Safe to call once.
func (c *Cache) Close() {
	close(c.shutdown)
	c.wg.Wait()
}

// Size reports the number of graphs currently resident in memory.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.memory)
}

func (c *Cache) recordOutcome(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordGraphCacheLookup(outcome)
	}
}

// Get returns a profile-annotated Graph for the given query, or
// apperror.CodeUnavailableRegion if none could be produced. Resolution
// order: memory hit, then disk hit (promoted to
// memory), then a synchronous fetch via the Loader — with neighbouring
// regions enqueued for background prefetch on that third path.
func (c *Cache) Get(ctx context.Context, lat, lon, radiusM float64, profile geo.Profile) (*graph.Graph, error) {
	key := geo.NewRegionKey(lat, lon, radiusM, profile)

	// (1) Memory hit.
	if g, ok := c.touchMemory(key); ok {
		c.recordOutcome("memory_hit")
		return g, nil
	}

	// Another goroutine may already be fetching this exact key; join it
	// rather than racing a second fetch, unless a nearby graph can serve
	// as an immediate provisional answer.
	c.mu.Lock()
	if w, ok := c.inProgress[key]; ok {
		if g, ok := c.nearestWithinLocked(key, profile); ok {
			c.mu.Unlock()
			c.recordOutcome("nearest_fallback")
			return g, nil
		}
		c.mu.Unlock()
		return c.awaitWaiter(ctx, w)
	}
	c.mu.Unlock()

	// (2) Disk hit via the Store. Disk I/O must not run under the lock.
	if c.store.Has(key.String()) {
		g, err := c.store.Load(key.String())
		if err == nil {
			c.promote(key, g)
			c.recordOutcome("disk_hit")
			return g, nil
		}
		// A corrupted file was already deleted by Store.Load; fall
		// through to a synchronous fetch as if this were a miss.
	}

	// (3) Synchronous fetch, with an in-progress marker so concurrent
	// requests for the same key join rather than duplicate the fetch.
	w := &waiter{done: make(chan struct{})}
	c.mu.Lock()
	if existing, ok := c.inProgress[key]; ok {
		// Lost a race between the disk check and here; join the winner.
		c.mu.Unlock()
		return c.awaitWaiter(ctx, existing)
	}
	c.inProgress[key] = w
	c.mu.Unlock()

	g, err := c.loader.Fetch(ctx, lat, lon, radiusM, profile)

	c.mu.Lock()
	delete(c.inProgress, key)
	c.mu.Unlock()

	if err != nil {
		w.err = apperror.Wrap(err, apperror.CodeUnavailableRegion,
			fmt.Sprintf("no graph available for region %s", key))
		close(w.done)
		c.recordOutcome("miss")
		return nil, w.err
	}

	if saveErr := c.store.Save(key.String(), g); saveErr != nil {
		log().Warn("graph cache: failed to persist fetched graph", "key", key.String(), "error", saveErr)
	}

	c.promote(key, g)
	c.enqueueNeighbors(key)

	w.result = g
	close(w.done)

	c.recordOutcome("miss")
	return g, nil
}

func (c *Cache) awaitWaiter(ctx context.Context, w *waiter) (*graph.Graph, error) {
	select {
	case <-w.done:
		return w.result, w.err
	case <-ctx.Done():
		return nil, apperror.Wrap(ctx.Err(), apperror.CodeTimeout, "timed out waiting for in-progress graph fetch")
	}
}

// touchMemory returns the graph for key if resident, refreshing its LRU
// timestamp.
func (c *Cache) touchMemory(key geo.RegionKey) (*graph.Graph, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.memory[key]
	if !ok {
		return nil, false
	}
	e.accessedAt = time.Now()
	return e.g, true
}

// nearestWithinLocked finds the geographically nearest memory-resident
// graph for the same profile within the configured fallback radius.
// Caller must hold c.mu.
func (c *Cache) nearestWithinLocked(key geo.RegionKey, profile geo.Profile) (*graph.Graph, bool) {
	var (
		best     *entry
		bestDist = c.cfg.NearestFallbackKM
	)
	for k, e := range c.memory {
		if k.Profile != profile {
			continue
		}
		d := haversineKM(key.LatBucket, key.LonBucket, k.LatBucket, k.LonBucket)
		if d <= bestDist {
			bestDist = d
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.g, true
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.Haversine(lat1, lon1, lat2, lon2) / 1000
}

// promote inserts g into the memory LRU under key, evicting the
// oldest-accessed entry if the cache is at capacity.
func (c *Cache) promote(key geo.RegionKey, g *graph.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.memory[key]; !ok {
		for len(c.memory) >= c.cfg.MaxMemoryGraphs {
			c.evictLRULocked()
		}
	}
	c.memory[key] = &entry{key: key, g: g, accessedAt: time.Now()}

	if c.metrics != nil {
		c.metrics.SetGraphCacheSize(len(c.memory))
	}
}

// evictLRULocked removes the least-recently-accessed entry, tie-breaking
// on oldest access timestamp. Caller must hold c.mu.
func (c *Cache) evictLRULocked() {
	var oldestKey geo.RegionKey
	var oldestAt time.Time
	first := true
	for k, e := range c.memory {
		if first || e.accessedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.accessedAt
			first = false
		}
	}
	if !first {
		delete(c.memory, oldestKey)
	}
}

// enqueueNeighbors pushes the 8 neighbouring RegionKeys onto the prefetch
// queue, skipping any that are already cached, in-progress, or already
// queued. A full queue is silently tolerated.
func (c *Cache) enqueueNeighbors(key geo.RegionKey) {
	for _, n := range key.NeighborKeys() {
		c.mu.Lock()
		_, cached := c.memory[n]
		_, inProg := c.inProgress[n]
		alreadyQueued := c.queued[n]
		if cached || inProg || alreadyQueued {
			c.mu.Unlock()
			continue
		}
		select {
		case c.queue <- n:
			c.queued[n] = true
			if c.metrics != nil {
				c.metrics.SetPrefetchQueueDepth(len(c.queue))
			}
			c.mu.Unlock()
		default:
			// Queue full: tolerated silently.
			c.mu.Unlock()
		}
	}
}

// prefetchWorker drains the prefetch queue one region at a time, fetching
// and persisting each without ever holding c.mu during I/O. Failures are
// logged and the worker continues.
func (c *Cache) prefetchWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.shutdown:
			return
		case key := <-c.queue:
			c.mu.Lock()
			delete(c.queued, key)
			if _, cached := c.memory[key]; cached {
				c.mu.Unlock()
				continue
			}
			if _, inProg := c.inProgress[key]; inProg {
				c.mu.Unlock()
				continue
			}
			w := &waiter{done: make(chan struct{})}
			c.inProgress[key] = w
			c.mu.Unlock()

			c.runPrefetch(key, w)

			if c.metrics != nil {
				c.metrics.SetPrefetchQueueDepth(len(c.queue))
			}
		}
	}
}

func (c *Cache) runPrefetch(key geo.RegionKey, w *waiter) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	radiusM := float64(key.RadiusBucket) * 1000
	if radiusM <= 0 {
		radiusM = 1000
	}

	g, err := c.loader.Fetch(ctx, key.LatBucket, key.LonBucket, radiusM, key.Profile)

	c.mu.Lock()
	delete(c.inProgress, key)
	c.mu.Unlock()

	if err != nil {
		log().Warn("graph cache: prefetch failed", "key", key.String(), "error", err)
		w.err = err
		close(w.done)
		return
	}

	if err := c.store.Save(key.String(), g); err != nil {
		log().Warn("graph cache: prefetch failed to persist graph", "key", key.String(), "error", err)
	}

	c.promote(key, g)
	w.result = g
	close(w.done)
}

// ClearMemory drops every graph currently resident in memory, used by the
// cache introspection endpoint. Disk copies are
// untouched.
func (c *Cache) ClearMemory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory = make(map[geo.RegionKey]*entry)
	if c.metrics != nil {
		c.metrics.SetGraphCacheSize(0)
	}
}

// Status is a snapshot for the cache introspection endpoint.
type Status struct {
	ResidentRegions int      `json:"resident_regions"`
	MaxRegions      int      `json:"max_regions"`
	PrefetchQueued  int      `json:"prefetch_queued"`
	InProgress      int      `json:"in_progress"`
	ResidentKeys    []string `json:"resident_keys"`
}

// Status returns a snapshot of the cache's current occupancy.
func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.memory))
	for k := range c.memory {
		keys = append(keys, k.String())
	}

	return Status{
		ResidentRegions: len(c.memory),
		MaxRegions:      c.cfg.MaxMemoryGraphs,
		PrefetchQueued:  len(c.queue),
		InProgress:      len(c.inProgress),
		ResidentKeys:    keys,
	}
}

// Preload warms the cache and store for an explicit region — used by the
// `/api/isochrone/preload` endpoint and for the country-wide graph
// caching supplement, which shares
// this same in-progress set rather than a second tracking structure.
func (c *Cache) Preload(ctx context.Context, lat, lon, radiusM float64, profile geo.Profile) error {
	_, err := c.Get(ctx, lat, lon, radiusM, profile)
	return err
}

// PreloadCountry warms the store under a country-wide key
// ("<country_name_with_underscores>") by fetching one large region
// centered on the country's centroid. The fetch goes through Get, so it
// shares the RegionKey in-progress set rather than a second tracking
// structure; the resulting graph is additionally persisted under the
// country key so later preloads short-circuit on a disk hit.
func (c *Cache) PreloadCountry(ctx context.Context, name string, lat, lon, radiusM float64, profile geo.Profile) error {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	if key == "" {
		return apperror.New(apperror.CodeBadRequest, "country name is required")
	}
	if c.store.Has(key) {
		return nil
	}

	g, err := c.Get(ctx, lat, lon, radiusM, profile)
	if err != nil {
		return err
	}
	return c.store.Save(key, g)
}
