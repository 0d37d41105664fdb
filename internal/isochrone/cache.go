package isochrone

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"geosvc/internal/geo"
	"geosvc/pkg/cache"
)

// CacheKey is the immutable tuple the isochrone result memoization is
// keyed by: rounded center, sorted travel_times tuple, profile, and
// tolerance. Centers are rounded to the
// same 3-decimal bucket the Graph Cache's RegionKey uses so that nearby
// requests which would resolve to the same underlying graph also share a
// cached isochrone.
type CacheKey struct {
	LatBucket       float64
	LngBucket       float64
	Cutoffs         []float64
	Profile         geo.Profile
	ToleranceMeters float64
}

// NewCacheKey buckets a raw request into a CacheKey, sorting cutoffs so
// that [5,10,15] and [15,5,10] collide on the same entry.
func NewCacheKey(center geo.Coordinate, cutoffsMinutes []float64, profile geo.Profile, toleranceMeters float64) CacheKey {
	sorted := append([]float64(nil), cutoffsMinutes...)
	sort.Float64s(sorted)
	return CacheKey{
		LatBucket:       math.Round(center.Lat*1000) / 1000,
		LngBucket:       math.Round(center.Lng*1000) / 1000,
		Cutoffs:         sorted,
		Profile:         profile,
		ToleranceMeters: toleranceMeters,
	}
}

// String renders a stable cache key string for pkg/cache's byte-keyed
// Cache interface.
func (k CacheKey) String() string {
	return fmt.Sprintf("isochrone:%.3f:%.3f:%s:%v:%.1f", k.LatBucket, k.LngBucket, k.Profile, k.Cutoffs, k.ToleranceMeters)
}

// ResultCache is a best-effort memoization layer over Builder.Build,
// reifying the source's process-wide `calculate_isochrone_cached`
// memoization as an explicit bounded cache rather than
// an implicit function-level one. It is not authoritative: a miss always
// falls back to a real Build, and entries may be evicted or expire at any
// time without affecting correctness.
type ResultCache struct {
	backing cache.Cache
	ttl     time.Duration
}

// NewResultCache wraps an existing byte cache (pkg/cache.MemoryCache or
// RedisCache) for isochrone results. A nil backing cache is valid and
// makes every lookup miss, effectively disabling memoization.
func NewResultCache(backing cache.Cache, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResultCache{backing: backing, ttl: ttl}
}

// Get returns a previously cached Result for key, if present and not
// expired.
func (c *ResultCache) Get(ctx context.Context, key CacheKey) (*Result, bool) {
	if c == nil || c.backing == nil {
		return nil, false
	}
	raw, err := c.backing.Get(ctx, key.String())
	if err != nil || raw == nil {
		return nil, false
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}

// Set stores result under key, best-effort; a serialization or backend
// failure is silently ignored since this cache is never authoritative.
func (c *ResultCache) Set(ctx context.Context, key CacheKey, result *Result) {
	if c == nil || c.backing == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = c.backing.Set(ctx, key.String(), raw, c.ttl)
}
