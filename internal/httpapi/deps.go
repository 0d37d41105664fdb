// Package httpapi implements the JSON REST surface: echo routes,
// request validation, a centralized error handler, and the JWT/Usage
// Tracker middleware chain, wired over internal/graphcache,
// internal/matrix, internal/solver, and internal/isochrone.
//
// Handlers are echo/v4 functions bound to a small per-handler
// dependency struct; errors flow through a shared response envelope and
// a centralized echo.HTTPErrorHandler.
package httpapi

import (
	"context"
	"log/slog"

	"geosvc/internal/geo"
	"geosvc/internal/graph"
	"geosvc/internal/graphcache"
	"geosvc/internal/isochrone"
	"geosvc/internal/matrix"
	"geosvc/internal/usage"
	"geosvc/pkg/metrics"
	"geosvc/pkg/passhash"
)

// GraphSource is the subset of *graphcache.Cache the HTTP layer needs,
// narrowed so handlers and tests depend on an interface rather than the
// concrete cache type.
type GraphSource interface {
	Get(ctx context.Context, lat, lon, radiusM float64, profile geo.Profile) (*graph.Graph, error)
	Status() graphcache.Status
	ClearMemory()
	Preload(ctx context.Context, lat, lon, radiusM float64, profile geo.Profile) error
	PreloadCountry(ctx context.Context, name string, lat, lon, radiusM float64, profile geo.Profile) error
}

// Deps bundles every collaborator the HTTP handlers call into. All fields
// are required except Tracker, JWT, and Metrics, which may be nil to run
// with usage tracking, authentication, and/or instrumentation disabled
// (e.g. in tests), and Logger, which NewHandler defaults when nil.
type Deps struct {
	Graphs    GraphSource
	Matrix    *matrix.Builder
	Isochrone *isochrone.Builder
	Tracker   *usage.Tracker
	JWT       *passhash.JWTManager
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Handler holds the dependencies every route handler closes over.
type Handler struct {
	deps     Deps
	requests *metrics.RequestTracker
}

// NewHandler constructs a Handler. A nil Logger falls back to slog.Default().
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handler{deps: deps}
	if deps.Metrics != nil {
		h.requests = metrics.NewRequestTracker(deps.Metrics.HTTPRequestsInFlight)
	}
	return h
}
