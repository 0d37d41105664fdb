// Router wiring: a small value holding every registered handler, with
// one RegisterRoutes method that groups routes and attaches the
// api_kind-scoped usage-tracking middleware
// at registration time rather than inside each handler body.
package httpapi

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"geosvc/internal/usage"
)

// ServerConfig carries the echo HTTP server's own knobs (distinct from
// any component Config), mirroring config.HTTPConfig.
type ServerConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSEnabled     bool
	AllowedOrigins  []string
}

// NewServer builds an *echo.Echo wired with the Handler's routes, the
// centralized error handler, request validation, and the
// recover/logger/CORS middleware stack (banner hidden, Recover, CORS,
// the structured request logger).
func NewServer(h *Handler, cfg ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = HandleError

	if cfg.ReadTimeout > 0 {
		e.Server.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		e.Server.WriteTimeout = cfg.WriteTimeout
	}

	e.Use(echomw.Recover())
	e.Use(requestID)
	e.Use(requestLogger)
	e.Use(h.httpMetrics)
	if cfg.CORSEnabled {
		origins := cfg.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: origins}))
	}

	h.RegisterRoutes(e)
	return e
}

// RegisterRoutes sets up the full route table. Each /api group is wrapped
// in the bearer-JWT authenticate middleware (/health and the modes list
// are not), and the compute routes carry the usage tracker (the cache and
// preload routes do not); analytics extraction is dispatched on the
// api_kind value bound here at route registration.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/api/directions/modes", h.Modes)

	directions := e.Group("/api/directions", h.authenticate)
	directions.POST("/route", h.DirectionsRoute, h.track(usage.KindRouting))
	directions.POST("/simple", h.DirectionsSimple, h.track(usage.KindRouting))
	directions.POST("/route_pdp", h.DirectionsRoutePDP, h.track(usage.KindRouting))

	matrixGroup := e.Group("/api/matrix", h.authenticate)
	matrixGroup.POST("/calculate", h.MatrixCalculate, h.track(usage.KindMatrix))

	isochroneGroup := e.Group("/api/isochrone", h.authenticate)
	isochroneGroup.POST("/calculate", h.IsochroneCalculate, h.track(usage.KindIsochrone))
	isochroneGroup.POST("/geojson", h.IsochroneGeoJSON, h.track(usage.KindIsochrone))
	isochroneGroup.POST("/stats", h.IsochroneStats, h.track(usage.KindIsochrone))
	isochroneGroup.POST("/compare", h.IsochroneCompare, h.track(usage.KindIsochrone))
	isochroneGroup.POST("/batch", h.IsochroneBatch, h.track(usage.KindIsochrone))
	isochroneGroup.GET("/cache/status", h.CacheStatus)
	isochroneGroup.POST("/cache/clear", h.CacheClear)
	isochroneGroup.POST("/preload", h.Preload)
}
