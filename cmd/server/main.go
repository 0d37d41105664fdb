// Command server is the entry point for geosvc: routing, matrix,
// isochrone, and graph-cache introspection endpoints over the Graph
// Store/Cache/Network Loader/Matrix Builder/Route Solver/Isochrone
// Builder chain, fronted by the usage-tracking middleware.
//
// Startup loads config, initializes the logger, builds the dependency
// chain, starts the echo server in a goroutine, blocks on
// SIGINT/SIGTERM, and shuts down with a bounded timeout.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"geosvc/internal/graph"
	"geosvc/internal/graphcache"
	"geosvc/internal/httpapi"
	"geosvc/internal/isochrone"
	"geosvc/internal/loader"
	"geosvc/internal/matrix"
	"geosvc/internal/usage"
	"geosvc/pkg/cache"
	"geosvc/pkg/config"
	"geosvc/pkg/database"
	"geosvc/pkg/logger"
	"geosvc/pkg/metrics"
	"geosvc/pkg/passhash"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("error")
		logger.Log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	logger.Log.Info("starting geosvc",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	m := metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	m.SetServiceInfo(cfg.App.Version, cfg.App.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// -------------------------------------------------------------------
	// Graph Store / Graph Cache / Network Loader
	// -------------------------------------------------------------------
	store, err := graph.NewStore(cfg.Graph.StoreDir)
	if err != nil {
		logger.Log.Error("failed to open graph store", "error", err)
		os.Exit(1)
	}

	if cfg.Graph.StaleAfter > 0 {
		if removed, rmErr := store.RemoveOlderThan(cfg.Graph.StaleAfter); rmErr != nil {
			logger.Log.Warn("failed to sweep stale graph files", "error", rmErr)
		} else if removed > 0 {
			logger.Log.Info("removed stale graph files", "count", removed)
		}
	}

	networkLoader := loader.New(loader.Config{
		UpstreamURL:    cfg.Loader.UpstreamURL,
		RequestTimeout: cfg.Loader.RequestTimeout,
		MaxRetries:     cfg.Loader.MaxRetries,
		RetryBackoff:   cfg.Loader.RetryBackoff,
		MaxGraphNodes:  cfg.Loader.MaxGraphNodes,
	}, nil)

	graphCache := graphcache.New(graphcache.Config{
		MaxMemoryGraphs:   cfg.Graph.MaxCachedRegions,
		PrefetchQueueSize: cfg.Graph.PrefetchQueueSize,
		NearestFallbackKM: cfg.Graph.NearestFallbackKM,
	}, store, networkLoader, m)
	defer graphCache.Close()

	// -------------------------------------------------------------------
	// Matrix Builder / Isochrone Builder
	// -------------------------------------------------------------------
	matrixBuilder := matrix.New(matrix.Config{
		IntersectionPenaltySeconds: cfg.Matrix.IntersectionPenaltySeconds,
		CongestionFactor:           cfg.Matrix.CongestionFactor,
		StartupOverheadSeconds:     cfg.Matrix.StartupOverheadSeconds,
		FallbackSpeedKPH:           cfg.Matrix.FallbackSpeedKPH,
	}, m)

	var resultCache *isochrone.ResultCache
	if cfg.Cache.Enabled {
		byteCache, cacheErr := cache.New(cache.FromConfig(&cfg.Cache))
		if cacheErr != nil {
			logger.Log.Warn("failed to create isochrone result cache, continuing without it", "error", cacheErr)
		} else {
			resultCache = isochrone.NewResultCache(byteCache, cfg.Isochrone.ResultCacheTTL)
		}
	}

	isochroneBuilder := isochrone.New(isochrone.Config{
		MinFetchRadiusMeters:   cfg.Isochrone.MinFetchRadiusMeters,
		RadiusSafetyFactor:     cfg.Isochrone.RadiusSafetyFactor,
		SubgraphNodeThreshold:  cfg.Isochrone.SubgraphNodeThreshold,
		DefaultToleranceMeters: cfg.Isochrone.DefaultToleranceMeters,
	}, graphCache, m, resultCache)

	// -------------------------------------------------------------------
	// Usage Tracker — persistence goes through pkg/database's typed DB
	// port.
	// -------------------------------------------------------------------
	var tracker *usage.Tracker
	if cfg.Usage.Enabled {
		db, dbErr := database.NewPostgresDB(ctx, &cfg.Database)
		if dbErr != nil {
			logger.Log.Error("failed to connect to usage persistence database", "error", dbErr)
			os.Exit(1)
		}
		defer db.Close()

		var dedup cache.Cache
		if cfg.Usage.AnalyticsDedupe && cfg.Cache.Enabled {
			if d, dedupErr := cache.New(cache.FromConfig(&cfg.Cache)); dedupErr != nil {
				logger.Log.Warn("failed to create analytics dedupe cache, continuing without it", "error", dedupErr)
			} else {
				dedup = d
			}
		}

		tracker = usage.New(usage.Config{
			Enabled:         cfg.Usage.Enabled,
			PersistOnlyOK:   cfg.Usage.PersistOnlyOK,
			RequireIdentity: cfg.Usage.RequireIdentity,
			AnalyticsDedupe: cfg.Usage.AnalyticsDedupe,
		}, usage.NewPostgresRepository(db), dedup, logger.Log)
	}

	// -------------------------------------------------------------------
	// Auth — bearer JWT validation at the HTTP boundary. A blank secret leaves JWT nil, which
	// disables authentication entirely (local/dev runs, tests).
	// -------------------------------------------------------------------
	var jwtManager *passhash.JWTManager
	if cfg.Auth.SecretKey != "" {
		jwtManager = passhash.NewJWTManager(&passhash.JWTConfig{
			SecretKey: cfg.Auth.SecretKey,
			Issuer:    cfg.Auth.Issuer,
		})
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		Graphs:    graphCache,
		Matrix:    matrixBuilder,
		Isochrone: isochroneBuilder,
		Tracker:   tracker,
		JWT:       jwtManager,
		Metrics:   m,
		Logger:    logger.Log,
	})

	e := httpapi.NewServer(handler, httpapi.ServerConfig{
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		CORSEnabled:     cfg.HTTP.CORS.Enabled,
		AllowedOrigins:  cfg.HTTP.CORS.AllowedOrigins,
	})

	if cfg.Metrics.Enabled {
		go func() {
			logger.Log.Info("metrics listening", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metrics.StartMetricsServer(cfg.Metrics.Port); err != nil && err != http.ErrServerClosed {
				logger.Log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	go func() {
		logger.Log.Info("http listening", "port", cfg.HTTP.Port)
		if err := e.Start(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("http server shutdown error", "error", err)
	}

	logger.Log.Info("server stopped")
}
