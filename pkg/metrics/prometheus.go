package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics глобальный контейнер метрик
type Metrics struct {
	// HTTP метрики
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Graph Cache метрики
	GraphCacheHitsTotal   *prometheus.CounterVec
	GraphCachePrefetchLag prometheus.Gauge
	GraphCacheSizeRegions prometheus.Gauge

	// Matrix Builder метрики
	MatrixBuildDuration *prometheus.HistogramVec
	MatrixBuildSize     *prometheus.HistogramVec

	// Route Solver метрики
	RouteSolveDuration *prometheus.HistogramVec
	RouteSolveTotal    *prometheus.CounterVec

	// Isochrone Builder метрики
	IsochroneBuildDuration *prometheus.HistogramVec
	IsochroneAreaKM2       *prometheus.HistogramVec

	// Системные метрики
	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	// Информация о сервисе
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics инициализирует метрики
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"route"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		GraphCacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "graph_cache_requests_total",
				Help:      "Graph cache lookups by outcome",
			},
			[]string{"outcome"}, // memory_hit, disk_hit, nearest_fallback, miss
		),

		GraphCachePrefetchLag: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "graph_cache_prefetch_queue_depth",
				Help:      "Current depth of the graph cache's background prefetch queue",
			},
		),

		GraphCacheSizeRegions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "graph_cache_resident_regions",
				Help:      "Number of graphs currently resident in the in-memory cache",
			},
		),

		MatrixBuildDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "matrix_build_duration_seconds",
				Help:      "Duration of travel-time matrix builds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"profile"},
		),

		MatrixBuildSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "matrix_build_locations",
				Help:      "Number of locations in a matrix build request",
				Buckets:   []float64{2, 5, 10, 25, 50, 100, 250},
			},
			[]string{"profile"},
		),

		RouteSolveDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "route_solve_duration_seconds",
				Help:      "Duration of route solve operations",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind"}, // tsp, sequential, pdp
		),

		RouteSolveTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "route_solve_total",
				Help:      "Total number of route solve operations",
			},
			[]string{"kind", "status"},
		),

		IsochroneBuildDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "isochrone_build_duration_seconds",
				Help:      "Duration of isochrone polygon builds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"profile"},
		),

		IsochroneAreaKM2: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "isochrone_area_km2",
				Help:      "Area of computed isochrone polygons",
				Buckets:   []float64{0.1, 1, 5, 10, 25, 50, 100, 500},
			},
			[]string{"profile"},
		),

		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	// Runtime-метрики отдаёт отдельный коллектор
	prometheus.MustRegister(NewRuntimeCollector(namespace, subsystem))

	defaultMetrics = m
	return m
}

// Get возвращает глобальные метрики
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("geosvc", "")
	}
	return defaultMetrics
}

// RecordGraphCacheLookup записывает исход обращения к Graph Cache
func (m *Metrics) RecordGraphCacheLookup(outcome string) {
	m.GraphCacheHitsTotal.WithLabelValues(outcome).Inc()
}

// SetGraphCacheSize устанавливает число графов, находящихся в памяти
func (m *Metrics) SetGraphCacheSize(n int) {
	m.GraphCacheSizeRegions.Set(float64(n))
}

// SetPrefetchQueueDepth устанавливает текущую глубину очереди префетча
func (m *Metrics) SetPrefetchQueueDepth(n int) {
	m.GraphCachePrefetchLag.Set(float64(n))
}

// RecordMatrixBuild записывает метрики построения матрицы
func (m *Metrics) RecordMatrixBuild(profile string, duration time.Duration, locations int) {
	m.MatrixBuildDuration.WithLabelValues(profile).Observe(duration.Seconds())
	m.MatrixBuildSize.WithLabelValues(profile).Observe(float64(locations))
}

// RecordRouteSolve записывает метрики решения маршрута
func (m *Metrics) RecordRouteSolve(kind string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RouteSolveTotal.WithLabelValues(kind, status).Inc()
	m.RouteSolveDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordIsochroneBuild записывает метрики построения изохроны
func (m *Metrics) RecordIsochroneBuild(profile string, duration time.Duration, areaKM2 float64) {
	m.IsochroneBuildDuration.WithLabelValues(profile).Observe(duration.Seconds())
	m.IsochroneAreaKM2.WithLabelValues(profile).Observe(areaKM2)
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer запускает HTTP сервер для метрик
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, ошибка записи не критична
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
