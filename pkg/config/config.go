// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config - главная структура конфигурации
type Config struct {
	App       AppConfig       `koanf:"app"`
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	Graph     GraphConfig     `koanf:"graph"`
	Loader    LoaderConfig    `koanf:"loader"`
	Matrix    MatrixConfig    `koanf:"matrix"`
	Isochrone IsochroneConfig `koanf:"isochrone"`
	Usage     UsageConfig     `koanf:"usage"`
	Auth      AuthConfig      `koanf:"auth"`
	Retry     RetryConfig     `koanf:"retry"`
}

// AppConfig - общие настройки приложения
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// HTTPConfig - настройки HTTP сервера
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORS            CORSConfig    `koanf:"cors"`
}

// CORSConfig - настройки CORS
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // путь к файлу логов
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // количество бэкапов
	MaxAge     int    `koanf:"max_age"`     // дней
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig - настройки Prometheus метрик
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// DatabaseConfig - настройки базы данных
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres, mysql, sqlite
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

// DSN возвращает строку подключения
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.Username, d.Password, d.Host, d.Port, d.Database,
		)
	case "sqlite":
		return d.Database
	default:
		return ""
	}
}

// CacheConfig - настройки низкоуровневого байтового кэша (memory/redis),
// используемого изохронным кэшем результатов и де-дупликацией аналитики.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // для in-memory
}

// Address возвращает адрес кэша
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GraphConfig настраивает Graph Store/Graph Cache.
type GraphConfig struct {
	// StoreDir каталог, в котором хранятся сериализованные графы по RegionKey/BBoxKey.
	StoreDir string `koanf:"store_dir"`
	// MaxCachedRegions ограничивает число графов, одновременно удерживаемых в памяти.
	MaxCachedRegions int `koanf:"max_cached_regions"`
	// PrefetchQueueSize ограничивает глубину очереди фонового прогрева соседних регионов.
	PrefetchQueueSize int `koanf:"prefetch_queue_size"`
	// NearestFallbackKM — радиус, в котором допустим возврат ближайшего закэшированного
	// графа вместо новой загрузки, пока настоящая загрузка не завершится.
	NearestFallbackKM float64 `koanf:"nearest_fallback_km"`
	// StaleAfter задаёт возраст, после которого файл региона считается устаревшим для list/remove_older_than.
	StaleAfter time.Duration `koanf:"stale_after"`
}

// LoaderConfig настраивает Network Loader — получение и разметку OSM-графов.
type LoaderConfig struct {
	UpstreamURL    string        `koanf:"upstream_url"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxRetries     int           `koanf:"max_retries"`
	RetryBackoff   time.Duration `koanf:"retry_backoff"`
	MaxGraphNodes  int           `koanf:"max_graph_nodes"`
}

// MatrixConfig настраивает Matrix Builder.
type MatrixConfig struct {
	// IntersectionPenaltySeconds добавляется за каждый внутренний узел маршрута.
	IntersectionPenaltySeconds float64 `koanf:"intersection_penalty_seconds"`
	// CongestionFactor — множитель на суммарное время в пути.
	CongestionFactor float64 `koanf:"congestion_factor"`
	// StartupOverheadSeconds добавляется один раз на пару источник-назначение.
	StartupOverheadSeconds float64 `koanf:"startup_overhead_seconds"`
	// FallbackSpeedKPH используется для недостижимых пар через прямое расстояние.
	FallbackSpeedKPH float64 `koanf:"fallback_speed_kph"`
}

// IsochroneConfig настраивает Isochrone Builder.
type IsochroneConfig struct {
	MinFetchRadiusMeters   float64       `koanf:"min_fetch_radius_meters"`
	RadiusSafetyFactor     float64       `koanf:"radius_safety_factor"`
	SubgraphNodeThreshold  int           `koanf:"subgraph_node_threshold"`
	DefaultToleranceMeters float64       `koanf:"default_tolerance_meters"`
	ResultCacheTTL         time.Duration `koanf:"result_cache_ttl"`
}

// UsageConfig настраивает Usage Tracker middleware.
type UsageConfig struct {
	Enabled         bool `koanf:"enabled"`
	PersistOnlyOK   bool `koanf:"persist_only_ok"`
	RequireIdentity bool `koanf:"require_identity"`
	AnalyticsDedupe bool `koanf:"analytics_dedupe"`
}

// AuthConfig настраивает проверку предъявительских JWT на границе HTTP API.
type AuthConfig struct {
	SecretKey string `koanf:"secret_key"`
	Issuer    string `koanf:"issuer"`
}

// RetryConfig конфигурация retry
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Graph.MaxCachedRegions <= 0 {
		errs = append(errs, "graph.max_cached_regions must be positive")
	}

	if c.Graph.NearestFallbackKM < 0 {
		errs = append(errs, "graph.nearest_fallback_km must be non-negative")
	}

	if c.Matrix.CongestionFactor <= 0 {
		errs = append(errs, "matrix.congestion_factor must be positive")
	}

	if c.Isochrone.SubgraphNodeThreshold <= 0 {
		errs = append(errs, "isochrone.subgraph_node_threshold must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment проверяет режим разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction проверяет продакшн режим
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
