// Package config provides configuration management for the planet-overlap service and CLI.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig  `envPrefix:"SERVER_"`
	Catalog CatalogConfig `envPrefix:"CATALOG_"`
	Planet  PlanetConfig  `envPrefix:"PLANET_"`
	STAC    STACConfig    `envPrefix:"STAC_"`
	Search  SearchConfig  `envPrefix:"SEARCH_"`
	Store   StoreConfig   `envPrefix:"STORE_"`
	Tracing TracingConfig `envPrefix:"TRACING_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// CatalogConfig selects the remote catalog implementation.
type CatalogConfig struct {
	// Backend is either "planet" (Planet Data API) or "stac" (any STAC API with CQL2 filtering)
	Backend string `env:"BACKEND" envDefault:"planet"`
}

// PlanetConfig contains Planet Data API client configuration.
type PlanetConfig struct {
	BaseURL  string        `env:"BASE_URL" envDefault:"https://api.planet.com/data/v1"`
	APIKey   string        `env:"API_KEY"`
	PageSize int           `env:"PAGE_SIZE" envDefault:"100"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// STACConfig contains STAC API client configuration.
type STACConfig struct {
	BaseURL  string        `env:"BASE_URL" envDefault:"http://localhost:8081"`
	APIKey   string        `env:"API_KEY"`
	PageSize int           `env:"PAGE_SIZE" envDefault:"100"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// SearchConfig holds the defaults that drive partitioning, filtering and query execution.
type SearchConfig struct {
	TileSizeDegrees        float64       `env:"TILE_SIZE_DEGREES" envDefault:"1.0"`
	PointBufferDegrees     float64       `env:"POINT_BUFFER_DEGREES" envDefault:"0.001"`
	MaxCloudCover          float64       `env:"MAX_CLOUD_COVER" envDefault:"0.5"`
	MinSunAngle            float64       `env:"MIN_SUN_ANGLE" envDefault:"0.0"`
	DateThresholdDays      int           `env:"DATE_THRESHOLD_DAYS" envDefault:"30"`
	PointDateThresholdDays int           `env:"POINT_DATE_THRESHOLD_DAYS" envDefault:"0"`
	ItemTypes              []string      `env:"ITEM_TYPES" envDefault:"PSScene,SkySatScene" envSeparator:","`
	MaxRetries             int           `env:"MAX_RETRIES" envDefault:"3"`
	BackoffInitial         time.Duration `env:"BACKOFF_INITIAL" envDefault:"1s"`
	BackoffMax             time.Duration `env:"BACKOFF_MAX" envDefault:"30s"`
	BackoffMultiplier      float64       `env:"BACKOFF_MULTIPLIER" envDefault:"2.0"`
	Workers                int           `env:"WORKERS" envDefault:"4"`
	Timeout                time.Duration `env:"TIMEOUT" envDefault:"10m"`
	QualityScreen          bool          `env:"QUALITY_SCREEN" envDefault:"false"`
	MaxViewAngle           float64       `env:"MAX_VIEW_ANGLE" envDefault:"3.0"`
	MaxTimeDelta           time.Duration `env:"MAX_TIME_DELTA" envDefault:"0s"`
}

// StoreConfig selects where completed run reports are kept.
type StoreConfig struct {
	Type            string        `env:"TYPE" envDefault:"memory"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	TTL             time.Duration `env:"TTL" envDefault:"24h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

// TracingConfig governs OpenTelemetry tracer setup.
type TracingConfig struct {
	Enabled     bool    `env:"ENABLED" envDefault:"false"`
	ServiceName string  `env:"SERVICE_NAME" envDefault:"planet-overlap"`
	Exporter    string  `env:"EXPORTER" envDefault:"stdout"`
	SampleRatio float64 `env:"SAMPLE_RATIO" envDefault:"1.0"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if a value cannot be parsed or fails validation.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse reads the environment without validating, for callers that override
// fields before calling Validate.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{}); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	// Validate catalog config
	switch c.Catalog.Backend {
	case "planet":
		if c.Planet.BaseURL == "" {
			return fmt.Errorf("planet base URL is required")
		}
		if c.Planet.APIKey == "" {
			return fmt.Errorf("planet API key is required when the planet backend is selected")
		}
		if c.Planet.PageSize < 1 {
			return fmt.Errorf("planet page size must be at least 1, got %d", c.Planet.PageSize)
		}
		if c.Planet.Timeout <= 0 {
			return fmt.Errorf("planet timeout must be positive, got %s", c.Planet.Timeout)
		}
	case "stac":
		if c.STAC.BaseURL == "" {
			return fmt.Errorf("STAC base URL is required")
		}
		if c.STAC.PageSize < 1 {
			return fmt.Errorf("STAC page size must be at least 1, got %d", c.STAC.PageSize)
		}
		if c.STAC.Timeout <= 0 {
			return fmt.Errorf("STAC timeout must be positive, got %s", c.STAC.Timeout)
		}
	default:
		return fmt.Errorf("catalog backend must be 'planet' or 'stac', got %q", c.Catalog.Backend)
	}

	if err := c.Search.Validate(); err != nil {
		return err
	}

	// Validate store config
	switch c.Store.Type {
	case "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis address is required when the redis store is selected")
		}
	default:
		return fmt.Errorf("store type must be 'memory' or 'redis', got %q", c.Store.Type)
	}

	if c.Store.TTL <= 0 {
		return fmt.Errorf("store TTL must be positive, got %s", c.Store.TTL)
	}

	if c.Store.CleanupInterval <= 0 {
		return fmt.Errorf("store cleanup interval must be positive, got %s", c.Store.CleanupInterval)
	}

	// Validate tracing config
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Validate checks the search defaults. Quality thresholds are range-checked again
// per request, so this only rejects values no request could ever override sensibly.
func (s *SearchConfig) Validate() error {
	if !(s.TileSizeDegrees > 0) || math.IsInf(s.TileSizeDegrees, 0) {
		return fmt.Errorf("tile size must be a positive number of degrees, got %v", s.TileSizeDegrees)
	}

	if !(s.PointBufferDegrees > 0) || math.IsInf(s.PointBufferDegrees, 0) {
		return fmt.Errorf("point buffer must be a positive number of degrees, got %v", s.PointBufferDegrees)
	}

	if s.MaxCloudCover < 0 || s.MaxCloudCover > 1 || math.IsNaN(s.MaxCloudCover) {
		return fmt.Errorf("max cloud cover must be within [0, 1], got %v", s.MaxCloudCover)
	}

	if s.MinSunAngle < 0 || s.MinSunAngle > 90 || math.IsNaN(s.MinSunAngle) {
		return fmt.Errorf("min sun angle must be within [0, 90], got %v", s.MinSunAngle)
	}

	if s.DateThresholdDays < 1 {
		return fmt.Errorf("date threshold must be at least 1 day, got %d", s.DateThresholdDays)
	}

	if s.PointDateThresholdDays < 0 {
		return fmt.Errorf("point date threshold must not be negative, got %d", s.PointDateThresholdDays)
	}

	if len(s.ItemTypes) == 0 {
		return fmt.Errorf("at least one item type is required")
	}

	if s.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", s.MaxRetries)
	}

	if s.BackoffInitial <= 0 {
		return fmt.Errorf("backoff initial interval must be positive, got %s", s.BackoffInitial)
	}

	if s.BackoffMax < s.BackoffInitial {
		return fmt.Errorf("backoff max (%s) must be >= backoff initial (%s)", s.BackoffMax, s.BackoffInitial)
	}

	if s.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1, got %v", s.BackoffMultiplier)
	}

	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}

	if s.Timeout <= 0 {
		return fmt.Errorf("search timeout must be positive, got %s", s.Timeout)
	}

	if s.MaxTimeDelta < 0 {
		return fmt.Errorf("max time delta must not be negative, got %s", s.MaxTimeDelta)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
