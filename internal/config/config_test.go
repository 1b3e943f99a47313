package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("PLANET_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}

	if cfg.Catalog.Backend != "planet" {
		t.Errorf("expected default backend planet, got %s", cfg.Catalog.Backend)
	}

	if cfg.Planet.BaseURL != "https://api.planet.com/data/v1" {
		t.Errorf("expected default planet base URL, got %s", cfg.Planet.BaseURL)
	}

	if cfg.Search.TileSizeDegrees != 1.0 {
		t.Errorf("expected default tile size 1.0, got %v", cfg.Search.TileSizeDegrees)
	}

	if cfg.Search.PointBufferDegrees != 0.001 {
		t.Errorf("expected default point buffer 0.001, got %v", cfg.Search.PointBufferDegrees)
	}

	if cfg.Search.MaxCloudCover != 0.5 {
		t.Errorf("expected default max cloud cover 0.5, got %v", cfg.Search.MaxCloudCover)
	}

	if cfg.Search.MinSunAngle != 0 {
		t.Errorf("expected default min sun angle 0, got %v", cfg.Search.MinSunAngle)
	}

	if cfg.Search.DateThresholdDays != 30 {
		t.Errorf("expected default date threshold 30, got %d", cfg.Search.DateThresholdDays)
	}

	if got := strings.Join(cfg.Search.ItemTypes, ","); got != "PSScene,SkySatScene" {
		t.Errorf("expected default item types PSScene,SkySatScene, got %s", got)
	}

	if cfg.Search.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Search.Workers)
	}

	if cfg.Store.Type != "memory" {
		t.Errorf("expected default store memory, got %s", cfg.Store.Type)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CATALOG_BACKEND", "stac")
	t.Setenv("STAC_BASE_URL", "https://stac.example.com")
	t.Setenv("SEARCH_TILE_SIZE_DEGREES", "0.5")
	t.Setenv("SEARCH_ITEM_TYPES", "PSScene")
	t.Setenv("SEARCH_TIMEOUT", "90s")
	t.Setenv("SEARCH_QUALITY_SCREEN", "true")
	t.Setenv("STORE_TYPE", "redis")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Catalog.Backend != "stac" {
		t.Errorf("expected backend stac, got %s", cfg.Catalog.Backend)
	}

	if cfg.STAC.BaseURL != "https://stac.example.com" {
		t.Errorf("expected STAC base URL https://stac.example.com, got %s", cfg.STAC.BaseURL)
	}

	if cfg.Search.TileSizeDegrees != 0.5 {
		t.Errorf("expected tile size 0.5, got %v", cfg.Search.TileSizeDegrees)
	}

	if len(cfg.Search.ItemTypes) != 1 || cfg.Search.ItemTypes[0] != "PSScene" {
		t.Errorf("expected item types [PSScene], got %v", cfg.Search.ItemTypes)
	}

	if cfg.Search.Timeout != 90*time.Second {
		t.Errorf("expected search timeout 90s, got %s", cfg.Search.Timeout)
	}

	if !cfg.Search.QualityScreen {
		t.Error("expected quality screen enabled")
	}

	if cfg.Store.Type != "redis" {
		t.Errorf("expected store redis, got %s", cfg.Store.Type)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("expected log format text, got %s", cfg.Logging.Format)
	}
}

func TestLoadRequiresPlanetKey(t *testing.T) {
	t.Setenv("CATALOG_BACKEND", "planet")
	t.Setenv("PLANET_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when planet API key is missing")
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{Backend: "planet"},
		Planet: PlanetConfig{
			BaseURL:  "https://api.planet.com/data/v1",
			APIKey:   "key",
			PageSize: 100,
			Timeout:  30 * time.Second,
		},
		Search: SearchConfig{
			TileSizeDegrees:    1.0,
			PointBufferDegrees: 0.001,
			MaxCloudCover:      0.5,
			MinSunAngle:        0,
			DateThresholdDays:  30,
			ItemTypes:          []string{"PSScene", "SkySatScene"},
			MaxRetries:         3,
			BackoffInitial:     time.Second,
			BackoffMax:         30 * time.Second,
			BackoffMultiplier:  2,
			Workers:            4,
			Timeout:            10 * time.Minute,
		},
		Store: StoreConfig{
			Type:            "memory",
			TTL:             time.Hour,
			CleanupInterval: time.Minute,
		},
		Tracing: TracingConfig{SampleRatio: 1},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, wantError: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Catalog.Backend = "maxar" }, wantError: true},
		{name: "missing api key", mutate: func(c *Config) { c.Planet.APIKey = "" }, wantError: true},
		{name: "stac backend without key", mutate: func(c *Config) {
			c.Catalog.Backend = "stac"
			c.Planet.APIKey = ""
			c.STAC = STACConfig{BaseURL: "http://localhost", PageSize: 10, Timeout: time.Second}
		}},
		{name: "zero tile size", mutate: func(c *Config) { c.Search.TileSizeDegrees = 0 }, wantError: true},
		{name: "cloud cover above one", mutate: func(c *Config) { c.Search.MaxCloudCover = 1.2 }, wantError: true},
		{name: "negative sun angle", mutate: func(c *Config) { c.Search.MinSunAngle = -1 }, wantError: true},
		{name: "sun angle above ninety", mutate: func(c *Config) { c.Search.MinSunAngle = 91 }, wantError: true},
		{name: "zero date threshold", mutate: func(c *Config) { c.Search.DateThresholdDays = 0 }, wantError: true},
		{name: "no item types", mutate: func(c *Config) { c.Search.ItemTypes = nil }, wantError: true},
		{name: "backoff max below initial", mutate: func(c *Config) { c.Search.BackoffMax = time.Millisecond }, wantError: true},
		{name: "zero workers", mutate: func(c *Config) { c.Search.Workers = 0 }, wantError: true},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Type = "disk" }, wantError: true},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Tracing.SampleRatio = 2 }, wantError: true},
		{name: "invalid log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestServerConfigAddress(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 9000}
	if got := s.Address(); got != "127.0.0.1:9000" {
		t.Errorf("Address() = %s, want 127.0.0.1:9000", got)
	}
}
