// Package backend selects the catalog client a process talks to.
package backend

import (
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/planet-overlap/internal/catalog"
	"github.com/robert-malhotra/planet-overlap/internal/catalog/planet"
	"github.com/robert-malhotra/planet-overlap/internal/catalog/stacapi"
	"github.com/robert-malhotra/planet-overlap/internal/config"
)

// Backend names accepted in CATALOG_BACKEND.
const (
	Planet = "planet"
	STAC   = "stac"
)

// New returns the catalog client selected by cfg.Catalog.Backend.
func New(cfg *config.Config, logger *slog.Logger) (catalog.Client, error) {
	switch cfg.Catalog.Backend {
	case Planet:
		logger.Info("using Planet Data API backend", slog.String("base_url", cfg.Planet.BaseURL))
		return planet.NewClient(cfg.Planet.BaseURL, cfg.Planet.APIKey, cfg.Planet.PageSize, cfg.Planet.Timeout).
			WithLogger(logger), nil
	case STAC:
		logger.Info("using STAC API backend", slog.String("base_url", cfg.STAC.BaseURL))
		return stacapi.NewClient(cfg.STAC.BaseURL, cfg.STAC.APIKey, cfg.STAC.PageSize, cfg.STAC.Timeout).
			WithLogger(logger), nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}
