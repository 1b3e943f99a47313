// Package server embeds the planet-overlap HTTP service in another
// application.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robert-malhotra/planet-overlap/internal/api"
	"github.com/robert-malhotra/planet-overlap/internal/backend"
	"github.com/robert-malhotra/planet-overlap/internal/catalog"
	"github.com/robert-malhotra/planet-overlap/internal/config"
	"github.com/robert-malhotra/planet-overlap/internal/observability"
	"github.com/robert-malhotra/planet-overlap/internal/runstore"
	"github.com/robert-malhotra/planet-overlap/internal/search"
)

// Options configures an embedded server.
type Options struct {
	// Config is the full service configuration (required).
	Config *config.Config

	// Client overrides the catalog client built from Config.Catalog.
	Client catalog.Client

	// Registerer receives the search metrics.
	// Default: prometheus.DefaultRegisterer
	Registerer prometheus.Registerer

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a planet-overlap search service that can be mounted in another
// router.
type Server struct {
	router   chi.Router
	handlers *api.Handlers
	store    runstore.Store
	logger   *slog.Logger
}

// New wires the catalog client, run store, search service and routes.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := opts.Config

	client := opts.Client
	if client == nil {
		var err error
		client, err = backend.New(cfg, opts.Logger)
		if err != nil {
			return nil, err
		}
	}

	metrics, err := observability.NewMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	store, err := runstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	opts.Logger.Info("initialized run store",
		slog.String("type", cfg.Store.Type),
		slog.Duration("ttl", cfg.Store.TTL),
	)

	service := search.NewService(client, cfg.Search).
		WithLogger(opts.Logger).
		WithMetrics(metrics)
	handlers := api.NewHandlers(service, store, opts.Logger)

	return &Server{
		router:   api.NewRouter(handlers, metrics.Handler(), opts.Logger),
		handlers: handlers,
		store:    store,
		logger:   opts.Logger,
	}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close stops background searches, waiting until ctx ends for them to record
// their state, and closes the run store.
func (s *Server) Close(ctx context.Context) error {
	err := s.handlers.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("background searches did not stop in time", slog.String("error", err.Error()))
	}
	return errors.Join(err, s.store.Close())
}
