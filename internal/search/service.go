// Package search runs the whole imagery search pipeline: it validates the
// request, plans partitions, queries the catalog, merges, screens and
// analyzes the scenes, and produces a Report.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/robert-malhotra/planet-overlap/internal/catalog"
	"github.com/robert-malhotra/planet-overlap/internal/config"
	"github.com/robert-malhotra/planet-overlap/internal/executor"
	"github.com/robert-malhotra/planet-overlap/internal/merge"
	"github.com/robert-malhotra/planet-overlap/internal/observability"
	"github.com/robert-malhotra/planet-overlap/internal/overlap"
	"github.com/robert-malhotra/planet-overlap/internal/partition"
	"github.com/robert-malhotra/planet-overlap/internal/progress"
	"github.com/robert-malhotra/planet-overlap/internal/quality"
)

// NewID returns a fresh run identifier.
func NewID() string {
	return uuid.NewString()
}

// Service executes searches against one catalog backend.
type Service struct {
	client  catalog.Client
	cfg     config.SearchConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService creates a search service.
func NewService(client catalog.Client, cfg config.SearchConfig) *Service {
	return &Service{
		client: client,
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the service and its executor.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// WithMetrics records run metrics to m.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// Backend names the catalog the service queries.
func (s *Service) Backend() string {
	return s.client.Name()
}

// Metrics returns the collectors the service records to, possibly nil.
func (s *Service) Metrics() *observability.Metrics {
	return s.metrics
}

// Config returns the search defaults the service applies.
func (s *Service) Config() config.SearchConfig {
	return s.cfg
}

// Prepare validates req and plans its partitions.
func (s *Service) Prepare(req Request) (*Plan, error) {
	return Prepare(req, s.cfg)
}

// Run validates and executes req. See Execute.
func (s *Service) Run(ctx context.Context, id string, req Request, sink progress.Sink) (*Report, error) {
	plan, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, id, plan, sink)
}

// Execute queries every partition of plan and returns the report. Failed
// partitions are listed in the report and do not make Execute fail; a fatal
// catalog error or cancellation of ctx does.
func (s *Service) Execute(ctx context.Context, id string, plan *Plan, sink progress.Sink) (*Report, error) {
	if id == "" {
		id = NewID()
	}
	started := time.Now()
	logger := s.logger.With(slog.String("run_id", id))

	ctx, span := observability.Tracer().Start(ctx, "search.Execute", trace.WithAttributes(
		attribute.String("run.id", id),
		attribute.String("backend", s.client.Name()),
		attribute.Int("partitions", len(plan.Jobs)),
	))
	defer span.End()

	b := plan.AOI.Bound()
	logger.InfoContext(ctx, "search started",
		slog.String("backend", s.client.Name()),
		slog.String("dates", plan.Dates.String()),
		slog.Int("partitions", len(plan.Jobs)),
		slog.Float64("aoi_area", plan.AOI.Area()),
	)

	tagged := progress.SinkFunc(func(p progress.Progress) {
		p.RunID = id
		if sink != nil {
			sink.Update(p)
		}
	})

	results := merge.New()
	exec := executor.New(s.client, executor.RetryPolicyFromConfig(s.cfg), s.cfg.Workers, s.cfg.Timeout).
		WithLogger(logger).
		WithMetrics(s.metrics)

	outcome, err := exec.Run(ctx, plan.Jobs, results, tagged)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveRun(observability.StatusFailed, time.Since(started), 0)
		logger.ErrorContext(ctx, "search aborted", slog.String("error", err.Error()))
		return nil, fmt.Errorf("search %s: %w", id, err)
	}

	scenes := results.Finalize()

	qualityRejected := 0
	if screen, enabled := quality.FromConfig(s.cfg); enabled {
		scenes, qualityRejected = screen.Apply(scenes)
	}

	scenes = overlap.Analyzer{MaxTimeDelta: s.cfg.MaxTimeDelta}.Analyze(scenes)

	report := &Report{
		ID:         id,
		Backend:    s.client.Name(),
		StartDate:  plan.Dates.Start.Format(partition.DateLayout),
		EndDate:    plan.Dates.End.Format(partition.DateLayout),
		BBox:       [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()},
		Partitions: outcome.Total,
		Completed:  outcome.Completed,
		Failed:     make([]executor.FailureDescriptor, 0, len(outcome.Failed)),
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
		Scenes:     scenes,
	}
	for _, f := range outcome.Failed {
		report.Failed = append(report.Failed, f.Descriptor())
	}

	report.Stats = summarize(scenes)
	report.Stats.Pages = outcome.Pages
	report.Stats.Retries = outcome.Retries
	report.Stats.Skipped = outcome.Skipped
	report.Stats.Rejected = outcome.Rejected
	report.Stats.Duplicates = results.Duplicates()
	report.Stats.QualityRejected = qualityRejected

	status := observability.StatusCompleted
	if report.Partial() {
		status = observability.StatusFailed
	}
	s.metrics.ObserveRun(status, report.FinishedAt.Sub(report.StartedAt), len(scenes))
	span.SetAttributes(attribute.Int("scenes", len(scenes)))

	s.logSummary(ctx, logger, report)
	return report, nil
}

func (s *Service) logSummary(ctx context.Context, logger *slog.Logger, r *Report) {
	attrs := []any{
		slog.Int("scenes", r.Stats.Scenes),
		slog.Int("overlapping", r.Stats.Overlapping),
		slog.Int("failed_partitions", len(r.Failed)),
		slog.Int("duplicates", r.Stats.Duplicates),
		slog.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt)),
	}
	if r.Stats.FirstAcquired != nil {
		attrs = append(attrs,
			slog.Time("first_acquired", *r.Stats.FirstAcquired),
			slog.Time("last_acquired", *r.Stats.LastAcquired),
			slog.Float64("mean_cloud_cover", r.Stats.MeanCloudCover),
			slog.Float64("mean_sun_angle", r.Stats.MeanSunAngle),
		)
	}

	if r.Partial() {
		logger.WarnContext(ctx, "search finished with failed partitions", attrs...)
		return
	}
	logger.InfoContext(ctx, "search finished", attrs...)
}
