package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/robert-malhotra/planet-overlap/internal/backend"
	"github.com/robert-malhotra/planet-overlap/internal/catalog"
	"github.com/robert-malhotra/planet-overlap/internal/config"
	"github.com/robert-malhotra/planet-overlap/internal/observability"
	"github.com/robert-malhotra/planet-overlap/internal/output"
	"github.com/robert-malhotra/planet-overlap/internal/progress"
	"github.com/robert-malhotra/planet-overlap/internal/search"
)

// Exit codes beyond the generic 1.
const (
	exitInvalid = 2
	exitPartial = 3
	exitCatalog = 4
)

func searchAction(c *cli.Context) error {
	cfg, err := config.Parse()
	if err != nil {
		return cli.NewExitError(err.Error(), exitInvalid)
	}
	if c.IsSet("backend") {
		cfg.Catalog.Backend = c.String("backend")
	}
	if err := cfg.Validate(); err != nil {
		return cli.NewExitError("invalid configuration: "+err.Error(), exitInvalid)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	req, err := requestFromFlags(c)
	if err != nil {
		return cli.NewExitError(err.Error(), exitInvalid)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	client, err := backend.New(cfg, logger)
	if err != nil {
		return cli.NewExitError(err.Error(), exitInvalid)
	}
	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	svc := search.NewService(client, cfg.Search).WithLogger(logger).WithMetrics(metrics)

	sink := progress.NewAsync(progress.Multi(progress.NewLogSink(logger), progress.NewMetricsSink(metrics)))
	report, err := svc.Run(ctx, "", req, sink)
	sink.Close()

	if path := c.String("metrics-file"); path != "" {
		if werr := metrics.WriteTextfile(path); werr != nil {
			logger.Warn("failed to write metrics", slog.String("path", path), slog.String("error", werr.Error()))
		}
	}

	if err != nil {
		switch {
		case errors.Is(err, search.ErrInvalidRequest):
			return cli.NewExitError(err.Error(), exitInvalid)
		case catalog.IsFatal(err):
			return cli.NewExitError(err.Error(), exitCatalog)
		}
		return err
	}

	paths, err := output.WriteReport(c.String("out"), report)
	if err != nil {
		return err
	}
	for _, p := range paths {
		logger.Info("wrote output", slog.String("path", p))
	}

	printSummary(c.App.Writer, report)

	if report.Partial() {
		return cli.NewExitError(fmt.Sprintf("%d of %d partitions failed, see %s",
			len(report.Failed), report.Partitions, output.FailuresFile), exitPartial)
	}
	return nil
}

func planAction(c *cli.Context) error {
	cfg, err := config.Parse()
	if err != nil {
		return cli.NewExitError(err.Error(), exitInvalid)
	}
	if err := cfg.Search.Validate(); err != nil {
		return cli.NewExitError("invalid configuration: "+err.Error(), exitInvalid)
	}

	req, err := requestFromFlags(c)
	if err != nil {
		return cli.NewExitError(err.Error(), exitInvalid)
	}
	plan, err := search.Prepare(req, cfg.Search)
	if err != nil {
		return cli.NewExitError(err.Error(), exitInvalid)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tROW\tCOL\tCHUNK\tDATES\tBBOX")
	for _, p := range plan.Partitions() {
		b := p.Tile.Bound
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%.4f,%.4f,%.4f,%.4f\n",
			p.Index, p.Tile.Row, p.Tile.Col, p.Chunk, p.Dates,
			b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if c.Bool("wkt") {
		for _, p := range plan.Partitions() {
			fmt.Fprintf(c.App.Writer, "%d\t%s\n", p.Index, p.WKT())
		}
	}
	return nil
}

func versionAction(c *cli.Context) error {
	fmt.Fprintf(c.App.Writer, "%s %s\n", c.App.Name, c.App.Version)
	return nil
}

func requestFromFlags(c *cli.Context) (search.Request, error) {
	path := c.String("aoi")
	if path == "" {
		return search.Request{}, errors.New("--aoi is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return search.Request{}, fmt.Errorf("reading AOI: %w", err)
	}

	req := search.Request{
		AOI:       data,
		StartDate: c.String("start"),
		EndDate:   c.String("end"),
		ItemTypes: c.StringSlice("item-type"),
	}
	if c.IsSet("max-cloud") {
		v := c.Float64("max-cloud")
		req.MaxCloudCover = &v
	}
	if c.IsSet("min-sun") {
		v := c.Float64("min-sun")
		req.MinSunAngle = &v
	}
	return req, nil
}

func printSummary(w io.Writer, r *search.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	st := r.Stats
	fmt.Fprintf(tw, "run\t%s\n", r.ID)
	fmt.Fprintf(tw, "backend\t%s\n", r.Backend)
	fmt.Fprintf(tw, "dates\t%s to %s\n", r.StartDate, r.EndDate)
	fmt.Fprintf(tw, "partitions\t%d of %d completed\n", r.Completed, r.Partitions)
	fmt.Fprintf(tw, "scenes\t%d (%d overlapping, %d duplicates dropped)\n", st.Scenes, st.Overlapping, st.Duplicates)
	if st.FirstAcquired != nil {
		fmt.Fprintf(tw, "acquired\t%s to %s\n",
			st.FirstAcquired.Format(time.RFC3339), st.LastAcquired.Format(time.RFC3339))
		fmt.Fprintf(tw, "mean cloud cover\t%.3f\n", st.MeanCloudCover)
		fmt.Fprintf(tw, "mean sun angle\t%.2f\n", st.MeanSunAngle)
	}
	if st.QualityRejected > 0 {
		fmt.Fprintf(tw, "quality rejected\t%d\n", st.QualityRejected)
	}
	fmt.Fprintf(tw, "elapsed\t%s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
