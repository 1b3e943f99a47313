// Package executor runs partition queries against a catalog on a bounded
// worker pool, retrying transient failures and collecting per-partition
// failures instead of aborting the run.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/robert-malhotra/planet-overlap/internal/catalog"
	"github.com/robert-malhotra/planet-overlap/internal/filter"
	"github.com/robert-malhotra/planet-overlap/internal/observability"
	"github.com/robert-malhotra/planet-overlap/internal/partition"
	"github.com/robert-malhotra/planet-overlap/internal/progress"
	"github.com/robert-malhotra/planet-overlap/internal/scene"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// Failure kinds recorded in the failed-partition manifest. Catalog failures
// use the catalog.Kind names.
const (
	FailureTransient = "transient"
	FailurePermanent = "permanent"
	FailureFatal     = "fatal"
	FailureDeadline  = "deadline"
	FailureAborted   = "aborted"
)

// Job is one partition and the predicate built for it.
type Job struct {
	Partition partition.Partition
	Predicate *filter.Predicate
}

// Accumulator receives the scenes of every fetched page. Run calls it from
// a single goroutine.
type Accumulator interface {
	AddAll(scenes []scene.Scene) (int, error)
}

// PartitionFailure records a partition that did not finish.
type PartitionFailure struct {
	Partition partition.Partition
	Kind      string
	Attempts  int
	Err       error
}

func (f PartitionFailure) Error() string {
	return fmt.Sprintf("%s failed (%s after %d attempts): %v", f.Partition, f.Kind, f.Attempts, f.Err)
}

func (f PartitionFailure) Unwrap() error {
	return f.Err
}

// FailureDescriptor is the serializable form of a PartitionFailure, detailed
// enough to re-run the partition by hand.
type FailureDescriptor struct {
	Index    int        `json:"index"`
	Row      int        `json:"row"`
	Col      int        `json:"col"`
	Chunk    int        `json:"chunk"`
	BBox     [4]float64 `json:"bbox"`
	WKT      string     `json:"wkt"`
	Start    string     `json:"start"`
	End      string     `json:"end"`
	Kind     string     `json:"kind"`
	Attempts int        `json:"attempts"`
	Error    string     `json:"error"`
}

// Descriptor returns the manifest entry for f.
func (f PartitionFailure) Descriptor() FailureDescriptor {
	p := f.Partition
	b := p.Tile.Bound
	d := FailureDescriptor{
		Index:    p.Index,
		Row:      p.Tile.Row,
		Col:      p.Tile.Col,
		Chunk:    p.Chunk,
		BBox:     [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()},
		WKT:      p.WKT(),
		Start:    p.Dates.Start.Format(partition.DateLayout),
		End:      p.Dates.End.Format(partition.DateLayout),
		Kind:     f.Kind,
		Attempts: f.Attempts,
	}
	if f.Err != nil {
		d.Error = f.Err.Error()
	}
	return d
}

// MarshalJSON encodes the failure as its descriptor.
func (f PartitionFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Descriptor())
}

// Outcome summarizes a run.
type Outcome struct {
	Total     int
	Completed int
	Failed    []PartitionFailure
	Pages     int
	Retries   int
	// Skipped counts records the catalog adapter rejected as malformed.
	Skipped int
	// Rejected counts valid records outside the partition predicate.
	Rejected int
	// Added counts scenes the accumulator accepted as new.
	Added int
}

// Executor fans partition queries out over a worker pool.
type Executor struct {
	client  catalog.Client
	policy  RetryPolicy
	workers int
	timeout time.Duration
	sleep   sleepFunc
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an executor. timeout bounds a whole run; zero disables it.
func New(client catalog.Client, policy RetryPolicy, workers int, timeout time.Duration) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Executor{
		client:  client,
		policy:  policy,
		workers: workers,
		timeout: timeout,
		sleep:   sleepContext,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the executor.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// WithMetrics records page, retry and partition counters to m.
func (e *Executor) WithMetrics(m *observability.Metrics) *Executor {
	e.metrics = m
	return e
}

type msgKind int

const (
	msgPage msgKind = iota
	msgRetry
	msgDone
	msgFailed
)

type message struct {
	kind     msgKind
	job      int
	scenes   []scene.Scene
	skipped  int
	rejected int
	attempts int
	err      error
}

// Run executes every job and feeds matching scenes to acc. The calling
// goroutine coordinates the run: it alone touches acc, the outcome and sink.
//
// Partitions that fail are collected in Outcome.Failed. A fatal catalog
// error cancels the remaining work and is returned alongside the partial
// outcome, as is cancellation of ctx. Reaching the run timeout is not an
// error: unfinished partitions are recorded with kind "deadline" and the
// scenes merged so far are kept.
func (e *Executor) Run(ctx context.Context, jobs []Job, acc Accumulator, sink progress.Sink) (*Outcome, error) {
	if sink == nil {
		sink = progress.Discard
	}
	out := &Outcome{Total: len(jobs)}
	backend := e.client.Name()

	ctx, span := observability.Tracer().Start(ctx, "executor.Run", trace.WithAttributes(
		attribute.String("backend", backend),
		attribute.Int("partitions", len(jobs)),
		attribute.Int("workers", e.workers),
	))
	defer span.End()

	deadlineCtx, cancelDeadline := ctx, context.CancelFunc(func() {})
	if e.timeout > 0 {
		deadlineCtx, cancelDeadline = context.WithTimeout(ctx, e.timeout)
	}
	defer cancelDeadline()

	runCtx, abort := context.WithCancelCause(deadlineCtx)
	defer abort(nil)

	queue := make(chan int)
	msgs := make(chan message, e.workers)

	go func() {
		defer close(queue)
		for i := range jobs {
			select {
			case queue <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				e.runPartition(runCtx, i, jobs[i], msgs)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(msgs)
	}()

	report := func() {
		sink.Update(progress.Progress{
			Completed: out.Completed,
			Failed:    len(out.Failed),
			Total:     out.Total,
			Pages:     out.Pages,
			Scenes:    out.Added,
		})
	}

	finished := make([]bool, len(jobs))
	var runErr error

	for msg := range msgs {
		switch msg.kind {
		case msgRetry:
			out.Retries++
			e.metrics.ObserveRetry(backend)
			continue

		case msgPage:
			out.Pages++
			out.Skipped += msg.skipped
			out.Rejected += msg.rejected
			e.metrics.ObservePage(backend)

			added, err := acc.AddAll(msg.scenes)
			out.Added += added
			if err != nil && runErr == nil {
				runErr = fmt.Errorf("accumulating %s: %w", jobs[msg.job].Partition, err)
				abort(runErr)
			}

		case msgDone:
			finished[msg.job] = true
			out.Completed++
			e.metrics.ObservePartition(backend, observability.StatusCompleted)
			e.logger.DebugContext(ctx, "partition completed",
				slog.Int("partition", jobs[msg.job].Partition.Index),
				slog.Int("attempts", msg.attempts),
			)

		case msgFailed:
			finished[msg.job] = true
			f := PartitionFailure{
				Partition: jobs[msg.job].Partition,
				Kind:      classify(ctx, deadlineCtx, msg.err),
				Attempts:  msg.attempts,
				Err:       msg.err,
			}
			out.Failed = append(out.Failed, f)
			e.metrics.ObservePartition(backend, observability.StatusFailed)
			e.logger.WarnContext(ctx, "partition failed",
				slog.Int("partition", f.Partition.Index),
				slog.String("kind", f.Kind),
				slog.Int("attempts", f.Attempts),
				slog.String("error", errString(f.Err)),
			)

			if f.Kind == FailureFatal && runErr == nil {
				runErr = fmt.Errorf("search aborted by %s: %w", f.Partition, msg.err)
				abort(runErr)
			}
		}
		report()
	}

	// Partitions never dispatched because the run stopped early.
	for i, done := range finished {
		if done {
			continue
		}
		cause := context.Cause(runCtx)
		kind := FailureAborted
		if runErr == nil {
			kind = classify(ctx, deadlineCtx, cause)
		}
		f := PartitionFailure{
			Partition: jobs[i].Partition,
			Kind:      kind,
			Err:       cause,
		}
		out.Failed = append(out.Failed, f)
		e.metrics.ObservePartition(backend, observability.StatusFailed)
	}
	if len(out.Failed) > 0 {
		report()
	}

	span.SetAttributes(
		attribute.Int("pages", out.Pages),
		attribute.Int("failed", len(out.Failed)),
	)

	e.logger.InfoContext(ctx, "partition queries finished",
		slog.String("backend", backend),
		slog.Int("total", out.Total),
		slog.Int("completed", out.Completed),
		slog.Int("failed", len(out.Failed)),
		slog.Int("pages", out.Pages),
		slog.Int("retries", out.Retries),
		slog.Int("skipped", out.Skipped),
	)

	switch {
	case runErr != nil:
		span.SetStatus(codes.Error, runErr.Error())
		return out, runErr
	case ctx.Err() != nil:
		span.SetStatus(codes.Error, ctx.Err().Error())
		return out, ctx.Err()
	}
	return out, nil
}

func (e *Executor) runPartition(ctx context.Context, idx int, job Job, msgs chan<- message) {
	p := job.Partition
	ctx, span := observability.Tracer().Start(ctx, "executor.partition", trace.WithAttributes(
		attribute.Int("partition.index", p.Index),
		attribute.Int("partition.row", p.Tile.Row),
		attribute.Int("partition.col", p.Tile.Col),
		attribute.String("partition.dates", p.Dates.String()),
	))
	defer span.End()

	pager := NewPager(e.client, job.Predicate, e.policy).WithLogger(e.logger)
	pager.sleep = e.sleep
	pager.OnRetry = func(err error, attempt int) {
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
		msgs <- message{kind: msgRetry, job: idx}
	}

	for {
		page, err := pager.Next(ctx)
		if errors.Is(err, io.EOF) {
			msgs <- message{kind: msgDone, job: idx, attempts: pager.Attempts()}
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			msgs <- message{kind: msgFailed, job: idx, attempts: pager.Attempts(), err: err}
			return
		}

		kept := make([]scene.Scene, 0, len(page.Scenes))
		for _, s := range page.Scenes {
			if job.Predicate.Matches(s) {
				kept = append(kept, s)
			}
		}
		msgs <- message{
			kind:     msgPage,
			job:      idx,
			scenes:   kept,
			skipped:  page.Skipped,
			rejected: len(page.Scenes) - len(kept),
		}
	}
}

// classify names the reason a partition stopped. parent is the caller's
// context and deadline carries the run timeout.
func classify(parent, deadline context.Context, err error) string {
	switch {
	case parent.Err() != nil:
		return FailureAborted
	case errors.Is(deadline.Err(), context.DeadlineExceeded) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
		return FailureDeadline
	}

	if kind, ok := catalog.KindOf(err); ok {
		return kind.String()
	}
	if errors.Is(err, context.Canceled) {
		return FailureAborted
	}
	return FailurePermanent
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
