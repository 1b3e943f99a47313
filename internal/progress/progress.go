// Package progress reports search run progress to loggers and metrics
// without letting a slow consumer stall the run.
package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robert-malhotra/planet-overlap/internal/observability"
)

// Progress is a snapshot of a running search.
type Progress struct {
	RunID     string `json:"run_id"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
	Pages     int    `json:"pages"`
	Scenes    int    `json:"scenes"`
}

// Done is the number of partitions finished either way.
func (p Progress) Done() int {
	return p.Completed + p.Failed
}

// Fraction returns the finished share of partitions in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done()) / float64(p.Total)
}

// Sink receives progress snapshots. Update must not block for long.
type Sink interface {
	Update(Progress)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Progress)

// Update implements Sink.
func (f SinkFunc) Update(p Progress) { f(p) }

// Discard drops every update.
var Discard Sink = SinkFunc(func(Progress) {})

// LogSink logs each snapshot at debug level and the final one at info.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that writes to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Update implements Sink.
func (s *LogSink) Update(p Progress) {
	level := slog.LevelDebug
	if p.Done() == p.Total {
		level = slog.LevelInfo
	}
	s.logger.Log(context.Background(), level, "search progress",
		slog.String("run_id", p.RunID),
		slog.Int("completed", p.Completed),
		slog.Int("failed", p.Failed),
		slog.Int("total", p.Total),
		slog.Int("pages", p.Pages),
		slog.Int("scenes", p.Scenes),
	)
}

// MetricsSink mirrors progress into Prometheus gauges.
type MetricsSink struct {
	metrics *observability.Metrics
}

// NewMetricsSink creates a sink backed by m.
func NewMetricsSink(m *observability.Metrics) *MetricsSink {
	return &MetricsSink{metrics: m}
}

// Update implements Sink.
func (s *MetricsSink) Update(p Progress) {
	s.metrics.SetProgress(p.Done(), p.Total)
}

// Multi fans an update out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(p Progress) {
		for _, s := range sinks {
			if s != nil {
				s.Update(p)
			}
		}
	})
}

// Async decouples a sink from its caller. Update never blocks: when the
// consumer falls behind, a stale pending snapshot is replaced by the newer one.
type Async struct {
	next Sink
	ch   chan Progress
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewAsync starts delivering updates to next on a separate goroutine.
// Call Close to flush and stop it.
func NewAsync(next Sink) *Async {
	a := &Async{
		next: next,
		ch:   make(chan Progress, 1),
		done: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for p := range a.ch {
		a.next.Update(p)
	}
}

// Update implements Sink.
func (a *Async) Update(p Progress) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	select {
	case a.ch <- p:
		return
	default:
	}
	// Drop the pending snapshot; the newer one supersedes it.
	select {
	case <-a.ch:
	default:
	}
	select {
	case a.ch <- p:
	default:
	}
}

// Close delivers any pending snapshot and waits for the consumer to finish.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.done
}
