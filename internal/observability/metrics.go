// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for search runs.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Partition outcome labels.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Metrics bundles the collectors updated while a search runs. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	PagesFetched  *prometheus.CounterVec
	Partitions    *prometheus.CounterVec
	Retries       *prometheus.CounterVec
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	RunScenes     prometheus.Gauge
	ProgressDone  prometheus.Gauge
	ProgressTotal prometheus.Gauge
}

// NewMetrics registers search metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	pages, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "search_pages_fetched_total",
		Help: "Catalog result pages fetched, labeled by backend.",
	}, []string{"backend"}), "search_pages_fetched_total")
	if err != nil {
		return nil, err
	}

	partitions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "search_partitions_total",
		Help: "Partitions finished, labeled by backend and outcome.",
	}, []string{"backend", "status"}), "search_partitions_total")
	if err != nil {
		return nil, err
	}

	retries, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "search_retries_total",
		Help: "Catalog request retries after transient failures, labeled by backend.",
	}, []string{"backend"}), "search_retries_total")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "search_runs_total",
		Help: "Search runs finished, labeled by outcome.",
	}, []string{"status"}), "search_runs_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "search_run_duration_seconds",
		Help:    "Wall time of complete search runs.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}), "search_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	scenes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "search_last_run_scenes",
		Help: "Number of unique scenes returned by the most recent run.",
	}), "search_last_run_scenes")
	if err != nil {
		return nil, err
	}

	done, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "search_progress_partitions_done",
		Help: "Partitions finished in the current run.",
	}), "search_progress_partitions_done")
	if err != nil {
		return nil, err
	}

	total, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "search_progress_partitions_total",
		Help: "Partitions planned for the current run.",
	}), "search_progress_partitions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:      gatherer,
		PagesFetched:  pages,
		Partitions:    partitions,
		Retries:       retries,
		Runs:          runs,
		RunDuration:   duration,
		RunScenes:     scenes,
		ProgressDone:  done,
		ProgressTotal: total,
	}, nil
}

// ObservePage counts one fetched page.
func (m *Metrics) ObservePage(backend string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(backend).Inc()
}

// ObservePartition counts one finished partition.
func (m *Metrics) ObservePartition(backend, status string) {
	if m == nil {
		return
	}
	m.Partitions.WithLabelValues(backend, status).Inc()
}

// ObserveRetry counts one retried request.
func (m *Metrics) ObserveRetry(backend string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(backend).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, elapsed time.Duration, scenes int) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.RunScenes.Set(float64(scenes))
}

// SetProgress updates the progress gauges.
func (m *Metrics) SetProgress(done, total int) {
	if m == nil {
		return
	}
	m.ProgressDone.Set(float64(done))
	m.ProgressTotal.Set(float64(total))
}

// WriteTextfile writes the current metrics to path in the text exposition
// format read by the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return prometheus.WriteToTextfile(path, gatherer)
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
