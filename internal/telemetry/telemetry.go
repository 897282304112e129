// Package telemetry provides Prometheus metrics and OpenTelemetry tracing for
// the extractor.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "scene-extractor"

// Metrics holds all extractor Prometheus metrics
type Metrics struct {
	// Job metrics
	JobsTotal        *prometheus.CounterVec
	JobFailures      *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	JobsInFlight     prometheus.Gauge
	DescriptionCount prometheus.Histogram
	ModeDecisions    *prometheus.CounterVec

	// Adapter metrics
	AdapterCalls      *prometheus.CounterVec
	AdapterDuration   *prometheus.HistogramVec
	AdapterCandidates *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Engine pool metrics
	EngineState *prometheus.GaugeVec
}

// Provider wraps telemetry providers
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider registers the extractor metrics on a fresh registry, together
// with the Go runtime and process collectors.
func NewProvider() *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(reg)),
		registry: reg,
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Gatherer exposes the registry, mostly for tests.
func (p *Provider) Gatherer() prometheus.Gatherer {
	return p.registry
}

func initMetrics(f promauto.Factory) *Metrics {
	m := &Metrics{}
	initJobMetrics(f, m)
	initAdapterMetrics(f, m)

	m.CacheLookups = f.NewCounterVec(prometheus.CounterOpts{
		Name: "extractor_cache_lookups_total",
		Help: "Result cache lookups by outcome (lru, redis, miss)",
	}, []string{"result"})

	m.EngineState = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "extractor_engine_state",
		Help: "Engine health: 0 healthy, 1 unhealthy, 2 recovering",
	}, []string{"engine"})
	return m
}

func initJobMetrics(f promauto.Factory, m *Metrics) {
	m.JobsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "extractor_jobs_total",
		Help: "Extraction jobs by resolved mode and outcome",
	}, []string{"mode", "outcome"})

	m.JobFailures = f.NewCounterVec(prometheus.CounterOpts{
		Name: "extractor_job_failures_total",
		Help: "Failed extraction jobs by reason",
	}, []string{"reason"})

	m.JobDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extractor_job_duration_seconds",
		Help:    "Time to extract descriptions from one chapter",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"mode"})

	m.JobsInFlight = f.NewGauge(prometheus.GaugeOpts{
		Name: "extractor_jobs_in_flight",
		Help: "Extraction jobs currently running",
	})

	m.DescriptionCount = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "extractor_descriptions_per_job",
		Help:    "Descriptions returned per successful job",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	})

	m.ModeDecisions = f.NewCounterVec(prometheus.CounterOpts{
		Name: "extractor_mode_decisions_total",
		Help: "Mode selector decisions by requested and resolved mode",
	}, []string{"requested", "resolved"})
}

func initAdapterMetrics(f promauto.Factory, m *Metrics) {
	m.AdapterCalls = f.NewCounterVec(prometheus.CounterOpts{
		Name: "extractor_adapter_calls_total",
		Help: "Processor calls by outcome (ok, timeout, unavailable, engine_error, canceled)",
	}, []string{"processor", "outcome"})

	m.AdapterDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extractor_adapter_duration_seconds",
		Help:    "Time spent in one processor call",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"processor"})

	m.AdapterCandidates = f.NewCounterVec(prometheus.CounterOpts{
		Name: "extractor_adapter_candidates_total",
		Help: "Raw candidates produced per processor",
	}, []string{"processor"})
}

// RecordJob records a finished job. outcome is ok, cached or failed.
func (p *Provider) RecordJob(_ context.Context, mode, outcome string, duration time.Duration, descriptions int) {
	p.Metrics.JobsTotal.WithLabelValues(mode, outcome).Inc()
	p.Metrics.JobDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if outcome != "failed" {
		p.Metrics.DescriptionCount.Observe(float64(descriptions))
	}
}

// RecordJobFailure records a failed job with its reason
func (p *Provider) RecordJobFailure(_ context.Context, reason string) {
	p.Metrics.JobFailures.WithLabelValues(reason).Inc()
}

// RecordModeDecision records one selector decision
func (p *Provider) RecordModeDecision(_ context.Context, requested, resolved string) {
	p.Metrics.ModeDecisions.WithLabelValues(requested, resolved).Inc()
}

// RecordAdapterCall records one processor call
func (p *Provider) RecordAdapterCall(_ context.Context, processor, outcome string, duration time.Duration, candidates int) {
	p.Metrics.AdapterCalls.WithLabelValues(processor, outcome).Inc()
	p.Metrics.AdapterDuration.WithLabelValues(processor).Observe(duration.Seconds())
	if candidates > 0 {
		p.Metrics.AdapterCandidates.WithLabelValues(processor).Add(float64(candidates))
	}
}

// RecordCacheLookup records a cache lookup; result is lru, redis or miss.
func (p *Provider) RecordCacheLookup(_ context.Context, result string) {
	p.Metrics.CacheLookups.WithLabelValues(result).Inc()
}

// IncInFlight marks a job as started.
func (p *Provider) IncInFlight() {
	p.Metrics.JobsInFlight.Inc()
}

// DecInFlight marks a job as finished.
func (p *Provider) DecInFlight() {
	p.Metrics.JobsInFlight.Dec()
}

// SetEngineState sets an engine's health gauge.
func (p *Provider) SetEngineState(engine string, state int) {
	p.Metrics.EngineState.WithLabelValues(engine).Set(float64(state))
}

// StartSpan starts a new trace span.
// The caller is responsible for ending the span with span.End().
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span
}
