// Package telemetry holds the Prometheus registry shared by the scoring
// pipeline, the data sources, and the read-only HTTP server.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Metrics is the registry of all SignalRun metrics.
type Metrics struct {
	registry *prometheus.Registry

	PassDuration *prometheus.HistogramVec

	GatewayRequests *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec

	OpportunitiesScored prometheus.Gauge
	PassesTotal         prometheus.Counter
}

var defaultMetrics *Metrics

// Init sets up the process-wide metrics registry. Safe to call once from
// main; helpers are no-ops until it runs.
func Init() *Metrics {
	if defaultMetrics != nil {
		return defaultMetrics
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		PassDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalrun_pass_step_duration_seconds",
				Help:    "Duration of each scoring pass step in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),
		GatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_gateway_requests_total",
				Help: "Gateway requests by upstream subgraph and result",
			},
			[]string{"upstream", "result"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_cache_hits_total",
				Help: "Fetch cache hits by category",
			},
			[]string{"category"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_cache_misses_total",
				Help: "Fetch cache misses by category",
			},
			[]string{"category"},
		),
		OpportunitiesScored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalrun_opportunities_scored",
				Help: "Opportunity count produced by the most recent scoring pass",
			},
		),
		PassesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "signalrun_passes_total",
				Help: "Total completed scoring passes",
			},
		),
	}

	registry.MustRegister(
		m.PassDuration,
		m.GatewayRequests,
		m.CacheHits,
		m.CacheMisses,
		m.OpportunitiesScored,
		m.PassesTotal,
	)

	defaultMetrics = m
	log.Info().Msg("Telemetry registry initialized")
	return m
}

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler {
	if defaultMetrics == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(defaultMetrics.registry, promhttp.HandlerOpts{})
}

// RecordStep observes one pipeline step duration.
func RecordStep(step string, d time.Duration, err error) {
	if defaultMetrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	defaultMetrics.PassDuration.WithLabelValues(step, result).Observe(d.Seconds())
}

// RecordGatewayRequest counts one upstream request outcome.
func RecordGatewayRequest(upstream string, err error) {
	if defaultMetrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	defaultMetrics.GatewayRequests.WithLabelValues(upstream, result).Inc()
}

// RecordCacheHit counts a fetch cache hit.
func RecordCacheHit(category string) {
	if defaultMetrics == nil {
		return
	}
	defaultMetrics.CacheHits.WithLabelValues(category).Inc()
}

// RecordCacheMiss counts a fetch cache miss.
func RecordCacheMiss(category string) {
	if defaultMetrics == nil {
		return
	}
	defaultMetrics.CacheMisses.WithLabelValues(category).Inc()
}

// RecordPass records a completed scoring pass and its opportunity count.
func RecordPass(opportunities int) {
	if defaultMetrics == nil {
		return
	}
	defaultMetrics.PassesTotal.Inc()
	defaultMetrics.OpportunitiesScored.Set(float64(opportunities))
}

// Snapshot gathers current metric values keyed by fully-qualified name,
// for the debug endpoint.
func Snapshot() (map[string]float64, error) {
	if defaultMetrics == nil {
		return nil, fmt.Errorf("telemetry not initialized")
	}

	families, err := defaultMetrics.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	snapshot := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				snapshot[family.GetName()] += metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				snapshot[family.GetName()] = metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				snapshot[family.GetName()+"_count"] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return snapshot, nil
}
