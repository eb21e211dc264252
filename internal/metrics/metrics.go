// Package metrics exposes Prometheus collectors for the sync pipeline. All
// methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	EnrichmentLatency  prometheus.Histogram
	EnrichmentResults  *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	EnrichmentInFlight prometheus.Gauge
	EnrichmentQueued   prometheus.Gauge
	BreakerState       prometheus.Gauge
	RunOutcomes        *prometheus.CounterVec
	RunLatency         prometheus.Histogram
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		EnrichmentLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "legalpub_enrichment_fetch_duration_seconds",
			Help:    "Duration of per-process enrichment provider calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		EnrichmentResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "legalpub_enrichment_fetch_total",
			Help: "Enrichment provider calls by result",
		}, []string{"result"}), // result: "ok", "empty", "error"
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "legalpub_enrichment_cache_lookups_total",
			Help: "Enrichment cache lookups by outcome",
		}, []string{"outcome"}), // outcome: "hit", "miss"
		EnrichmentInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "legalpub_enrichment_in_flight",
			Help: "Enrichment calls currently executing",
		}),
		EnrichmentQueued: f.NewGauge(prometheus.GaugeOpts{
			Name: "legalpub_enrichment_queued",
			Help: "Enrichment calls waiting for a concurrency slot",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "legalpub_enrichment_breaker_state",
			Help: "Enrichment circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),
		RunOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "legalpub_sync_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),
		RunLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "legalpub_sync_run_duration_seconds",
			Help:    "End-to-end pipeline run duration",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// ObserveEnrichment records one provider call.
func (m *Metrics) ObserveEnrichment(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.EnrichmentLatency.Observe(d.Seconds())
	m.EnrichmentResults.WithLabelValues(result).Inc()
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookups.WithLabelValues(outcome).Inc()
}

// SetLimiterState tracks limiter occupancy. Its signature matches
// resilience.WithObserver.
func (m *Metrics) SetLimiterState(active, queued int) {
	if m == nil {
		return
	}
	m.EnrichmentInFlight.Set(float64(active))
	m.EnrichmentQueued.Set(float64(queued))
}

// SetBreakerState records the enrichment circuit breaker state.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}

// ObserveRun records a finished pipeline run.
func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunOutcomes.WithLabelValues(outcome).Inc()
	m.RunLatency.Observe(d.Seconds())
}
