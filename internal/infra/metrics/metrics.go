// Package metrics exposes reconciliation and request metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for zonebox.
type Metrics struct {
	registry        *prometheus.Registry
	sweepsTotal     prometheus.Counter
	sweepDuration   prometheus.Histogram
	sweepEmitters   prometheus.Gauge
	transitions     *prometheus.CounterVec
	failures        *prometheus.CounterVec
	activePlaylists prometheus.Gauge
	requestsTotal   prometheus.Counter
	errorsTotal     prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		sweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zonebox_sweeps_total",
			Help: "Total number of reconciliation sweeps",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zonebox_sweep_duration_seconds",
			Help:    "Duration of reconciliation sweeps",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		sweepEmitters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zonebox_sweep_emitters",
			Help: "Number of playlist-controlled emitters in the last sweep",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zonebox_transitions_total",
			Help: "Playback transitions issued, by action",
		}, []string{"action"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zonebox_failures_total",
			Help: "Reconciliation failures, by stage",
		}, []string{"stage"}),
		activePlaylists: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zonebox_active_playlists",
			Help: "Number of playlists with an active track",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zonebox_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zonebox_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.sweepsTotal,
		m.sweepDuration,
		m.sweepEmitters,
		m.transitions,
		m.failures,
		m.activePlaylists,
		m.requestsTotal,
		m.errorsTotal,
	)
	return m
}

// SweepCompleted records a finished sweep.
func (m *Metrics) SweepCompleted(d time.Duration, emitters int) {
	m.sweepsTotal.Inc()
	m.sweepDuration.Observe(d.Seconds())
	m.sweepEmitters.Set(float64(emitters))
}

// Transition records an issued playback transition.
func (m *Metrics) Transition(action string) {
	m.transitions.WithLabelValues(action).Inc()
}

// Failure records a failed reconciliation stage.
func (m *Metrics) Failure(stage string) {
	m.failures.WithLabelValues(stage).Inc()
}

// SetActivePlaylists sets the active playlists gauge.
func (m *Metrics) SetActivePlaylists(n int) {
	m.activePlaylists.Set(float64(n))
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves the registry.
// updateGauges is called before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
