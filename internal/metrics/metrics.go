// Package metrics defines the Prometheus instruments for the ledger daemon.
// The engine itself stays uninstrumented; measurement happens at the edges
// (HTTP middleware, the FHE decorator, and the journal sink).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the daemon's instruments. One instance is created at
// wiring time and shared by everything that measures.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec   // method, route, status
	HTTPDuration *prometheus.HistogramVec // route
	FHECalls     *prometheus.CounterVec   // op, outcome
	FHEDuration  *prometheus.HistogramVec // op
	Events       *prometheus.CounterVec   // kind
	SinkFailures *prometheus.CounterVec   // sink
}

// New registers the instrument set on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the instrument set on reg. Tests pass a fresh registry so
// parallel instances never collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veild_http_requests_total",
			Help: "HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veild_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		FHECalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veild_fhe_calls_total",
			Help: "Capability backend calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		FHEDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veild_fhe_call_duration_seconds",
			Help:    "Capability backend call latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veild_journal_events_total",
			Help: "Journal events recorded, by kind.",
		}, []string{"kind"}),
		SinkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veild_sink_failures_total",
			Help: "Event sink delivery failures, by sink.",
		}, []string{"sink"}),
	}
}
