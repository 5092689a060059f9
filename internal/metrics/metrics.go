// ABOUTME: Prometheus metrics for routed tool calls, sessions, and connectivity probes
// ABOUTME: Uses a private registry so tests and multiple gateways never collide

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"

	// unknownValue is used when a label value is not available.
	unknownValue = "unknown"
)

// Registry holds all gateway metrics. A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	CallsTotal     *prometheus.CounterVec
	CallDuration   *prometheus.HistogramVec
	ErrorsTotal    *prometheus.CounterVec
	SessionsOpened prometheus.Counter
	ProbesTotal    *prometheus.CounterVec
}

// New creates a registry. activeSessions, when non-nil, backs the
// sessions-active gauge and is read at scrape time.
func New(activeSessions func() int) *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		reg: reg,
		CallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adt_gateway_calls_total",
			Help: "Total number of routed tool calls",
		}, []string{"operation", "outcome"}),
		CallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adt_gateway_call_duration_seconds",
			Help:    "Routed tool call duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adt_gateway_errors_total",
			Help: "Total number of failed tool calls by error kind",
		}, []string{"kind"}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "adt_gateway_sessions_opened_total",
			Help: "Total number of client sessions opened",
		}),
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adt_gateway_probes_total",
			Help: "Total number of connectivity probes by diagnosis",
		}, []string{"diagnosis", "found"}),
	}

	if activeSessions != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "adt_gateway_sessions_active",
			Help: "Number of currently open client sessions",
		}, func() float64 { return float64(activeSessions()) })
	}

	return r
}

// ObserveCall records one routed call.
func (r *Registry) ObserveCall(operation string, success bool, kind string, d time.Duration) {
	if r == nil {
		return
	}
	if operation == "" {
		operation = unknownValue
	}
	outcome := outcomeSuccess
	if !success {
		outcome = outcomeError
		if kind == "" {
			kind = unknownValue
		}
		r.ErrorsTotal.WithLabelValues(kind).Inc()
	}
	r.CallsTotal.WithLabelValues(operation, outcome).Inc()
	r.CallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SessionOpened counts a new client session.
func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.SessionsOpened.Inc()
}

// ObserveProbe records a finished connectivity probe.
func (r *Registry) ObserveProbe(diagnosis string, found bool) {
	if r == nil {
		return
	}
	if diagnosis == "" {
		diagnosis = unknownValue
	}
	f := "false"
	if found {
		f = "true"
	}
	r.ProbesTotal.WithLabelValues(diagnosis, f).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
