// Package metrics exposes Prometheus collectors for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wippyai/impersonate-engine/client"
	"github.com/wippyai/impersonate-engine/request"
	"github.com/wippyai/impersonate-engine/resource"
)

const namespace = "impersonate"

// Metrics holds the engine collectors registered on one Registerer.
type Metrics struct {
	// ClientsActive tracks live client handles.
	ClientsActive prometheus.Gauge

	// RequestsTotal counts completed requests.
	// Labels: outcome (response, error, cancelled)
	RequestsTotal *prometheus.CounterVec

	// StreamBytes counts body bytes handed to readers.
	StreamBytes prometheus.Counter

	factory promauto.Factory
}

// New registers the collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		factory: f,
		ClientsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_active",
			Help:      "Number of live HTTP clients",
		}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of completed requests by outcome",
		}, []string{"outcome"}),
		StreamBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Total number of response body bytes delivered to readers",
		}),
	}
}

// ObserveClients keeps ClientsActive in step with r.
func (m *Metrics) ObserveClients(r *client.Registry) {
	r.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		switch e.Type {
		case resource.EventCreated:
			m.ClientsActive.Inc()
		case resource.EventDropped:
			m.ClientsActive.Dec()
		}
	}))
}

// ObserveRequests registers an in-flight gauge per request state, read from
// r at scrape time.
// Labels: state (pending, streaming)
func (m *Metrics) ObserveRequests(r *request.Registry) {
	for _, k := range []request.Kind{request.KindPending, request.KindStreaming} {
		m.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "requests_inflight",
			Help:        "Number of registered requests by state",
			ConstLabels: prometheus.Labels{"state": k.String()},
		}, func() float64 {
			return float64(r.Count(k))
		})
	}
}

// RecordOutcome counts a completed request.
func (m *Metrics) RecordOutcome(o request.Outcome) {
	m.RequestsTotal.WithLabelValues(string(o)).Inc()
}

// AddStreamBytes counts bytes written to a reader's sink.
func (m *Metrics) AddStreamBytes(n int64) {
	if n > 0 {
		m.StreamBytes.Add(float64(n))
	}
}
