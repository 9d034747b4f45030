// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a dedicated registry so tests can run
// multiple instances without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	PumpsTotal     prometheus.Counter
	PopsTotal      prometheus.Counter
	RetriesTotal   prometheus.Counter
	ConfirmedTotal prometheus.Counter
	FailedTotal    prometheus.Counter

	Pressure prometheus.Gauge
	Pot      prometheus.Gauge
	Queued   prometheus.Gauge
	InFlight prometheus.Gauge
}

// New creates the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PumpsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "balloon_pumps_applied_total",
			Help: "Pumps successfully applied to a round.",
		}),
		PopsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "balloon_pops_total",
			Help: "Rounds terminated by a pop.",
		}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "balloon_request_retries_total",
			Help: "Pump requests re-queued after a transient failure.",
		}),
		ConfirmedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "balloon_requests_confirmed_total",
			Help: "Pump requests that reached a confirmed terminal status.",
		}),
		FailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "balloon_requests_failed_total",
			Help: "Pump requests that reached a failed terminal status.",
		}),
		Pressure: factory.NewGauge(prometheus.GaugeOpts{
			Name: "balloon_round_pressure",
			Help: "Pressure of the active round.",
		}),
		Pot: factory.NewGauge(prometheus.GaugeOpts{
			Name: "balloon_round_pot",
			Help: "Pot of the active round.",
		}),
		Queued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "balloon_queue_depth",
			Help: "Requests currently queued.",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "balloon_queue_in_flight",
			Help: "Requests currently being dispatched.",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
