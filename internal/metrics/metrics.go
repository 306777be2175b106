// Package metrics exports the auction server's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auction"

// Metrics holds every collector, registered on a private registry so several servers can coexist in
// one process (tests start many).
type Metrics struct {
	Registry *prometheus.Registry

	// Session metrics
	SessionsActive prometheus.Gauge
	RequestsTotal  *prometheus.CounterVec

	// Engine metrics
	BidsTotal *prometheus.CounterVec

	// Dispatcher metrics
	PushesTotal *prometheus.CounterVec

	// Scheduler metrics
	SweepsTotal      prometheus.Counter
	TransitionsTotal *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Currently connected websocket sessions",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests handled by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		BidsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bids_total",
				Help:      "Bids by outcome",
			},
			[]string{"outcome"},
		),
		PushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pushes_total",
				Help:      "Server pushes by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		SweepsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_sweeps_total",
				Help:      "Completed scheduler sweeps",
			},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auction_transitions_total",
				Help:      "Auction status transitions by target status",
			},
			[]string{"status"},
		),
		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scheduler_sweep_duration_seconds",
				Help:      "Scheduler sweep duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
