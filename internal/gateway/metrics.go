package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics owns the server's Prometheus registry and collectors.
type metrics struct {
	registry *prometheus.Registry

	attemptsStarted   prometheus.Counter
	attemptsConnected *prometheus.CounterVec
	attemptsFailed    *prometheus.CounterVec
	attemptsCanceled  prometheus.Counter
}

func newMetrics(activeAttempts, pollTicks, reconcileRuns func() float64) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		attemptsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walink_attempts_started_total",
			Help: "Connection attempts started.",
		}),
		attemptsConnected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walink_attempts_connected_total",
			Help: "Attempts that reached connected, by winning source.",
		}, []string{"source"}),
		attemptsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walink_attempts_failed_total",
			Help: "Attempts that failed, by reason.",
		}, []string{"reason"}),
		attemptsCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walink_attempts_canceled_total",
			Help: "Attempts canceled by the caller.",
		}),
	}

	m.registry.MustRegister(
		m.attemptsStarted,
		m.attemptsConnected,
		m.attemptsFailed,
		m.attemptsCanceled,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "walink_active_attempts",
			Help: "Connection attempts currently in flight.",
		}, activeAttempts),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "walink_status_poll_ticks_total",
			Help: "Status-poll queries issued by active attempts.",
		}, pollTicks),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "walink_reconcile_runs_total",
			Help: "Reconcile passes started.",
		}, reconcileRuns),
		collectors.NewGoCollector(),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
