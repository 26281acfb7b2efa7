// Package metrics exposes keeper counters to Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orionkeeper"

// Metrics holds every collector the service records to.
type Metrics struct {
	registry *prometheus.Registry

	settlements      *prometheus.CounterVec
	roundsStarted    prometheus.Counter
	claims           *prometheus.CounterVec
	oracleRequests   *prometheus.CounterVec
	schedulerFailing prometheus.Gauge
	txConfirm        *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settlement attempts by result status.",
		}, []string{"status"}),
		roundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_started_total",
			Help:      "Rounds started by this keeper.",
		}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Relayed claims by result.",
		}, []string{"status"}),
		oracleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_requests_total",
			Help:      "Price oracle requests by kind and result.",
		}, []string{"kind", "status"}),
		schedulerFailing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_consecutive_failures",
			Help:      "Consecutive failed scheduler ticks.",
		}),
		txConfirm: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tx_confirm_seconds",
			Help:      "Time from submission to receipt per contract method.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"method"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.settlements, m.roundsStarted, m.claims, m.oracleRequests, m.schedulerFailing, m.txConfirm,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Settlement(status string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status).Inc()
}

func (m *Metrics) RoundStarted() {
	if m == nil {
		return
	}
	m.roundsStarted.Inc()
}

func (m *Metrics) Claim(status string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(status).Inc()
}

// OracleRequest records one upstream call. kind is "latest" or "historical".
func (m *Metrics) OracleRequest(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.oracleRequests.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) SchedulerFailures(n int) {
	if m == nil {
		return
	}
	m.schedulerFailing.Set(float64(n))
}

// TxConfirmed records how long method took to be mined.
func (m *Metrics) TxConfirmed(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.txConfirm.WithLabelValues(method).Observe(d.Seconds())
}
