// metrics.go - Metrics collection for the pool client daemon
package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the daemon's Prometheus collectors
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestErrors    *prometheus.CounterVec
	RequestRejected  *prometheus.CounterVec
	CallbackLatency  *prometheus.HistogramVec
	CallbackTimeouts prometheus.Counter
	ActiveRequests   prometheus.Gauge
	StartTime        prometheus.Gauge
}

// NewMetrics creates and registers the daemon metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghostpool",
			Name:      "requests_total",
			Help:      "Pool requests processed, by kind and result.",
		}, []string{"kind", "result"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghostpool",
			Name:      "request_errors_total",
			Help:      "Pool request failures, by stage.",
		}, []string{"stage"}),
		RequestRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghostpool",
			Name:      "requests_rejected_total",
			Help:      "Requests rejected before submission, by reason.",
		}, []string{"reason"}),
		CallbackLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ghostpool",
			Name:      "callback_latency_seconds",
			Help:      "Time from submission to observed callback.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"kind"}),
		CallbackTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostpool",
			Name:      "callback_timeouts_total",
			Help:      "Requests that timed out waiting for a callback.",
		}),
		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ghostpool",
			Name:      "active_requests",
			Help:      "Requests currently awaiting a callback.",
		}),
		StartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ghostpool",
			Name:      "start_time_seconds",
			Help:      "Unix time the daemon started.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestErrors,
		m.RequestRejected,
		m.CallbackLatency,
		m.CallbackTimeouts,
		m.ActiveRequests,
		m.StartTime,
	)
	m.StartTime.Set(float64(time.Now().Unix()))
	return m
}

// ObserveRequest records the outcome of a completed request
func (m *Metrics) ObserveRequest(kind string, err error, submittedAt time.Time) {
	if err != nil {
		m.RequestsTotal.WithLabelValues(kind, "error").Inc()
		return
	}
	m.RequestsTotal.WithLabelValues(kind, "ok").Inc()
	if !submittedAt.IsZero() {
		m.CallbackLatency.WithLabelValues(kind).Observe(time.Since(submittedAt).Seconds())
	}
}
