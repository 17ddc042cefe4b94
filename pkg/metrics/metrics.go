// Package metrics exposes Prometheus collectors for hdm runs.
//
//	metrics.Steps.WithLabelValues("sourcing post-pull", "success", "mysql").Inc()
//	timer := metrics.NewTimer()
//	... ledger call ...
//	metrics.LedgerLatency.WithLabelValues("insert").Observe(timer.Stop().Seconds())
//
// Collectors are registered with the default registry; Handler serves them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Steps counts terminal ledger transitions.
	Steps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdm_steps_total",
			Help: "Completed source and sink steps by action, status and adapter type",
		},
		[]string{"action", "status", "type"},
	)

	// Records counts rows moved, by direction (pulled or pushed).
	Records = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdm_records_total",
			Help: "Rows pulled from sources and pushed to sinks",
		},
		[]string{"direction", "type"},
	)

	// RunningLinks is the number of data links currently executing.
	RunningLinks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hdm_running_links",
			Help: "Data links currently executing",
		},
	)

	// LedgerLatency tracks state ledger calls.
	LedgerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hdm_ledger_call_duration_seconds",
			Help:    "State ledger call latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	// AdmissionWait tracks how long pressurable links wait for a slot.
	AdmissionWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hdm_admission_wait_seconds",
			Help:    "Time a pressurable link waited for admission",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)
)

// Direction labels for Records.
const (
	Pulled = "pulled"
	Pushed = "pushed"
)

// Timer measures an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveLedger records the latency of a ledger call started at t.
func ObserveLedger(op string, t *Timer) {
	LedgerLatency.WithLabelValues(op).Observe(t.Stop().Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
