// Package metrics wires the pool, executor, and script-repository
// activity of this engine into Prometheus collectors, grounded on the
// teacher's internal/metrics/prometheus.go: same package-global
// registry, same namespace-and-buckets InitPrometheus entry point, same
// nil-receiver-safe Record*/Set*/Inc* accessor style so callers don't
// need to nil-check before every metric update.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// collectors holds every registered Prometheus metric. The zero value
// is unusable; obtain one via InitPrometheus.
type collectors struct {
	registry *prometheus.Registry

	commandsTotal    *prometheus.CounterVec
	commandErrors    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	borrowTimeouts   prometheus.Counter
	executorsCreated prometheus.Counter
	executorsRetired *prometheus.CounterVec

	poolAvailable prometheus.Gauge
	poolInUse     prometheus.Gauge
	poolHealthy   prometheus.Gauge

	scriptsSaved   prometheus.Counter
	scriptsLoaded  *prometheus.CounterVec
	scriptsTampers prometheus.Counter
}

var m *collectors

// InitPrometheus registers every collector under namespace with the
// given latency histogram buckets (milliseconds). A nil or empty
// buckets slice falls back to defaultBuckets.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	c := &collectors{
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of bridge commands dispatched to an executor",
		}, []string{"command", "security_mode"}),

		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_errors_total",
			Help:      "Total number of bridge commands that failed, by error kind",
		}, []string{"command", "kind"}),

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_ms",
			Help:      "Bridge command round-trip duration in milliseconds",
			Buckets:   buckets,
		}, []string{"command"}),

		borrowTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_borrow_timeouts_total",
			Help:      "Total number of Pool.Borrow calls that failed with TIMEOUT_BORROW",
		}),

		executorsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executors_created_total",
			Help:      "Total number of child worker processes spawned",
		}),

		executorsRetired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executors_retired_total",
			Help:      "Total number of child worker processes retired, by reason",
		}, []string{"reason"}),

		poolAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_available",
			Help:      "Number of idle, healthy executors currently in the pool",
		}),

		poolInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_in_use",
			Help:      "Number of executors currently on loan to a caller",
		}),

		poolHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_healthy",
			Help:      "Number of executors in the pool that are currently healthy",
		}),

		scriptsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scripts_saved_total",
			Help:      "Total number of script repository saves",
		}),

		scriptsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scripts_loaded_total",
			Help:      "Total number of script repository loads, by outcome",
		}, []string{"outcome"}),

		scriptsTampers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scripts_tamper_detected_total",
			Help:      "Total number of script loads that failed signature verification",
		}),
	}

	registry.MustRegister(
		c.commandsTotal, c.commandErrors, c.commandDuration,
		c.borrowTimeouts, c.executorsCreated, c.executorsRetired,
		c.poolAvailable, c.poolInUse, c.poolHealthy,
		c.scriptsSaved, c.scriptsLoaded, c.scriptsTampers,
	)

	m = c
}

// RecordCommand records the outcome and latency of one bridge command.
// kind is the empty string on success.
func RecordCommand(command, securityMode, kind string, durationMs int64) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, securityMode).Inc()
	m.commandDuration.WithLabelValues(command).Observe(float64(durationMs))
	if kind != "" {
		m.commandErrors.WithLabelValues(command, kind).Inc()
	}
}

// IncBorrowTimeout records one TIMEOUT_BORROW outcome.
func IncBorrowTimeout() {
	if m == nil {
		return
	}
	m.borrowTimeouts.Inc()
}

// IncExecutorCreated records one successful Executor spawn.
func IncExecutorCreated() {
	if m == nil {
		return
	}
	m.executorsCreated.Inc()
}

// IncExecutorRetired records one Executor leaving the pool, tagged
// with why ("unhealthy" or "resize").
func IncExecutorRetired(reason string) {
	if m == nil {
		return
	}
	m.executorsRetired.WithLabelValues(reason).Inc()
}

// SetPoolStats snapshots the Pool's current gauges.
func SetPoolStats(available, inUse, healthy int) {
	if m == nil {
		return
	}
	m.poolAvailable.Set(float64(available))
	m.poolInUse.Set(float64(inUse))
	m.poolHealthy.Set(float64(healthy))
}

// IncScriptSaved records one script repository save.
func IncScriptSaved() {
	if m == nil {
		return
	}
	m.scriptsSaved.Inc()
}

// IncScriptLoaded records one script repository load, tagged "ok",
// "not_found", or "tamper".
func IncScriptLoaded(outcome string) {
	if m == nil {
		return
	}
	m.scriptsLoaded.WithLabelValues(outcome).Inc()
	if outcome == "tamper" {
		m.scriptsTampers.Inc()
	}
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics
// scraping, or a 503 placeholder if InitPrometheus was never called.
func PrometheusHandler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
