// Package metrics exposes Tascade's Prometheus collectors, ported from the
// teacher's internal/app/metrics package and re-pointed at the scheduler,
// gate engine, and HTTP transport instead of function/automation execution.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds Tascade's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tascade",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tascade",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tascade",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	// ClaimAttempts counts scheduler pull-queue claim attempts by outcome
	// ("claimed", "empty", "stale", "conflict").
	ClaimAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tascade",
		Subsystem: "scheduler",
		Name:      "claim_attempts_total",
		Help:      "Total number of claim attempts by outcome.",
	}, []string{"outcome"})

	// LeaseSweeps counts leases reclaimed by the expiry sweep.
	LeaseSweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tascade",
		Subsystem: "scheduler",
		Name:      "lease_sweep_total",
		Help:      "Total number of expired leases reclaimed by the background sweep.",
	}, []string{"kind"})

	// GateEvaluations counts gate rule evaluations by whether they
	// synthesized a checkpoint.
	GateEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tascade",
		Subsystem: "gate",
		Name:      "rule_evaluations_total",
		Help:      "Total number of gate rule evaluations.",
	}, []string{"synthesized"})

	// OpenCheckpoints tracks the current count of open checkpoints per
	// project, refreshed by the gate tick service.
	OpenCheckpoints = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tascade",
		Subsystem: "gate",
		Name:      "open_checkpoints",
		Help:      "Current number of open checkpoints by project.",
	}, []string{"project_id"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ClaimAttempts,
		LeaseSweeps,
		GateEvaluations,
		OpenCheckpoints,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// InstrumentHandler wraps next with request-count and latency collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		httpRequests.WithLabelValues(strings.ToUpper(r.Method), canonicalPath(r), strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(strings.ToUpper(r.Method), canonicalPath(r)).Observe(duration.Seconds())
	})
}

func canonicalPath(r *http.Request) string {
	return r.URL.Path
}
