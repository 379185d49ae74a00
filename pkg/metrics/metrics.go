package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IsolatesRunning is the current number of isolates in the Starting or
	// Ready state, labeled by state, mirroring spec.md §4.7's state machine.
	IsolatesRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edgehost_isolates_running",
			Help: "Number of isolates currently in each state",
		},
		[]string{"state"},
	)

	PortsFree = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgehost_ports_free",
			Help: "Number of ports currently free in the isolate manager's pool",
		},
	)

	ColdStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgehost_cold_starts_total",
			Help: "Total number of cold starts by outcome (ready, startup_failed)",
		},
		[]string{"outcome"},
	)

	ColdStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edgehost_cold_start_duration_seconds",
			Help:    "Time from spawning a worker task to its readiness probe succeeding",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngressRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgehost_ingress_requests_total",
			Help: "Total number of ingress requests by slug and response status class",
		},
		[]string{"slug", "status_class"},
	)

	IngressRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgehost_ingress_request_duration_seconds",
			Help:    "Ingress request duration in seconds, from handle() entry to response written",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"slug"},
	)

	PermissionDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgehost_permission_denied_total",
			Help: "Total number of capability ops denied by the permission policy, by op class",
		},
		[]string{"op_class"},
	)
)

func init() {
	prometheus.MustRegister(IsolatesRunning)
	prometheus.MustRegister(PortsFree)
	prometheus.MustRegister(ColdStartsTotal)
	prometheus.MustRegister(ColdStartDuration)
	prometheus.MustRegister(IngressRequestsTotal)
	prometheus.MustRegister(IngressRequestDuration)
	prometheus.MustRegister(PermissionDeniedTotal)
}

// Handler returns the Prometheus scrape handler, mounted on the
// metrics-listen address per SPEC_FULL.md §6's config schema.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
