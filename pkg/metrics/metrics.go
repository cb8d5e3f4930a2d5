package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the start and stop counters.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeInterrupted = "interrupted"
)

var (
	// Lifecycle metrics
	StartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecass_starts_total",
			Help: "Total number of Cassandra start attempts by outcome",
		},
		[]string{"outcome"},
	)

	StopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecass_stops_total",
			Help: "Total number of Cassandra stop attempts by outcome",
		},
		[]string{"outcome"},
	)

	StartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecass_start_duration_seconds",
			Help:    "Time from start request until Cassandra accepted connections",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
		},
	)

	RunningInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecass_running_instances",
			Help: "Number of Cassandra instances currently started by this process",
		},
	)

	// Shutdown metrics
	EscalationSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecass_escalation_steps_total",
			Help: "Total number of shutdown escalation steps executed by step",
		},
		[]string{"step"},
	)

	// Cache metrics
	ExtractionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecass_extractions_total",
			Help: "Total number of archive extractions into the cache",
		},
	)

	// Port metrics
	PortsAllocated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecass_ports_allocated_total",
			Help: "Total number of ephemeral ports handed out",
		},
	)
)

func init() {
	prometheus.MustRegister(StartsTotal)
	prometheus.MustRegister(StopsTotal)
	prometheus.MustRegister(StartDuration)
	prometheus.MustRegister(RunningInstances)
	prometheus.MustRegister(EscalationSteps)
	prometheus.MustRegister(ExtractionsTotal)
	prometheus.MustRegister(PortsAllocated)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in seconds on a histogram
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time on a labelled histogram
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
