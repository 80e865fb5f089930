package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusRejected marks runs that will not be retried, such as a malformed
	// payload or an invalid closing period.
	StatusRejected = "rejected"
)

// Metrics holds the Prometheus collectors for the nightly closing, purge and
// warmup jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	processed   *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

var (
	sharedOnce sync.Once
	shared     *Metrics
)

// NewMetrics registers the collectors on registerer. A nil registerer shares
// one set on the default Prometheus registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	sharedOnce.Do(func() {
		shared = register(prometheus.DefaultRegisterer)
	})
	return shared
}

// Tracker measures one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	started time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, started: time.Now()}
}

// End records the run outcome and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	status := Status(err)
	m.runs.WithLabelValues(t.job, status).Inc()
	m.duration.WithLabelValues(t.job, status).Observe(time.Since(t.started).Seconds())
	if status == StatusSuccess {
		m.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	}
	return err
}

// Status maps a handler error to its status label.
func Status(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusRejected
	default:
		return StatusFailure
	}
}

// AddProcessed counts rows a run handled: months closed, notifications purged
// or dashboard views warmed.
func (m *Metrics) AddProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.processed.WithLabelValues(job).Add(float64(count))
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facility",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs by job and status.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "facility",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Background job run time.",
			// Closing recomputes over a full year can take tens of seconds.
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"job", "status"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facility",
			Subsystem: "jobs",
			Name:      "items_processed_total",
			Help:      "Rows handled by background jobs.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "facility",
			Subsystem: "jobs",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.processed, m.lastSuccess)
	return m
}
