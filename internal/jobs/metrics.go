package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lateFeeFees   prometheus.Counter
	lateFeeAmount prometheus.Counter
	reminders     *prometheus.CounterVec
	expired       prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddLateFees records fees charged by a late fee run and the accrued total.
func (m *Metrics) AddLateFees(charged int, amount float64) {
	if m == nil || charged <= 0 {
		return
	}
	m.lateFeeFees.Add(float64(charged))
	if amount > 0 {
		m.lateFeeAmount.Add(amount)
	}
}

// AddReminders records reminders by outcome (queued or failed).
func (m *Metrics) AddReminders(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reminders.WithLabelValues(outcome).Add(float64(count))
}

// AddExpiredWaivers records waivers moved to expired.
func (m *Metrics) AddExpiredWaivers(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.expired.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "madrasa_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "madrasa_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "madrasa_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	lateFeeFees := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "madrasa_late_fee_charged_fees_total",
		Help: "Fees that carried a late charge after a scheduled late fee run.",
	})
	lateFeeAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "madrasa_late_fee_amount_total",
		Help: "Sum of late fee totals reported by scheduled runs.",
	})
	reminders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "madrasa_fee_reminders_total",
		Help: "Fee reminders handled by outcome.",
	}, []string{"outcome"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "madrasa_waivers_expired_total",
		Help: "Approved waivers expired by the nightly sweep.",
	})
	registerer.MustRegister(runs, failures, duration, lateFeeFees, lateFeeAmount, reminders, expired)
	return &Metrics{
		runs:          runs,
		failures:      failures,
		duration:      duration,
		lateFeeFees:   lateFeeFees,
		lateFeeAmount: lateFeeAmount,
		reminders:     reminders,
		expired:       expired,
	}
}
