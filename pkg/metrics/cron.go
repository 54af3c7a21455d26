package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics instruments the worker's job runs. A zero value is a
// no-op so tests and local runs can skip registration entirely.
type CronJobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCronJobMetrics registers cron instrumentation on reg. Passing a nil
// registerer yields the no-op collector.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizpilot",
			Subsystem: "cron",
			Name:      "job_runs_total",
			Help:      "Cron job executions by job name and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bizpilot",
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Wall time per cron job run.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration)
	return m
}

func (m *CronJobMetrics) ObserveDuration(job string, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(jobLabel(job)).Observe(elapsed.Seconds())
}

func (m *CronJobMetrics) IncSuccess(job string) {
	m.incOutcome(job, "success")
}

func (m *CronJobMetrics) IncFailure(job string) {
	m.incOutcome(job, "failure")
}

func (m *CronJobMetrics) incOutcome(job, outcome string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(jobLabel(job), outcome).Inc()
}

func jobLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
