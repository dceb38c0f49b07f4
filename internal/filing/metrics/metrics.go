// Package metrics holds the Prometheus instruments for the filing pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates all pipeline instruments. A nil *Metrics is safe to use
// so tests can skip registration.
type Metrics struct {
	SubmissionsFiled  prometheus.Counter
	PreflightFailures prometheus.Counter
	UploadFailures    prometheus.Counter
	PollAttempts      prometheus.Counter
	StatusByOutcome   *prometheus.CounterVec
	UploadDuration    prometheus.Histogram
}

// New registers and returns all pipeline metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		SubmissionsFiled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rerfiler_submissions_filed_total",
			Help: "Documents successfully uploaded to the regulator",
		}),
		PreflightFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rerfiler_preflight_failures_total",
			Help: "Build attempts blocked by preflight validation",
		}),
		UploadFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rerfiler_upload_failures_total",
			Help: "Upload attempts that failed after transport retries",
		}),
		PollAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rerfiler_poll_attempts_total",
			Help: "Response polls performed",
		}),
		StatusByOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rerfiler_submission_outcomes_total",
			Help: "Terminal and review outcomes by status",
		}, []string{"status"}),
		UploadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rerfiler_upload_duration_seconds",
			Help:    "Wall time of document uploads including transport retries",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveUpload(d time.Duration) {
	if m == nil {
		return
	}
	m.UploadDuration.Observe(d.Seconds())
}

func (m *Metrics) IncFiled() {
	if m == nil {
		return
	}
	m.SubmissionsFiled.Inc()
}

func (m *Metrics) IncPreflightFailure() {
	if m == nil {
		return
	}
	m.PreflightFailures.Inc()
}

func (m *Metrics) IncUploadFailure() {
	if m == nil {
		return
	}
	m.UploadFailures.Inc()
}

func (m *Metrics) IncPollAttempt() {
	if m == nil {
		return
	}
	m.PollAttempts.Inc()
}

func (m *Metrics) IncOutcome(status string) {
	if m == nil {
		return
	}
	m.StatusByOutcome.WithLabelValues(status).Inc()
}
