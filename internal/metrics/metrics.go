package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dock health samples
	DockMetric = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "palantiri_dock_metric",
			Help: "Last diagnostic value reported by a dock",
		},
		[]string{"docker_host", "metric"},
	)

	// Job metrics
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palantiri_jobs_processed_total",
			Help: "Total number of processed jobs by name and outcome",
		},
		[]string{"job", "outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palantiri_job_duration_seconds",
			Help:    "Job handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	JobsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palantiri_jobs_published_total",
			Help: "Total number of published jobs by name",
		},
		[]string{"job"},
	)

	// Remote call metrics
	RemoteCallFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palantiri_remote_call_failures_total",
			Help: "Total number of failed docker API calls by operation, including retried ones",
		},
		[]string{"operation"},
	)

	ImagePushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "palantiri_image_push_duration_seconds",
			Help:    "Time taken to push an image to the user registry",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ASGCreateFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "palantiri_asg_create_failed_total",
			Help: "Total number of organizations with no docks after the creation delay",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palantiri_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(DockMetric)
	prometheus.MustRegister(JobsProcessed)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(JobsPublished)
	prometheus.MustRegister(RemoteCallFailures)
	prometheus.MustRegister(ImagePushDuration)
	prometheus.MustRegister(ASGCreateFailed)
	prometheus.MustRegister(APIRequestsTotal)
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

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in seconds on o
func (t *Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(t.Duration().Seconds())
}
