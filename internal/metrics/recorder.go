package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the metrics collaborator handed to job handlers
type Recorder struct {
	logger *slog.Logger
}

// NewRecorder creates a Recorder backed by the package collectors
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Gauge sets a dock sample. The docker_host tag selects the dock.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	DockMetric.WithLabelValues(tags["docker_host"], name).Set(value)
}

// ForgetDock drops every sample of a dock that left the cluster
func (r *Recorder) ForgetDock(host string) {
	DockMetric.DeletePartialMatch(prometheus.Labels{"docker_host": host})
}

// ASGCreateFailed counts an organization that got no docks and logs the reason
func (r *Recorder) ASGCreateFailed(org string, reason string) {
	ASGCreateFailed.Inc()
	r.logger.Warn("ASG create failed",
		slog.String("org", org),
		slog.String("reason", reason),
	)
}

// ObserveImagePush records the duration of one image push
func (r *Recorder) ObserveImagePush(t *Timer) {
	t.ObserveDuration(ImagePushDuration)
}
