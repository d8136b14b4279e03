package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the process metrics registry. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	projectsStarted  *prometheus.CounterVec
	projectsDone     prometheus.Counter
	stateResets      prometheus.Counter
	saveFailures     prometheus.Counter
	activeProjectSet prometheus.Gauge
}

// New creates a Recorder with its own registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		projectsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_projects_started_total",
				Help: "Projects started, labelled by what happened to a previously active project",
			},
			[]string{"replaced"},
		),
		projectsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_projects_delivered_total",
			Help: "Projects marked as delivered",
		}),
		stateResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_state_resets_total",
			Help: "Full state resets",
		}),
		saveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_state_save_failures_total",
			Help: "State writes that failed and left the file stale",
		}),
		activeProjectSet: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_active_project",
			Help: "1 while a project is active, 0 otherwise",
		}),
	}

	r.registry.MustRegister(
		r.requestsTotal,
		r.requestDuration,
		r.projectsStarted,
		r.projectsDone,
		r.stateResets,
		r.saveFailures,
		r.activeProjectSet,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler serves the registry in the exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one served HTTP request
func (r *Recorder) ObserveRequest(method, path, status string, seconds float64) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(method, path, status).Inc()
	r.requestDuration.WithLabelValues(method, path).Observe(seconds)
}

// ProjectStarted records a start; replaced names the fate of a previous
// active project ("none", "overwritten" or "archived").
func (r *Recorder) ProjectStarted(replaced string) {
	if r == nil {
		return
	}
	r.projectsStarted.WithLabelValues(replaced).Inc()
}

// ProjectDelivered records a delivery
func (r *Recorder) ProjectDelivered() {
	if r == nil {
		return
	}
	r.projectsDone.Inc()
}

// StateReset records a reset
func (r *Recorder) StateReset() {
	if r == nil {
		return
	}
	r.stateResets.Inc()
}

// SaveFailed records a failed state write
func (r *Recorder) SaveFailed() {
	if r == nil {
		return
	}
	r.saveFailures.Inc()
}

// SetActive updates the active project gauge
func (r *Recorder) SetActive(active bool) {
	if r == nil {
		return
	}
	if active {
		r.activeProjectSet.Set(1)
	} else {
		r.activeProjectSet.Set(0)
	}
}
