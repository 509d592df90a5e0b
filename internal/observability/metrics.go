// Package observability exports Prometheus metrics for emulated and real
// requests and for the task queue.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intercall"

// Metrics holds the collectors. It satisfies app.RequestObserver and
// queue.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tasksPublished  *prometheus.CounterVec
	tasksFinished   *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	activeLanes     prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry,
// together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total requests, real and emulated.",
			},
			[]string{"method", "route", "status", "emulated"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "emulated"},
		),
		tasksPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "tasks_published_total",
				Help:      "Tasks published.",
			},
			[]string{"module", "queue"},
		),
		tasksFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "tasks_finished_total",
				Help:      "Tasks finished, by outcome.",
			},
			[]string{"module", "queue", "outcome"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "task_duration_seconds",
				Help:      "Task dispatch duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"module", "queue"},
		),
		activeLanes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "active_lanes",
			Help:      "Lanes with queued or running tasks.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.tasksPublished,
		m.tasksFinished,
		m.taskDuration,
		m.activeLanes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(method, route string, status int, emulated bool, d time.Duration) {
	em := strconv.FormatBool(emulated)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status), em).Inc()
	m.requestDuration.WithLabelValues(method, route, em).Observe(d.Seconds())
}

// TaskPublished records a publish.
func (m *Metrics) TaskPublished(module, queueName string) {
	m.tasksPublished.WithLabelValues(module, queueName).Inc()
}

// TaskFinished records a dispatched task.
func (m *Metrics) TaskFinished(module, queueName string, failed bool, d time.Duration) {
	outcome := "success"
	if failed {
		outcome = "error"
	}
	m.tasksFinished.WithLabelValues(module, queueName, outcome).Inc()
	m.taskDuration.WithLabelValues(module, queueName).Observe(d.Seconds())
}

// LaneStarted records a lane becoming active.
func (m *Metrics) LaneStarted() {
	m.activeLanes.Inc()
}

// LaneStopped records a lane becoming idle.
func (m *Metrics) LaneStopped() {
	m.activeLanes.Dec()
}
