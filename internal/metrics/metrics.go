// Package metrics provides Prometheus metrics for the LyfeHub server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	TransitionsTotal *prometheus.CounterVec
	ReviewsTotal     *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	TasksByStatus    *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lyfehub_requests_total",
				Help: "Total number of HTTP requests by route and status.",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lyfehub_request_duration_seconds",
				Help:    "Request processing duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lyfehub_task_transitions_total",
				Help: "Total number of task status transitions by from and to status.",
			},
			[]string{"from", "to"},
		),
		ReviewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lyfehub_reviews_total",
				Help: "Total number of review submissions by type and result.",
			},
			[]string{"type", "result"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lyfehub_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		TasksByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lyfehub_tasks_by_status",
				Help: "Current number of tasks in each status.",
			},
			[]string{"status"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.TransitionsTotal)
	reg.MustRegister(m.ReviewsTotal)
	reg.MustRegister(m.ErrorsTotal)
	reg.MustRegister(m.TasksByStatus)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(route, status string) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}

// ObserveDuration records request duration.
func (m *Metrics) ObserveDuration(route string, seconds float64) {
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordTransition increments the status transition counter.
func (m *Metrics) RecordTransition(from, to string) {
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordReview increments the review submission counter.
func (m *Metrics) RecordReview(reviewType, result string) {
	m.ReviewsTotal.WithLabelValues(reviewType, result).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// SetTaskCount sets the gauge for a status bucket.
func (m *Metrics) SetTaskCount(status string, count float64) {
	m.TasksByStatus.WithLabelValues(status).Set(count)
}
