package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uniosun/tacdra-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the request
// pipeline and the document workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	submissionsTotal *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	paymentsTotal    *prometheus.CounterVec
	trackingHits     prometheus.Counter
	trackingMisses   prometheus.Counter
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	submissionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tacdra_applications_submitted_total",
		Help: "Applications submitted, by category",
	}, []string{"category"})

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tacdra_status_transitions_total",
		Help: "Workflow status transitions, by target status",
	}, []string{"to"})

	paymentsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tacdra_payments_total",
		Help: "Payment settlements, by outcome",
	}, []string{"outcome"})

	trackingHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tacdra_tracking_cache_hits_total",
		Help: "Public tracking lookups served from cache",
	})

	trackingMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tacdra_tracking_cache_misses_total",
		Help: "Public tracking lookups that hit the database",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, submissionsTotal, transitionsTotal, paymentsTotal, trackingHits, trackingMisses, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		submissionsTotal: submissionsTotal,
		transitionsTotal: transitionsTotal,
		paymentsTotal:    paymentsTotal,
		trackingHits:     trackingHits,
		trackingMisses:   trackingMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordSubmission counts a new application.
func (m *MetricsService) RecordSubmission(category models.ApplicationCategory) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(string(category)).Inc()
}

// RecordTransition counts a workflow status change.
func (m *MetricsService) RecordTransition(to models.ApplicationStatus) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(to)).Inc()
}

// RecordPayment counts a settled payment by outcome.
func (m *MetricsService) RecordPayment(status models.PaymentStatus) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(string(status)).Inc()
}

// RecordTrackingLookup counts a public tracking cache hit or miss.
func (m *MetricsService) RecordTrackingLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.trackingHits.Inc()
	} else {
		m.trackingMisses.Inc()
	}
}
