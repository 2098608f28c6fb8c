package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Archive outcomes recorded under the "result" label.
const (
	ArchiveCreated  = "created"
	ArchiveRejected = "rejected"
	ArchiveFailed   = "failed"
)

// Metrics holds Prometheus collectors for the detection pipeline and its
// status server.
type Metrics struct {
	registry           *prometheus.Registry
	segmentsProcessed  prometheus.Counter
	segmentsDetected   prometheus.Counter
	archives           *prometheus.CounterVec
	archivePending     prometheus.Gauge
	processingDuration prometheus.Histogram
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		segmentsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparrowcam_segments_processed_total",
			Help: "Total number of live segments run through detection",
		}),
		segmentsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparrowcam_segments_detected_total",
			Help: "Total number of segments in which the subject was detected",
		}),
		archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparrowcam_archives_total",
			Help: "Archive attempts by result (created, rejected, failed)",
		}, []string{"result"}),
		archivePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sparrowcam_archive_pending_countdown",
			Help: "Segments left before the pending archive fires, -1 when idle",
		}),
		processingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sparrowcam_segment_processing_seconds",
			Help:    "Wall time spent on one segment (detection, annotation, scheduling, archive)",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparrowcam_http_requests_total",
			Help: "Total number of status server requests",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparrowcam_http_errors_total",
			Help: "Total number of status server responses with status >= 400",
		}),
	}
	m.archivePending.Set(-1)

	registry.MustRegister(
		m.segmentsProcessed,
		m.segmentsDetected,
		m.archives,
		m.archivePending,
		m.processingDuration,
		m.requestsTotal,
		m.errorsTotal,
	)
	return m
}

// ObserveSegment records one processed segment.
func (m *Metrics) ObserveSegment(detected bool, took time.Duration) {
	m.segmentsProcessed.Inc()
	if detected {
		m.segmentsDetected.Inc()
	}
	m.processingDuration.Observe(took.Seconds())
}

// IncArchive counts an archive attempt under result.
func (m *Metrics) IncArchive(result string) {
	m.archives.WithLabelValues(result).Inc()
}

// SetPending publishes the scheduler countdown; pass -1 when idle.
func (m *Metrics) SetPending(n int) {
	m.archivePending.Set(float64(n))
}

func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
