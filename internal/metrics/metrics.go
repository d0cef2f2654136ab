// Package metrics provides Prometheus metrics for PageFinder
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for PageFinder
type Metrics struct {
	registry *prometheus.Registry

	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Text store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreDocumentsTotal    prometheus.Gauge
	StorePagesTotal        *prometheus.GaugeVec

	// Table detection metrics
	DocumentsSearchedTotal prometheus.Counter
	PageEvaluationsTotal   prometheus.Counter
	TablesFoundTotal       *prometheus.CounterVec
	DocumentSearchDuration prometheus.Histogram

	// Ingestion metrics
	IngestFilesTotal *prometheus.CounterVec
	IngestPagesTotal *prometheus.CounterVec

	ServerStartTime time.Time
}

// NewMetrics creates all metrics on a fresh registry, so tests can build
// as many instances as they like
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:        reg,
		ServerStartTime: time.Now(),
	}

	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefinder_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)
	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagefinder_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagefinder_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefinder_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"route", "status"},
	)
	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagefinder_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.StoreOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefinder_store_operations_total",
			Help: "Total number of text store operations",
		},
		[]string{"operation", "status"},
	)
	m.StoreOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagefinder_store_operation_duration_seconds",
			Help:    "Duration of text store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)
	m.StoreDocumentsTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagefinder_store_documents",
			Help: "Number of documents in the text store",
		},
	)
	m.StorePagesTotal = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagefinder_store_pages",
			Help: "Number of stored pages per text variant",
		},
		[]string{"variant"},
	)

	m.DocumentsSearchedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pagefinder_documents_searched_total",
			Help: "Total number of documents searched for tables",
		},
	)
	m.PageEvaluationsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pagefinder_page_evaluations_total",
			Help: "Total number of (table, page) evaluations",
		},
	)
	m.TablesFoundTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefinder_tables_found_total",
			Help: "Total number of documents a table was found in",
		},
		[]string{"table"},
	)
	m.DocumentSearchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pagefinder_document_search_duration_seconds",
			Help:    "Duration of searching one document for all tables",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	m.IngestFilesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefinder_ingest_files_total",
			Help: "Total number of files handled by ingestion",
		},
		[]string{"status"},
	)
	m.IngestPagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefinder_ingest_pages_total",
			Help: "Total number of page texts written by ingestion",
		},
		[]string{"variant"},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "pagefinder_server_uptime_seconds",
			Help: "Seconds since the process created its metrics",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// Registry returns the registry holding every metric
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP API request
func (m *Metrics) RecordHTTPRequest(route string, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordStoreOperation records a text store operation
func (m *Metrics) RecordStoreOperation(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateStoreStats updates text store gauges
func (m *Metrics) UpdateStoreStats(documents, digitalPages, ocrPages int) {
	m.StoreDocumentsTotal.Set(float64(documents))
	m.StorePagesTotal.WithLabelValues("digital").Set(float64(digitalPages))
	m.StorePagesTotal.WithLabelValues("ocr").Set(float64(ocrPages))
}

// RecordDocumentSearch records one document searched for every table
func (m *Metrics) RecordDocumentSearch(pageEvaluations int, tablesFound []string, duration time.Duration) {
	m.DocumentsSearchedTotal.Inc()
	m.PageEvaluationsTotal.Add(float64(pageEvaluations))
	for _, name := range tablesFound {
		m.TablesFoundTotal.WithLabelValues(name).Inc()
	}
	m.DocumentSearchDuration.Observe(duration.Seconds())
}

// RecordIngestFile records one file handled by ingestion
func (m *Metrics) RecordIngestFile(status string, digitalPages, ocrPages int) {
	m.IngestFilesTotal.WithLabelValues(status).Inc()
	if digitalPages > 0 {
		m.IngestPagesTotal.WithLabelValues("digital").Add(float64(digitalPages))
	}
	if ocrPages > 0 {
		m.IngestPagesTotal.WithLabelValues("ocr").Add(float64(ocrPages))
	}
}
