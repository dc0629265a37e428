package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric the service exports.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// gRPC
	GRPCRequestsTotal   CounterVec
	GRPCRequestDuration HistogramVec

	// Pipeline
	DocumentsTotal       CounterVec
	DocumentDuration     HistogramVec
	ChunkDetectionsTotal CounterVec
	ChunkDetectDuration  HistogramVec
	SpansRemovedTotal    CounterVec
	EntitiesTotal        CounterVec
	FuzzyMatchesTotal    CounterVec
	DetectionCacheTotal  CounterVec

	// Worker and storage
	MessagesTotal          CounterVec
	MessageProcessDuration HistogramVec
	ArtifactsTotal         CounterVec

	// Health
	HealthCheckStatus GaugeVec
}

// Default buckets.
var (
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultDocumentDurationBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}
	DefaultDetectDurationBuckets   = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
)

// NewAppMetrics registers all metrics with collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method", "path")

	m.GRPCRequestsTotal = collector.RegisterCounter("grpc_requests_total", "Total gRPC requests", "service", "method", "code")
	m.GRPCRequestDuration = collector.RegisterHistogram("grpc_request_duration_seconds", "gRPC request duration", DefaultHTTPDurationBuckets, "service", "method")

	m.DocumentsTotal = collector.RegisterCounter("documents_total", "Documents processed", "mode", "status")
	m.DocumentDuration = collector.RegisterHistogram("document_duration_seconds", "End-to-end document processing duration", DefaultDocumentDurationBuckets, "mode")
	m.ChunkDetectionsTotal = collector.RegisterCounter("chunk_detections_total", "Detector calls per chunk", "status")
	m.ChunkDetectDuration = collector.RegisterHistogram("chunk_detect_duration_seconds", "Detector call duration per chunk", DefaultDetectDurationBuckets)
	m.SpansRemovedTotal = collector.RegisterCounter("spans_removed_total", "Spans removed per pipeline stage", "stage")
	m.EntitiesTotal = collector.RegisterCounter("entities_total", "Final entities per label", "label")
	m.FuzzyMatchesTotal = collector.RegisterCounter("fuzzy_matches_total", "Variant occurrences replaced by fuzzy matching")
	m.DetectionCacheTotal = collector.RegisterCounter("detection_cache_total", "Detection cache lookups", "result")

	m.MessagesTotal = collector.RegisterCounter("messages_total", "Queue messages handled", "topic", "status")
	m.MessageProcessDuration = collector.RegisterHistogram("message_process_duration_seconds", "Queue message processing duration", DefaultDocumentDurationBuckets, "topic")
	m.ArtifactsTotal = collector.RegisterCounter("artifacts_total", "Artifact store operations", "operation", "status")

	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordHTTPRequest records one finished HTTP request.
func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordGRPCRequest records one finished gRPC call.
func RecordGRPCRequest(m *AppMetrics, service, method, code string, d time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(service, method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(service, method).Observe(d.Seconds())
}

// RecordMessage records one consumed queue message.
func RecordMessage(m *AppMetrics, topic string, d time.Duration, err error) {
	m.MessagesTotal.WithLabelValues(topic, status(err)).Inc()
	m.MessageProcessDuration.WithLabelValues(topic).Observe(d.Seconds())
}

// RecordArtifact records one artifact store call.
func RecordArtifact(m *AppMetrics, operation string, err error) {
	m.ArtifactsTotal.WithLabelValues(operation, status(err)).Inc()
}

// RecordHealth sets a component's health gauge.
func RecordHealth(m *AppMetrics, component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

// PipelineMetrics adapts AppMetrics to the pipeline and detection cache
// observer interfaces.
type PipelineMetrics struct{ m *AppMetrics }

// NewPipelineMetrics wraps m.
func NewPipelineMetrics(m *AppMetrics) *PipelineMetrics { return &PipelineMetrics{m: m} }

func (p *PipelineMetrics) ObserveChunkDetection(d time.Duration, err error) {
	p.m.ChunkDetectionsTotal.WithLabelValues(status(err)).Inc()
	p.m.ChunkDetectDuration.WithLabelValues().Observe(d.Seconds())
}

func (p *PipelineMetrics) ObserveStageRemoved(stage string, n int) {
	if n > 0 {
		p.m.SpansRemovedTotal.WithLabelValues(stage).Add(float64(n))
	}
}

func (p *PipelineMetrics) ObserveEntities(label string, n int) {
	if n > 0 {
		p.m.EntitiesTotal.WithLabelValues(label).Add(float64(n))
	}
}

func (p *PipelineMetrics) ObserveFuzzyMatches(n int) {
	if n > 0 {
		p.m.FuzzyMatchesTotal.WithLabelValues().Add(float64(n))
	}
}

func (p *PipelineMetrics) ObserveDocument(mode string, d time.Duration, err error) {
	p.m.DocumentsTotal.WithLabelValues(mode, status(err)).Inc()
	p.m.DocumentDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveCacheAccess counts detection cache hits and misses.
func (p *PipelineMetrics) ObserveCacheAccess(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.m.DetectionCacheTotal.WithLabelValues(result).Inc()
}

//Personal.AI order the ending
