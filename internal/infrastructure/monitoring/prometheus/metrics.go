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

	// Pipeline
	PipelineRunsTotal     CounterVec
	PipelineStageDuration HistogramVec
	RetrievalHits         HistogramVec
	JudgeResultsTotal     CounterVec
	DegradedPatentsTotal  CounterVec

	// Completion service
	LLMRequestsTotal   CounterVec
	LLMRequestDuration HistogramVec
	LLMTokensUsed      CounterVec

	// Batch fan-out
	BatchItemsTotal        CounterVec
	BatchDuration          HistogramVec
	CircuitBreakerChanges  CounterVec

	// Infrastructure
	CacheAccessTotal  CounterVec
	HealthCheckStatus GaugeVec
}

var (
	DefaultHTTPDurationBuckets  = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}
	DefaultStageDurationBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	DefaultLLMDurationBuckets   = []float64{.5, 1, 2, 5, 10, 30, 60, 120}
	DefaultHitCountBuckets      = []float64{0, 1, 5, 10, 20, 50, 100}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "route", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "route")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "In-flight HTTP requests", "method")

	m.PipelineRunsTotal = collector.RegisterCounter("pipeline_runs_total", "Prior-art search runs by terminal status", "status", "kind")
	m.PipelineStageDuration = collector.RegisterHistogram("pipeline_stage_duration_seconds", "Duration of each pipeline stage", DefaultStageDurationBuckets, "stage", "result")
	m.RetrievalHits = collector.RegisterHistogram("retrieval_hits", "Raw hits returned by vector search", DefaultHitCountBuckets, "collection")
	m.JudgeResultsTotal = collector.RegisterCounter("judge_results_total", "Similarity judge outcomes per candidate", "result")
	m.DegradedPatentsTotal = collector.RegisterCounter("degraded_patents_total", "Candidates the judge could not score", "kind")

	m.LLMRequestsTotal = collector.RegisterCounter("llm_requests_total", "Completion requests", "model", "operation", "status")
	m.LLMRequestDuration = collector.RegisterHistogram("llm_request_duration_seconds", "Completion request duration", DefaultLLMDurationBuckets, "model", "operation")
	m.LLMTokensUsed = collector.RegisterCounter("llm_tokens_total", "Completion tokens", "model", "direction")

	m.BatchItemsTotal = collector.RegisterCounter("batch_items_total", "Batch items by result", "batch", "result")
	m.BatchDuration = collector.RegisterHistogram("batch_duration_seconds", "Batch wall time", DefaultStageDurationBuckets, "batch")
	m.CircuitBreakerChanges = collector.RegisterCounter("circuit_breaker_transitions_total", "Circuit breaker state changes", "breaker", "from", "to")

	m.CacheAccessTotal = collector.RegisterCounter("cache_access_total", "Cache lookups", "cache", "result")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")

	return m
}

// NewNopAppMetrics returns metrics that record nothing.
func NewNopAppMetrics() *AppMetrics {
	return NewAppMetrics(NewNoopCollector())
}

func (m *AppMetrics) RecordHTTPRequest(method, route string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordStage observes one pipeline stage. result is "ok" or an error kind.
func (m *AppMetrics) RecordStage(stage, result string, d time.Duration) {
	m.PipelineStageDuration.WithLabelValues(stage, result).Observe(d.Seconds())
}

// RecordOutcome counts a finished run. kind is empty unless status is failure.
func (m *AppMetrics) RecordOutcome(status, kind string) {
	m.PipelineRunsTotal.WithLabelValues(status, kind).Inc()
}

func (m *AppMetrics) RecordRetrievalHits(collection string, n int) {
	m.RetrievalHits.WithLabelValues(collection).Observe(float64(n))
}

// RecordJudge counts one judge outcome. A non-empty failureKind marks the
// candidate as degraded.
func (m *AppMetrics) RecordJudge(failureKind string) {
	if failureKind == "" {
		m.JudgeResultsTotal.WithLabelValues("scored").Inc()
		return
	}
	m.JudgeResultsTotal.WithLabelValues("degraded").Inc()
	m.DegradedPatentsTotal.WithLabelValues(failureKind).Inc()
}

// ObserveCompletion records one completion call.
func (m *AppMetrics) ObserveCompletion(operation, model string, inputTokens, outputTokens int64, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	if model == "" {
		model = "unknown"
	}
	m.LLMRequestsTotal.WithLabelValues(model, operation, status).Inc()
	m.LLMRequestDuration.WithLabelValues(model, operation).Observe(elapsed.Seconds())
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// ObserveBatch implements common.BatchObserver.
func (m *AppMetrics) ObserveBatch(name string, total, succeeded, failed int, elapsed time.Duration) {
	m.BatchItemsTotal.WithLabelValues(name, "success").Add(float64(succeeded))
	m.BatchItemsTotal.WithLabelValues(name, "failure").Add(float64(failed))
	m.BatchDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// ObserveCircuitBreaker implements common.BatchObserver.
func (m *AppMetrics) ObserveCircuitBreaker(name, from, to string) {
	m.CircuitBreakerChanges.WithLabelValues(name, from, to).Inc()
}

func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheAccessTotal.WithLabelValues(cache, result).Inc()
}

func (m *AppMetrics) SetComponentHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}
