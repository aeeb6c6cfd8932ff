package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func assertSeries(t *testing.T, c MetricsCollector, series ...string) {
	t.Helper()
	out := scrapeMetrics(t, c)
	for _, s := range series {
		assert.Contains(t, out, s)
	}
}

func TestAppMetrics_Pipeline(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordOutcome("success", "")
	m.RecordOutcome("failure", "AllJudgesFailedError")
	m.RecordJudge("")
	m.RecordJudge("")
	m.RecordJudge("ServiceTimeout")
	m.RecordStage("evaluating", "ok", 2*time.Second)
	m.RecordRetrievalHits("patents", 17)

	assertSeries(t, c,
		`test_unit_pipeline_runs_total{kind="",status="success"} 1`,
		`test_unit_pipeline_runs_total{kind="AllJudgesFailedError",status="failure"} 1`,
		`test_unit_judge_results_total{result="scored"} 2`,
		`test_unit_judge_results_total{result="degraded"} 1`,
		`test_unit_degraded_patents_total{kind="ServiceTimeout"} 1`,
		`test_unit_pipeline_stage_duration_seconds_count{result="ok",stage="evaluating"} 1`,
		`test_unit_retrieval_hits_sum{collection="patents"} 17`,
	)
}

func TestAppMetrics_Completion(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.ObserveCompletion("judge", "claude-sonnet-4-5", 1200, 80, time.Second, nil)
	m.ObserveCompletion("judge", "", 0, 0, time.Second, errors.New("boom"))

	assertSeries(t, c,
		`test_unit_llm_requests_total{model="claude-sonnet-4-5",operation="judge",status="success"} 1`,
		`test_unit_llm_requests_total{model="unknown",operation="judge",status="failure"} 1`,
		`test_unit_llm_tokens_total{direction="input",model="claude-sonnet-4-5"} 1200`,
		`test_unit_llm_tokens_total{direction="output",model="claude-sonnet-4-5"} 80`,
	)
}

func TestAppMetrics_BatchObserver(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.ObserveBatch("judge", 5, 4, 1, time.Second)
	m.ObserveCircuitBreaker("judge", "CLOSED", "OPEN")

	assertSeries(t, c,
		`test_unit_batch_items_total{batch="judge",result="success"} 4`,
		`test_unit_batch_items_total{batch="judge",result="failure"} 1`,
		`test_unit_circuit_breaker_transitions_total{breaker="judge",from="CLOSED",to="OPEN"} 1`,
	)
}

func TestAppMetrics_HTTPCacheHealth(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordHTTPRequest("POST", "/api/analyze-idea", 200, 3*time.Second)
	m.RecordCacheAccess("embedding", true)
	m.RecordCacheAccess("embedding", false)
	m.SetComponentHealth("milvus", true)
	m.SetComponentHealth("redis", false)

	assertSeries(t, c,
		`test_unit_http_requests_total{method="POST",route="/api/analyze-idea",status_code="200"} 1`,
		`test_unit_cache_access_total{cache="embedding",result="hit"} 1`,
		`test_unit_cache_access_total{cache="embedding",result="miss"} 1`,
		`test_unit_health_check_status{component="milvus"} 1`,
		`test_unit_health_check_status{component="redis"} 0`,
	)
}

func TestNewNopAppMetrics(t *testing.T) {
	m := NewNopAppMetrics()
	assert.NotPanics(t, func() {
		m.RecordOutcome("success", "")
		m.RecordJudge("JudgeProtocolError")
		m.ObserveBatch("judge", 1, 1, 0, time.Millisecond)
		m.SetComponentHealth("milvus", true)
	})
}
