package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/testutil"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", Subsystem: "unit"}, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func scrapeMetrics(t *testing.T, collector MetricsCollector) string {
	t.Helper()
	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewMetricsCollector(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{Subsystem: "unit"}, nil)
	assert.Error(t, err, "namespace required")

	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", EnableProcessMetrics: true, EnableGoMetrics: true}, nil)
	require.NoError(t, err)
	out := scrapeMetrics(t, c)
	assert.Contains(t, out, "go_goroutines")
}

func TestRegisterCounter(t *testing.T) {
	c := newTestCollector(t)
	vec := c.RegisterCounter("runs_total", "runs", "status")
	vec.WithLabelValues("success").Inc()
	vec.WithLabelValues("success").Add(2)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_runs_total{status="success"} 3`)
}

func TestRegister_SameNameReturnsExisting(t *testing.T) {
	c := newTestCollector(t)
	a := c.RegisterCounter("dup_total", "dup", "x")
	b := c.RegisterCounter("dup_total", "dup", "x")
	a.WithLabelValues("1").Inc()
	b.WithLabelValues("1").Inc()

	assert.Contains(t, scrapeMetrics(t, c), `test_unit_dup_total{x="1"} 2`)
}

func TestRegister_TypeMismatchIsNoop(t *testing.T) {
	log := testutil.NewMockLogger()
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test"}, log)
	require.NoError(t, err)

	c.RegisterCounter("thing", "thing")
	g := c.RegisterGauge("thing", "thing")
	assert.IsType(t, noopGaugeVec{}, g)
	assert.NotPanics(t, func() { g.WithLabelValues().Set(1) })
	assert.True(t, log.HasMessage("warn", "metric type mismatch"))
}

func TestRegisterGaugeAndHistogram(t *testing.T) {
	c := newTestCollector(t)
	g := c.RegisterGauge("up", "up", "component")
	g.WithLabelValues("milvus").Set(1)

	h := c.RegisterHistogram("latency_seconds", "latency", nil, "stage")
	h.WithLabelValues("retrieving").Observe(0.2)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_up{component="milvus"} 1`)
	assert.Contains(t, out, `test_unit_latency_seconds_count{stage="retrieving"} 1`)
}

func TestNoopCollector(t *testing.T) {
	c := NewNoopCollector()
	assert.NotPanics(t, func() {
		c.RegisterCounter("a", "a").WithLabelValues().Inc()
		c.RegisterGauge("b", "b").WithLabelValues().Dec()
		c.RegisterHistogram("c", "c", nil).WithLabelValues().Observe(1)
	})
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimer(t *testing.T) {
	c := newTestCollector(t)
	h := c.RegisterHistogram("timer_seconds", "timer", nil)
	timer := NewTimer(h.WithLabelValues())
	time.Sleep(time.Millisecond)
	assert.Greater(t, timer.ObserveDuration(), time.Duration(0))
	assert.Contains(t, scrapeMetrics(t, c), "test_unit_timer_seconds_count 1")
}
