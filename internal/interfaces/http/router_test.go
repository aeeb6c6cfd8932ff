package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-PriorArt/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-PriorArt/internal/interfaces/http/middleware"
)

type stubSearcher struct{}

func (stubSearcher) RunIdeaSearch(_ context.Context, idea string) domain.PipelineOutcome {
	return domain.NeedsClarification("run-1", "more detail on: "+idea)
}

func newTestRouter(t *testing.T, limiter middleware.RateLimiter) (http.Handler, prometheus.MetricsCollector) {
	t.Helper()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test_router"}, nil)
	require.NoError(t, err)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = []string{"*.example.com"}

	return NewRouter(RouterConfig{
		AnalyzeHandler:   handlers.NewAnalyzeHandler(stubSearcher{}, 50, 1<<20, nil),
		HealthHandler:    handlers.NewHealthHandler("test", nil),
		CORS:             cors,
		Logging:          middleware.DefaultLoggingConfig(),
		RateLimiter:      limiter,
		MetricsCollector: collector,
		Metrics:          prometheus.NewAppMetrics(collector),
	}), collector
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:4000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewRouter_Routes(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	tests := []struct {
		method, path, body string
		code               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodPost, AnalyzePath, `{"idea_text":"stroller"}`, http.StatusOK},
		{http.MethodPost, AnalyzePath, `{}`, http.StatusBadRequest},
		{http.MethodGet, AnalyzePath, "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestNewRouter_RecordsMetrics(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	serve(h, http.MethodPost, AnalyzePath, `{"idea_text":"stroller"}`)

	w := serve(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_router_")
	assert.Contains(t, w.Body.String(), `route="`+AnalyzePath+`"`)
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodOptions, AnalyzePath, nil)
	req.Header.Set("Origin", "https://ui.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "https://ui.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouter_RateLimitOnlyOnAnalyze(t *testing.T) {
	limiter := middleware.NewTokenBucketLimiter(0.001, 1, 0)
	defer limiter.Stop()
	h, _ := newTestRouter(t, limiter)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, AnalyzePath, `{"idea_text":"a"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodPost, AnalyzePath, `{"idea_text":"b"}`).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "").Code)
}
