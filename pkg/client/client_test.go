package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := NewClient(server.URL+"/", opts...)
	require.NoError(t, err)
	return c
}

type testLogger struct{ count int32 }

func (l *testLogger) Debugf(string, ...interface{}) { atomic.AddInt32(&l.count, 1) }
func (l *testLogger) Infof(string, ...interface{})  { atomic.AddInt32(&l.count, 1) }
func (l *testLogger) Errorf(string, ...interface{}) { atomic.AddInt32(&l.count, 1) }

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Equal(t, 2, c.retryMax)
	assert.Contains(t, c.userAgent, "priorart-go-client/")

	for _, bad := range []string{"", "ftp://host", "no-scheme", "http://%zz"} {
		_, err := NewClient(bad)
		assert.ErrorIs(t, err, ErrInvalidConfig, bad)
	}
}

func TestOptions(t *testing.T) {
	hc := &http.Client{}
	log := &testLogger{}
	c, err := NewClient("https://api.example.com",
		WithHTTPClient(hc),
		WithLogger(log),
		WithRetryMax(5),
		WithRetryMax(-1),
		WithRetryWait(time.Second, 2*time.Second),
		WithUserAgent("ui/1.0"),
		WithUserAgent(""),
	)
	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Same(t, log, c.logger)
	assert.Equal(t, 5, c.retryMax)
	assert.Equal(t, time.Second, c.retryWaitMin)
	assert.Equal(t, 2*time.Second, c.retryWaitMax)
	assert.Equal(t, "ui/1.0", c.userAgent)

	c, _ = NewClient("https://api.example.com", WithRetryWait(3*time.Second, time.Second), WithTimeout(time.Minute))
	assert.Equal(t, 3*time.Second, c.retryWaitMin)
	assert.Equal(t, 5*time.Second, c.retryWaitMax, "max below min is ignored")
	assert.Equal(t, time.Minute, c.httpClient.Timeout)
}

func TestAnalyzeIdea_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, AnalyzePath, r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "송풍 유모차", body["idea_text"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"success","chatResponse":"report","runId":"r1","degraded":0,
			"patentList":[{"matchstatus":"success","patentId":"KR1","relevanceScore":0.8},
			              {"matchstatus":"failed","patentId":"KR2","relevanceScore":null}]}`)
	})

	res, err := c.AnalyzeIdea(context.Background(), "송풍 유모차")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	require.Len(t, res.PatentList, 2)
	require.NotNil(t, res.PatentList[0].RelevanceScore)
	assert.InDelta(t, 0.8, *res.PatentList[0].RelevanceScore, 1e-9)
	assert.Nil(t, res.PatentList[1].RelevanceScore)
}

func TestAnalyzeIdea_Clarification(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"clarification_needed","chatResponse":"어떤 부분인가요?","patentList":[]}`)
	})
	res, err := c.AnalyzeIdea(context.Background(), "유모차")
	require.NoError(t, err)
	assert.Equal(t, "clarification_needed", res.Status)
	assert.NotNil(t, res.PatentList)
}

func TestAnalyzeIdea_BadRequestNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":"error","message":"No 'idea_text' provided."}`)
	})

	_, err := c.AnalyzeIdea(context.Background(), "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsBadRequest())
	assert.Equal(t, "No 'idea_text' provided.", apiErr.Message)
	assert.Nil(t, apiErr.Result)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAnalyzeIdea_FailedRunCarriesEnvelope(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"status":"error","message":"milvus down","runId":"r9","errorKind":"RetrievalError","stage":"retrieving","patentList":[]}`)
	})

	_, err := c.AnalyzeIdea(context.Background(), "idea")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	require.NotNil(t, apiErr.Result)
	assert.Equal(t, "RetrievalError", apiErr.Result.ErrorKind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "failed runs are not retried")
}

func TestAnalyzeIdea_RetriesUnavailable(t *testing.T) {
	var calls int32
	log := &testLogger{}
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status":"success","patentList":[]}`)
	}, WithLogger(log))

	res, err := c.AnalyzeIdea(context.Background(), "idea")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Positive(t, atomic.LoadInt32(&log.count))
}

func TestAnalyzeIdea_RetriesExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"status":"error","message":"Too many requests, please retry later."}`)
	}, WithRetryMax(1))

	_, err := c.AnalyzeIdea(context.Background(), "idea")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsRateLimited())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAnalyzeIdea_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetryWait(time.Hour, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.AnalyzeIdea(ctx, "idea")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReady(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/readyz", r.URL.Path)
		if !ready.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"status":"not_ready"}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ready"}`)
	})

	assert.NoError(t, c.Ready(context.Background()))
	ready.Store(false)
	err := c.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_ready")
}

func TestCalculateBackoff(t *testing.T) {
	c := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: 300 * time.Millisecond}
	for attempt := 1; attempt <= 4; attempt++ {
		b := c.calculateBackoff(attempt)
		base := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
		if base > c.retryWaitMax {
			base = c.retryWaitMax
		}
		assert.GreaterOrEqual(t, b, base, fmt.Sprintf("attempt %d", attempt))
		assert.Less(t, b, base+base/4+time.Nanosecond)
	}
}
