package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler("v1.2.3", nil, CheckFunc{Component: "milvus", Fn: func(context.Context) error {
		t.Fatal("liveness must not check dependencies")
		return nil
	}})

	w := httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "v1.2.3", resp.Version)
}

func TestHealthHandler_Readiness(t *testing.T) {
	healthy := CheckFunc{Component: "milvus", Fn: func(context.Context) error { return nil }}
	broken := CheckFunc{Component: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name     string
		checkers []HealthChecker
		code     int
		status   string
	}{
		{"no dependencies", nil, http.StatusOK, "ready"},
		{"all healthy", []HealthChecker{healthy}, http.StatusOK, "ready"},
		{"one unhealthy", []HealthChecker{healthy, broken}, http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("dev", nil, tt.checkers...)
			w := httptest.NewRecorder()
			h.Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.code, w.Code)
			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Len(t, resp.Components, len(tt.checkers))
		})
	}
}

func TestHealthHandler_ReadinessReportsVersion(t *testing.T) {
	h := NewHealthHandler("dev", nil,
		CheckFunc{
			Component: "milvus",
			Fn:        func(context.Context) error { return nil },
			VersionFn: func(context.Context) (string, error) { return "v2.4.1", nil },
		},
		CheckFunc{
			Component: "redis",
			Fn:        func(context.Context) error { return nil },
			VersionFn: func(context.Context) (string, error) { return "", errors.New("no version") },
		},
		CheckFunc{
			Component: "down",
			Fn:        func(context.Context) error { return errors.New("refused") },
			VersionFn: func(context.Context) (string, error) {
				t.Error("version must not be read from an unhealthy component")
				return "", nil
			},
		},
	)
	w := httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "v2.4.1", resp.Components["milvus"].Version)
	assert.Equal(t, "healthy", resp.Components["redis"].Status)
	assert.Empty(t, resp.Components["redis"].Version)
	assert.Equal(t, "unhealthy", resp.Components["down"].Status)
}

func TestHealthHandler_FailureDoesNotCancelSiblings(t *testing.T) {
	h := NewHealthHandler("dev", nil,
		CheckFunc{Component: "milvus", Fn: func(context.Context) error { return errors.New("unhealthy") }},
		CheckFunc{Component: "redis", Fn: func(ctx context.Context) error { return ctx.Err() }},
	)
	w := httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Components["milvus"].Status)
	assert.Equal(t, "unhealthy", resp.Components["milvus"].Error)
	assert.Equal(t, "healthy", resp.Components["redis"].Status)
}
