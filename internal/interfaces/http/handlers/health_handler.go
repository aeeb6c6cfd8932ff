package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/prometheus"
)

// HealthChecker is a dependency the readiness probe checks.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// Versioner is implemented by checkers that can report the server version of
// a healthy dependency.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

// CheckFunc adapts a function to HealthChecker. VersionFn is optional.
type CheckFunc struct {
	Component string
	Fn        func(ctx context.Context) error
	VersionFn func(ctx context.Context) (string, error)
}

func (c CheckFunc) Name() string                    { return c.Component }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

func (c CheckFunc) Version(ctx context.Context) (string, error) {
	if c.VersionFn == nil {
		return "", nil
	}
	return c.VersionFn(ctx)
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	startAt  time.Time
	timeout  time.Duration
	metrics  *prometheus.AppMetrics
}

// NewHealthHandler creates a HealthHandler. metrics may be nil.
func NewHealthHandler(version string, metrics *prometheus.AppMetrics, checkers ...HealthChecker) *HealthHandler {
	if metrics == nil {
		metrics = prometheus.NewNopAppMetrics()
	}
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
		timeout:  5 * time.Second,
		metrics:  metrics,
	}
}

// LivenessResponse is the body of GET /healthz.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the body of GET /readyz.
type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

// ComponentCheck is the result for one dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Liveness never checks dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness checks every dependency concurrently; any failure is a 503.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	components := h.checkAll(ctx)
	resp := ReadinessResponse{Status: "ready", Components: components}
	code := http.StatusOK
	for _, c := range components {
		if c.Status != "healthy" {
			resp.Status = "not_ready"
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, resp)
}

// checkAll runs every checker. A failing checker does not cancel the others,
// so each error is reported to the errgroup as nil.
func (h *HealthHandler) checkAll(ctx context.Context) map[string]ComponentCheck {
	results := make(map[string]ComponentCheck, len(h.checkers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, checker := range h.checkers {
		checker := checker
		g.Go(func() error {
			start := time.Now()
			err := checker.Check(gctx)
			cc := ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(start).Truncate(time.Microsecond).String(),
			}
			if err != nil {
				cc.Status = "unhealthy"
				cc.Error = err.Error()
			} else if v, ok := checker.(Versioner); ok {
				// A version lookup failure does not make the component unready.
				if version, verr := v.Version(gctx); verr == nil {
					cc.Version = version
				}
			}
			h.metrics.SetComponentHealth(checker.Name(), err == nil)

			mu.Lock()
			results[checker.Name()] = cc
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
