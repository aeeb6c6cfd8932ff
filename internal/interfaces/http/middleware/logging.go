package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/prometheus"
)

// LoggingConfig configures RequestLogging.
type LoggingConfig struct {
	// SkipPaths are neither logged nor measured.
	SkipPaths []string
	// SlowThreshold upgrades successful requests to a warning.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig skips probes and the metrics endpoint. A prior-art run
// makes many completion calls, so only requests over a minute count as slow.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: time.Minute,
	}
}

// RequestLogging logs one line per request and records the HTTP metrics.
// The route label is the chi route pattern so path parameters do not
// explode metric cardinality.
func RequestLogging(logger logging.Logger, metrics *prometheus.AppMetrics, config LoggingConfig) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewNopAppMetrics()
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			active := metrics.HTTPActiveRequests.WithLabelValues(r.Method)
			active.Inc()
			next.ServeHTTP(ww, r)
			active.Dec()

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			metrics.RecordHTTPRequest(r.Method, route, status, elapsed)

			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("route", route),
				logging.Int("status", status),
				logging.Duration("elapsed", elapsed),
				logging.Int("bytes", ww.BytesWritten()),
				logging.String("remote_addr", r.RemoteAddr),
				logging.String("request_id", chimw.GetReqID(r.Context())),
			}
			switch {
			case status >= 500:
				logger.Error("request failed", fields...)
			case status >= 400:
				logger.Warn("request rejected", fields...)
			case config.SlowThreshold > 0 && elapsed >= config.SlowThreshold:
				logger.Warn("slow request", fields...)
			default:
				logger.Info("request completed", fields...)
			}
		})
	}
}
