// Package http assembles the HTTP surface of the prior-art service.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-PriorArt/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-PriorArt/internal/interfaces/http/middleware"
)

// AnalyzePath is the idea analysis endpoint.
const AnalyzePath = "/api/analyze-idea"

// RouterConfig aggregates the handlers and middleware of the route tree.
type RouterConfig struct {
	AnalyzeHandler *handlers.AnalyzeHandler
	HealthHandler  *handlers.HealthHandler

	CORS    middleware.CORSConfig
	Logging middleware.LoggingConfig
	// RateLimiter, when set, throttles the analyze endpoint per client IP.
	RateLimiter middleware.RateLimiter

	Logger logging.Logger
	// MetricsCollector exposes /metrics when set; Metrics records request
	// counters and durations.
	MetricsCollector prometheus.MetricsCollector
	Metrics          *prometheus.AppMetrics
	MetricsPath      string
}

// NewRouter builds the route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Metrics, cfg.Logging))

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		r.Handle(cfg.MetricsPath, cfg.MetricsCollector.Handler())
	}

	if cfg.AnalyzeHandler != nil {
		r.Group(func(api chi.Router) {
			if cfg.RateLimiter != nil {
				api.Use(middleware.RateLimit(cfg.RateLimiter, nil))
			}
			api.Post(AnalyzePath, cfg.AnalyzeHandler.AnalyzeIdea)
		})
	}

	return r
}
