// Command priorart-server serves the prior-art search API over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/turtacn/KeyIP-PriorArt/internal/bootstrap"
	"github.com/turtacn/KeyIP-PriorArt/internal/config"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/prometheus"
	httpserver "github.com/turtacn/KeyIP-PriorArt/internal/interfaces/http"
	"github.com/turtacn/KeyIP-PriorArt/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-PriorArt/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

const startupTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before configuration")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *envFile, *port); err != nil {
		fmt.Fprintf(os.Stderr, "priorart-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string, port int) error {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: []string{cfg.Log.Output},
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting priorart-server",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.Int("port", cfg.Server.Port))

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return err
	}
	metrics := prometheus.NewAppMetrics(collector)

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	components, err := bootstrap.Build(startCtx, cfg, metrics, logger)
	cancel()
	if err != nil {
		return err
	}

	if configPath != "" {
		watchLogLevel(configPath, logger)
	}

	checkers := []handlers.HealthChecker{
		handlers.CheckFunc{
			Component: "milvus",
			Fn:        components.Milvus.CheckHealth,
			VersionFn: components.Milvus.ServerVersion,
		},
	}
	if components.Redis != nil {
		checkers = append(checkers, handlers.CheckFunc{Component: "redis", Fn: components.Redis.Ping})
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.Server.CORSAllowedOrigins

	routerCfg := httpserver.RouterConfig{
		AnalyzeHandler: handlers.NewAnalyzeHandler(components.Pipeline, cfg.Pipeline.MatchThreshold, cfg.Server.MaxBodySize, logger),
		HealthHandler:  handlers.NewHealthHandler(version, metrics, checkers...),
		CORS:           cors,
		Logging:        middleware.DefaultLoggingConfig(),
		Logger:         logger,
		Metrics:        metrics,
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsCollector = collector
		routerCfg.MetricsPath = cfg.Metrics.Path
	}
	if cfg.Server.RateLimitRPS > 0 {
		limiter := middleware.NewTokenBucketLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, time.Minute)
		defer limiter.Stop()
		routerCfg.RateLimiter = limiter
	}

	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", logging.String("signal", sig.String()))
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("HTTP server error", logging.Err(serveErr))
		}
	}

	// In-flight runs finish before the pipeline's judge pool is drained.
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer closeCancel()
	components.Close(closeCtx)

	logger.Info("priorart-server stopped")
	return serveErr
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

// watchLogLevel applies log level changes from the config file without a
// restart. Other settings need a restart.
func watchLogLevel(path string, logger logging.Logger) {
	setter, ok := logger.(logging.LevelSetter)
	if !ok {
		return
	}
	config.Watch(path, func(cfg *config.Config) {
		setter.SetLevel(cfg.Log.Level)
		logger.Info("log level updated", logging.String("level", cfg.Log.Level))
	}, func(err error) {
		logger.Warn("ignoring invalid config change", logging.Err(err))
	})
}
