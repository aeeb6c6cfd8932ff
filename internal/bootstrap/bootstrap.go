// Package bootstrap builds the prior-art pipeline and its infrastructure from
// configuration. Both binaries share it.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/turtacn/KeyIP-PriorArt/internal/application/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/config"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/embedding"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/llm/anthropic"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/search/milvus"
	"github.com/turtacn/KeyIP-PriorArt/internal/intelligence/completion"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// Components are the long-lived objects of one process.
type Components struct {
	Pipeline *priorart.Pipeline
	Milvus   *milvus.Client
	// Redis is nil unless the embedding cache is enabled.
	Redis *redis.Client

	closers []func(context.Context) error
	logger  logging.Logger
}

// Close releases resources in reverse construction order.
func (c *Components) Close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			c.logger.Warn("close failed", logging.Err(err))
		}
	}
	c.closers = nil
}

func (c *Components) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Build connects every collaborator and assembles the pipeline. On error,
// whatever was already connected is closed. metrics may be nil.
func Build(ctx context.Context, cfg *config.Config, metrics *prometheus.AppMetrics, logger logging.Logger) (*Components, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewNopAppMetrics()
	}
	c := &Components{logger: logger}

	fail := func(err error) (*Components, error) {
		c.Close(context.Background())
		return nil, err
	}

	embedder, err := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		TaskType:  cfg.Embedding.TaskType,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("embedding: %w", err))
	}

	if cfg.Redis.Enabled {
		rc, err := newRedisClient(cfg, logger)
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		c.Redis = rc
		c.onClose(func(context.Context) error { return rc.Close() })

		if cfg.Embedding.CacheEnabled {
			cache := redis.NewRedisCache(rc, logger, redis.WithPrefix(cfg.Redis.KeyPrefix))
			embedder = embedding.NewCachedEmbedder(embedder, cache, cfg.Embedding.CacheTTL).WithObserver(metrics)
		}
	}

	mc, err := milvus.NewClient(milvus.ClientConfig{
		Address:        cfg.Milvus.Addr,
		Username:       cfg.Milvus.Username,
		Password:       cfg.Milvus.Password,
		DBName:         cfg.Milvus.DBName,
		ConnectTimeout: cfg.Milvus.ConnectTimeout,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("milvus: %w", err))
	}
	c.Milvus = mc
	c.onClose(func(context.Context) error { return mc.Close() })

	metric, err := milvus.ParseMetricType(cfg.Milvus.MetricType)
	if err != nil {
		return fail(err)
	}
	consistency, err := milvus.ParseConsistencyLevel(cfg.Milvus.ConsistencyLevel)
	if err != nil {
		return fail(err)
	}

	inspector := milvus.NewCollectionInspector(mc, logger)
	if err := inspector.Verify(ctx, milvus.CollectionExpectation{
		Name:         cfg.Milvus.Collection,
		VectorField:  cfg.Milvus.VectorField,
		OutputFields: cfg.Milvus.OutputFields,
		Dimension:    cfg.Embedding.Dimension,
	}); err != nil {
		return fail(fmt.Errorf("milvus collection: %w", err))
	}

	searcher := milvus.NewSearcher(mc, milvus.SearcherConfig{
		NProbe:           cfg.Milvus.NProbe,
		ConsistencyLevel: consistency,
	}, logger)
	retriever, err := milvus.NewPatentRetriever(searcher, embedder, milvus.RetrieverConfig{
		Collection:   cfg.Milvus.Collection,
		VectorField:  cfg.Milvus.VectorField,
		MetricType:   metric,
		OutputFields: cfg.Milvus.OutputFields,
	}, logger)
	if err != nil {
		return fail(err)
	}

	llm, err := anthropic.NewClient(anthropic.Config{
		APIKey:      cfg.Completion.APIKey,
		BaseURL:     cfg.Completion.BaseURL,
		Model:       cfg.Completion.Model,
		MaxTokens:   cfg.Completion.MaxTokens,
		Temperature: cfg.Completion.Temperature,
		MaxRetries:  cfg.Completion.MaxRetries,
		Timeout:     cfg.Completion.Timeout,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("completion: %w", err))
	}

	pipeline, err := priorart.NewPipeline(priorart.PipelineDeps{
		Router:      priorart.NewRouter(completion.Observed(llm, "router", metrics), logger),
		Retriever:   retriever,
		Judge:       priorart.NewJudge(completion.Observed(llm, "judge", metrics), logger),
		Synthesizer: priorart.NewSynthesizer(completion.Observed(llm, "synthesizer", metrics), logger),
		Config:      cfg.Pipeline,
		Collection:  cfg.Milvus.Collection,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return fail(err)
	}
	c.Pipeline = pipeline
	c.onClose(pipeline.Close)

	logger.Info("pipeline ready",
		logging.String("collection", cfg.Milvus.Collection),
		logging.String("embedding_model", embedder.Model()),
		logging.String("completion_model", cfg.Completion.Model),
		logging.Bool("embedding_cache", cfg.Redis.Enabled && cfg.Embedding.CacheEnabled))
	return c, nil
}

// ErrCacheDisabled is returned by FlushEmbeddingCache when Redis is off.
var ErrCacheDisabled = errors.New(errors.ErrCodeValidation, "embedding cache is not enabled (redis.enabled is false)")

// FlushEmbeddingCache deletes every cached query vector and returns how many
// were removed.
func FlushEmbeddingCache(ctx context.Context, cfg *config.Config, logger logging.Logger) (int64, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if !cfg.Redis.Enabled {
		return 0, ErrCacheDisabled
	}
	rc, err := newRedisClient(cfg, logger)
	if err != nil {
		return 0, fmt.Errorf("redis: %w", err)
	}
	defer rc.Close()

	cache := redis.NewRedisCache(rc, logger, redis.WithPrefix(cfg.Redis.KeyPrefix))
	n, err := embedding.Flush(ctx, cache)
	if err != nil {
		return n, fmt.Errorf("redis: %w", err)
	}
	logger.Info("embedding cache flushed", logging.Int64("deleted", n))
	return n, nil
}

func newRedisClient(cfg *config.Config, logger logging.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.RedisConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}, logger)
}
