// Package config defines the configuration structures for KeyIP-PriorArt.
// Loading lives in loader.go and defaults in defaults.go.
package config

import (
	"fmt"
	"strings"
	"time"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize        int64         `mapstructure:"max_body_size"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	// RateLimitRPS of 0 disables per-client rate limiting of the analyze
	// endpoint.
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"` // "stdout", "stderr" or a file path
}

// CompletionConfig configures the language-model Completion Service.
type CompletionConfig struct {
	Provider    string        `mapstructure:"provider"` // "anthropic"
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig selects and configures the query embedding backend.
type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"` // "gemini" | "openai" | "ollama"
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	TaskType  string        `mapstructure:"task_type"`
	Dimension int           `mapstructure:"dimension"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// CacheEnabled stores query vectors in Redis. Requires redis.enabled.
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// MilvusConfig holds vector-store connection and search parameters.
type MilvusConfig struct {
	Addr             string        `mapstructure:"addr"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"db_name"`
	Collection       string        `mapstructure:"collection"`
	VectorField      string        `mapstructure:"vector_field"`
	MetricType       string        `mapstructure:"metric_type"` // "L2" | "IP" | "COSINE"
	OutputFields     []string      `mapstructure:"output_fields"`
	NProbe           int           `mapstructure:"nprobe"`
	ConsistencyLevel string        `mapstructure:"consistency_level"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig holds Redis connection parameters. Redis is optional and only
// backs the embedding cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// PipelineConfig holds the orchestrator's sizing and timeout policy.
type PipelineConfig struct {
	TopN             int           `mapstructure:"top_n"`
	JudgeConcurrency int           `mapstructure:"judge_concurrency"`
	RouterTimeout    time.Duration `mapstructure:"router_timeout"`
	RetrievalTimeout time.Duration `mapstructure:"retrieval_timeout"`
	JudgeTimeout     time.Duration `mapstructure:"judge_timeout"`
	SynthesisTimeout time.Duration `mapstructure:"synthesis_timeout"`

	// JudgeMaxRetries applies to transport failures only.
	JudgeMaxRetries   int           `mapstructure:"judge_max_retries"`
	JudgeRetryBackoff time.Duration `mapstructure:"judge_retry_backoff"`

	// CircuitBreakerThreshold of 0 disables the breaker.
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`

	// MatchThreshold is the minimum score reported as a match at the API.
	MatchThreshold int `mapstructure:"match_threshold"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Completion CompletionConfig `mapstructure:"completion"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Milvus     MilvusConfig     `mapstructure:"milvus"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// Validate performs semantic validation of a fully-populated Config and
// returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}

	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("config: server rate limit must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if c.Completion.Provider != "anthropic" {
		return fmt.Errorf("config: completion.provider %q is unsupported; expected anthropic", c.Completion.Provider)
	}
	if c.Completion.Model == "" {
		return fmt.Errorf("config: completion.model is required")
	}
	if c.Completion.MaxTokens < 1 {
		return fmt.Errorf("config: completion.max_tokens must be ≥ 1, got %d", c.Completion.MaxTokens)
	}

	switch c.Embedding.Provider {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("config: embedding.provider %q is invalid; expected gemini|openai|ollama", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("config: embedding.model is required")
	}
	if c.Embedding.CacheEnabled && !c.Redis.Enabled {
		return fmt.Errorf("config: embedding.cache_enabled requires redis.enabled")
	}

	if c.Milvus.Addr == "" {
		return fmt.Errorf("config: milvus.addr is required")
	}
	if c.Milvus.Collection == "" {
		return fmt.Errorf("config: milvus.collection is required")
	}
	switch strings.ToUpper(c.Milvus.MetricType) {
	case "L2", "IP", "COSINE":
	default:
		return fmt.Errorf("config: milvus.metric_type %q is invalid; expected L2|IP|COSINE", c.Milvus.MetricType)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis.enabled")
	}

	p := c.Pipeline
	if p.TopN < 1 {
		return fmt.Errorf("config: pipeline.top_n must be ≥ 1, got %d", p.TopN)
	}
	if p.JudgeConcurrency < 1 {
		return fmt.Errorf("config: pipeline.judge_concurrency must be ≥ 1, got %d", p.JudgeConcurrency)
	}
	if p.RouterTimeout <= 0 || p.RetrievalTimeout <= 0 || p.JudgeTimeout <= 0 || p.SynthesisTimeout <= 0 {
		return fmt.Errorf("config: pipeline timeouts must be positive")
	}
	if p.JudgeMaxRetries < 0 {
		return fmt.Errorf("config: pipeline.judge_max_retries must be ≥ 0, got %d", p.JudgeMaxRetries)
	}
	if p.MatchThreshold < 0 || p.MatchThreshold > 100 {
		return fmt.Errorf("config: pipeline.match_threshold %d is out of range [0, 100]", p.MatchThreshold)
	}

	return nil
}
