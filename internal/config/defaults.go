package config

import "time"

const (
	DefaultServerPort = 8080

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultCompletionProvider  = "anthropic"
	DefaultCompletionModel     = "claude-sonnet-4-5"
	DefaultCompletionMaxTokens = 4096

	DefaultEmbeddingProvider = "gemini"
	DefaultEmbeddingModel    = "gemini-embedding-001"
	DefaultEmbeddingTaskType = "RETRIEVAL_QUERY"

	DefaultMilvusAddr        = "localhost:19530"
	DefaultMilvusCollection  = "patents"
	DefaultMilvusVectorField = "embedding"
	DefaultMilvusMetricType  = "COSINE"

	DefaultRedisAddr = "localhost:6379"

	DefaultTopN             = 20
	DefaultJudgeConcurrency = 5
	DefaultMatchThreshold   = 50
)

// DefaultMilvusOutputFields are the scalar fields requested with every hit.
var DefaultMilvusOutputFields = []string{
	"application_number", "invention_name", "applicant", "application_date", "document",
}

// ApplyDefaults fills every zero-value field in cfg. Explicitly set fields
// are left untouched.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// Server
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 1 << 20
	}
	if len(cfg.Server.CORSAllowedOrigins) == 0 {
		cfg.Server.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = int(cfg.Server.RateLimitRPS) + 1
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	// Completion
	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = DefaultCompletionProvider
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = DefaultCompletionModel
	}
	if cfg.Completion.MaxTokens == 0 {
		cfg.Completion.MaxTokens = DefaultCompletionMaxTokens
	}
	if cfg.Completion.MaxRetries == 0 {
		cfg.Completion.MaxRetries = 2
	}

	// Embedding
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = DefaultEmbeddingProvider
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.TaskType == "" {
		cfg.Embedding.TaskType = DefaultEmbeddingTaskType
	}
	if cfg.Embedding.BaseURL == "" {
		switch cfg.Embedding.Provider {
		case "gemini":
			cfg.Embedding.BaseURL = "https://generativelanguage.googleapis.com"
		case "openai":
			cfg.Embedding.BaseURL = "https://api.openai.com/v1"
		case "ollama":
			cfg.Embedding.BaseURL = "http://localhost:11434"
		}
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 15 * time.Second
	}
	if cfg.Embedding.CacheTTL == 0 {
		cfg.Embedding.CacheTTL = 24 * time.Hour
	}

	// Milvus
	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}
	if cfg.Milvus.Collection == "" {
		cfg.Milvus.Collection = DefaultMilvusCollection
	}
	if cfg.Milvus.VectorField == "" {
		cfg.Milvus.VectorField = DefaultMilvusVectorField
	}
	if cfg.Milvus.MetricType == "" {
		cfg.Milvus.MetricType = DefaultMilvusMetricType
	}
	if len(cfg.Milvus.OutputFields) == 0 {
		cfg.Milvus.OutputFields = append([]string(nil), DefaultMilvusOutputFields...)
	}
	if cfg.Milvus.NProbe == 0 {
		cfg.Milvus.NProbe = 16
	}
	if cfg.Milvus.ConsistencyLevel == "" {
		cfg.Milvus.ConsistencyLevel = "Bounded"
	}
	if cfg.Milvus.ConnectTimeout == 0 {
		cfg.Milvus.ConnectTimeout = 10 * time.Second
	}

	// Redis. DB 0 is indistinguishable from "unset" and is also the default.
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "priorart:"
	}

	// Pipeline
	if cfg.Pipeline.TopN == 0 {
		cfg.Pipeline.TopN = DefaultTopN
	}
	if cfg.Pipeline.JudgeConcurrency == 0 {
		cfg.Pipeline.JudgeConcurrency = DefaultJudgeConcurrency
	}
	if cfg.Pipeline.RouterTimeout == 0 {
		cfg.Pipeline.RouterTimeout = 60 * time.Second
	}
	if cfg.Pipeline.RetrievalTimeout == 0 {
		cfg.Pipeline.RetrievalTimeout = 30 * time.Second
	}
	if cfg.Pipeline.JudgeTimeout == 0 {
		cfg.Pipeline.JudgeTimeout = 60 * time.Second
	}
	if cfg.Pipeline.SynthesisTimeout == 0 {
		cfg.Pipeline.SynthesisTimeout = 120 * time.Second
	}
	if cfg.Pipeline.JudgeRetryBackoff == 0 {
		cfg.Pipeline.JudgeRetryBackoff = 500 * time.Millisecond
	}
	if cfg.Pipeline.CircuitBreakerTimeout == 0 {
		cfg.Pipeline.CircuitBreakerTimeout = 30 * time.Second
	}
	// The loaders restore an explicit match_threshold of 0.
	if cfg.Pipeline.MatchThreshold == 0 {
		cfg.Pipeline.MatchThreshold = DefaultMatchThreshold
	}

	// Metrics
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "priorart"
	}
}
