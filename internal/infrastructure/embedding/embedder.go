// Package embedding turns a search query into a dense vector using one of
// several HTTP embedding backends.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// Embedder produces the vector for a single text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model identifies the embedding model; cache keys include it.
	Model() string
}

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config selects and configures a backend.
type Config struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	TaskType  string
	Dimension int
	Timeout   time.Duration
}

// New returns the Embedder for cfg.Provider.
func New(cfg Config, logger logging.Logger) (Embedder, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	hc := &http.Client{Timeout: cfg.Timeout}

	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini:
		return NewGemini(cfg, hc, logger), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg, hc, logger), nil
	case ProviderOllama:
		return NewOllama(cfg, hc, logger), nil
	default:
		return nil, errors.Newf(errors.ErrCodeEmbeddingUnsupported, "unsupported embedding provider %q", cfg.Provider)
	}
}

// postJSON sends payload to url and decodes the JSON response into out.
func postJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "marshal embedding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "build embedding request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.Wrap(err, errors.ErrCodeServiceTimeout, "embedding request timed out")
		}
		return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "embedding request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "read embedding response")
	}
	if resp.StatusCode >= 300 {
		return errors.Newf(errors.ErrCodeEmbeddingFailed, "embedding backend returned status %d", resp.StatusCode).
			WithDetail(truncate(string(raw), 512))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "decode embedding response")
	}
	return nil
}

func checkVector(v []float32, dimension int) ([]float32, error) {
	if len(v) == 0 {
		return nil, errors.New(errors.ErrCodeEmbeddingEmpty, "embedding backend returned no values")
	}
	if dimension > 0 && len(v) != dimension {
		return nil, errors.Newf(errors.ErrCodeEmbeddingFailed, "embedding has %d dimensions, expected %d", len(v), dimension)
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func logEmbed(logger logging.Logger, provider, model string, start time.Time, dims int) {
	logger.Debug("query embedded",
		logging.String("provider", provider),
		logging.String("model", model),
		logging.Int("dimensions", dims),
		logging.Duration("elapsed", time.Since(start)))
}

