package embedding

import (
	"context"
	"net/http"
	"time"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
)

// Ollama calls a local Ollama server's /api/embed endpoint.
type Ollama struct {
	cfg    Config
	hc     *http.Client
	logger logging.Logger
}

func NewOllama(cfg Config, hc *http.Client, logger logging.Logger) *Ollama {
	return &Ollama{cfg: cfg, hc: hc, logger: logger}
}

func (o *Ollama) Model() string { return o.cfg.Model }

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	payload := map[string]interface{}{
		"model": o.cfg.Model,
		"input": text,
	}
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := postJSON(ctx, o.hc, joinURL(o.cfg.BaseURL, "/api/embed"), nil, payload, &resp); err != nil {
		return nil, err
	}

	var values []float32
	if len(resp.Embeddings) > 0 {
		values = resp.Embeddings[0]
	}
	v, err := checkVector(values, o.cfg.Dimension)
	if err != nil {
		return nil, err
	}
	logEmbed(o.logger, ProviderOllama, o.cfg.Model, start, len(v))
	return v, nil
}
