package embedding

import (
	"context"
	"net/http"
	"time"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
)

// OpenAI calls an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	cfg    Config
	hc     *http.Client
	logger logging.Logger
}

func NewOpenAI(cfg Config, hc *http.Client, logger logging.Logger) *OpenAI {
	return &OpenAI{cfg: cfg, hc: hc, logger: logger}
}

func (o *OpenAI) Model() string { return o.cfg.Model }

type openAIRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	var headers map[string]string
	if o.cfg.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + o.cfg.APIKey}
	}

	var resp openAIResponse
	req := openAIRequest{Model: o.cfg.Model, Input: text, Dimensions: o.cfg.Dimension}
	if err := postJSON(ctx, o.hc, joinURL(o.cfg.BaseURL, "/embeddings"), headers, req, &resp); err != nil {
		return nil, err
	}

	var values []float32
	if len(resp.Data) > 0 {
		values = resp.Data[0].Embedding
	}
	v, err := checkVector(values, o.cfg.Dimension)
	if err != nil {
		return nil, err
	}
	logEmbed(o.logger, ProviderOpenAI, o.cfg.Model, start, len(v))
	return v, nil
}
