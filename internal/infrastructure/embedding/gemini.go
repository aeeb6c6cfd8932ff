package embedding

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
)

// Gemini calls the Generative Language API embedContent method.
type Gemini struct {
	cfg    Config
	hc     *http.Client
	logger logging.Logger
}

func NewGemini(cfg Config, hc *http.Client, logger logging.Logger) *Gemini {
	return &Gemini{cfg: cfg, hc: hc, logger: logger}
}

func (g *Gemini) Model() string { return g.cfg.Model }

type geminiRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	TaskType             string        `json:"taskType,omitempty"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	model := strings.TrimPrefix(g.cfg.Model, "models/")

	endpoint := joinURL(g.cfg.BaseURL, "/v1beta/models/"+model+":embedContent")
	if g.cfg.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(g.cfg.APIKey)
	}

	req := geminiRequest{
		Model:                "models/" + model,
		Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType:             g.cfg.TaskType,
		OutputDimensionality: g.cfg.Dimension,
	}
	var resp geminiResponse
	if err := postJSON(ctx, g.hc, endpoint, nil, req, &resp); err != nil {
		return nil, err
	}

	v, err := checkVector(resp.Embedding.Values, g.cfg.Dimension)
	if err != nil {
		return nil, err
	}
	logEmbed(g.logger, ProviderGemini, model, start, len(v))
	return v, nil
}
