package milvus

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/KeyIP-PriorArt/internal/domain/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/embedding"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// Output field names of the patent collection.
const (
	FieldApplicationNumber = "application_number"
	FieldInventionName     = "invention_name"
	FieldApplicant         = "applicant"
	FieldApplicationDate   = "application_date"
	FieldDocument          = "document"
)

// RetrieverConfig names the collection and how it is searched.
type RetrieverConfig struct {
	Collection   string
	VectorField  string
	MetricType   entity.MetricType
	OutputFields []string
	Filter       string
}

// PatentRetriever embeds a search query and returns the nearest patents as
// raw hits with distances (lower is more similar).
type PatentRetriever struct {
	searcher *Searcher
	embedder embedding.Embedder
	config   RetrieverConfig
	logger   logging.Logger
}

func NewPatentRetriever(s *Searcher, e embedding.Embedder, cfg RetrieverConfig, logger logging.Logger) (*PatentRetriever, error) {
	if s == nil || e == nil {
		return nil, errors.New(errors.ErrCodeValidation, "searcher and embedder are required")
	}
	if cfg.Collection == "" || cfg.VectorField == "" {
		return nil, errors.New(errors.ErrCodeValidation, "collection and vector field are required")
	}
	if cfg.MetricType == "" {
		cfg.MetricType = entity.COSINE
	}
	if len(cfg.OutputFields) == 0 {
		cfg.OutputFields = []string{FieldApplicationNumber, FieldInventionName, FieldApplicant, FieldApplicationDate, FieldDocument}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &PatentRetriever{searcher: s, embedder: e, config: cfg, logger: logger}, nil
}

// Retrieve returns up to topN hits for query. No hits is an empty slice.
func (r *PatentRetriever) Retrieve(ctx context.Context, query priorart.SearchQuery, topN int) ([]priorart.RawHit, error) {
	if strings.TrimSpace(string(query)) == "" {
		return nil, errors.New(errors.ErrCodeRetrieval, "empty search query")
	}
	if topN <= 0 {
		return nil, errors.Newf(errors.ErrCodeRetrieval, "topN must be > 0, got %d", topN)
	}

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, string(query))
	if err != nil {
		return nil, r.mapError(ctx, err, "embed search query")
	}

	res, err := r.searcher.Search(ctx, VectorSearchRequest{
		CollectionName:  r.config.Collection,
		VectorFieldName: r.config.VectorField,
		Vector:          vec,
		TopK:            topN,
		MetricType:      r.config.MetricType,
		Filter:          r.config.Filter,
		OutputFields:    r.config.OutputFields,
	})
	if err != nil {
		return nil, r.mapError(ctx, err, "vector search")
	}

	hits := make([]priorart.RawHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, r.toRawHit(h))
	}

	r.logger.Info("patents retrieved",
		logging.String("collection", r.config.Collection),
		logging.Int("hits", len(hits)),
		logging.Duration("elapsed", time.Since(start)))
	return hits, nil
}

func (r *PatentRetriever) toRawHit(h VectorHit) priorart.RawHit {
	hit := priorart.RawHit{Distance: Distance(r.config.MetricType, h.Score)}
	for name, v := range h.Fields {
		if v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		switch name {
		case FieldApplicationNumber:
			hit.Metadata.ApplicationNumber = s
		case FieldInventionName:
			hit.Metadata.Title = s
		case FieldApplicant:
			hit.Metadata.Applicant = s
		case FieldApplicationDate:
			hit.Metadata.ApplicationDate = s
		case FieldDocument:
			hit.Document = s
		default:
			if hit.Metadata.Extra == nil {
				hit.Metadata.Extra = make(map[string]string)
			}
			hit.Metadata.Extra[name] = s
		}
	}
	return hit
}

// Distance converts a Milvus score into a non-negative distance. L2 scores
// are already distances; COSINE and IP are similarities.
func Distance(metric entity.MetricType, score float32) float64 {
	d := float64(score)
	switch metric {
	case entity.COSINE, entity.IP:
		d = 1 - d
	}
	if d < 0 {
		return 0
	}
	return d
}

func (r *PatentRetriever) mapError(ctx context.Context, err error, op string) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.IsCode(err, errors.ErrCodeServiceTimeout) {
		return errors.Wrap(err, errors.ErrCodeServiceTimeout, op+" timed out")
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.Wrap(err, errors.ErrCodeCancelled, op+" cancelled")
	}
	r.logger.Warn("retrieval failed", logging.String("op", op), logging.Err(err))
	return errors.Wrap(err, errors.ErrCodeRetrieval, op+" failed")
}
