package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// SearcherConfig holds defaults applied to every search.
type SearcherConfig struct {
	MaxTopK          int
	NProbe           int
	ConsistencyLevel entity.ConsistencyLevel
}

// VectorSearchRequest is a single-vector similarity query.
type VectorSearchRequest struct {
	CollectionName  string
	VectorFieldName string
	Vector          []float32
	TopK            int
	MetricType      entity.MetricType
	Filter          string
	OutputFields    []string
}

// VectorHit is one row of a search result. Score is the raw value reported
// by Milvus for the request's metric type.
type VectorHit struct {
	ID     string
	Score  float32
	Fields map[string]interface{}
}

// VectorSearchResult holds the hits in the order Milvus returned them.
type VectorSearchResult struct {
	Hits   []VectorHit
	TookMs int64
}

// Searcher executes vector searches over a managed Client.
type Searcher struct {
	client *Client
	config SearcherConfig
	logger logging.Logger
}

// NewSearcher applies defaults to cfg and returns a Searcher.
func NewSearcher(c *Client, cfg SearcherConfig, logger logging.Logger) *Searcher {
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 16384
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = 16
	}
	if cfg.ConsistencyLevel == 0 {
		cfg.ConsistencyLevel = entity.ClBounded
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Searcher{client: c, config: cfg, logger: logger}
}

// Search runs one vector query and returns its hits with output fields
// resolved per row.
func (s *Searcher) Search(ctx context.Context, req VectorSearchRequest) (*VectorSearchResult, error) {
	if req.CollectionName == "" || req.VectorFieldName == "" {
		return nil, errors.New(errors.ErrCodeValidation, "collection and vector field are required")
	}
	if len(req.Vector) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "query vector is empty")
	}
	if req.TopK <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "topK must be > 0")
	}
	if req.TopK > s.config.MaxTopK {
		req.TopK = s.config.MaxTopK
	}

	mc := s.client.SDK()
	if mc == nil || s.client.closed.Load() {
		return nil, ErrClientClosed
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(s.config.NProbe)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "build search params")
	}

	start := time.Now()
	results, err := mc.Search(ctx, req.CollectionName, []string{}, req.Filter, req.OutputFields,
		[]entity.Vector{entity.FloatVector(req.Vector)}, req.VectorFieldName, req.MetricType, req.TopK, sp,
		client.WithSearchQueryConsistencyLevel(s.config.ConsistencyLevel))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus search failed").
			WithDetailf("collection=%s", req.CollectionName)
	}

	hits, err := convertSearchResults(results)
	if err != nil {
		return nil, err
	}

	out := &VectorSearchResult{Hits: hits, TookMs: time.Since(start).Milliseconds()}
	s.logger.Debug("vector search executed",
		logging.String("collection", req.CollectionName),
		logging.Int("hits", len(hits)),
		logging.Int64("took_ms", out.TookMs))
	return out, nil
}

// convertSearchResults flattens the result of a single-vector query.
func convertSearchResults(results []client.SearchResult) ([]VectorHit, error) {
	if len(results) == 0 {
		return []VectorHit{}, nil
	}
	res := results[0]
	if res.Err != nil {
		return nil, errors.Wrap(res.Err, errors.ErrCodeVectorSearchFailed, "milvus search result error")
	}
	if res.ResultCount == 0 {
		return []VectorHit{}, nil
	}
	if res.IDs == nil || res.IDs.Len() < res.ResultCount || len(res.Scores) < res.ResultCount {
		return nil, errors.New(errors.ErrCodeVectorSearchFailed, "malformed milvus search result").
			WithDetailf("count=%d scores=%d", res.ResultCount, len(res.Scores))
	}

	hits := make([]VectorHit, res.ResultCount)
	for j := 0; j < res.ResultCount; j++ {
		id, err := res.IDs.Get(j)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "read result id")
		}
		fields := make(map[string]interface{}, len(res.Fields))
		for _, col := range res.Fields {
			if col == nil || j >= col.Len() {
				continue
			}
			v, err := col.Get(j)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "read output field").
					WithDetail(col.Name())
			}
			fields[col.Name()] = v
		}
		hits[j] = VectorHit{ID: fmt.Sprint(id), Score: res.Scores[j], Fields: fields}
	}
	return hits, nil
}

// ParseMetricType maps a configured metric name to the SDK constant.
func ParseMetricType(s string) (entity.MetricType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L2":
		return entity.L2, nil
	case "IP":
		return entity.IP, nil
	case "COSINE":
		return entity.COSINE, nil
	default:
		return "", errors.Newf(errors.ErrCodeValidation, "unsupported milvus metric type %q", s)
	}
}

// ParseConsistencyLevel maps a configured level name to the SDK constant.
func ParseConsistencyLevel(s string) (entity.ConsistencyLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bounded":
		return entity.ClBounded, nil
	case "strong":
		return entity.ClStrong, nil
	case "session":
		return entity.ClSession, nil
	case "eventually":
		return entity.ClEventually, nil
	default:
		return 0, errors.Newf(errors.ErrCodeValidation, "unsupported milvus consistency level %q", s)
	}
}
