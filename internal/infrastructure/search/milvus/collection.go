package milvus

import (
	"context"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

var (
	ErrCollectionNotFound  = errors.New(errors.ErrCodeNotFound, "collection not found")
	ErrCollectionNotLoaded = errors.New(errors.ErrCodeVectorUnhealthy, "collection not loaded")
	ErrSchemaMismatch      = errors.New(errors.ErrCodeValidation, "collection schema mismatch")
)

// CollectionExpectation is what the retriever needs from the patent
// collection. Dimension 0 skips the dimension check.
type CollectionExpectation struct {
	Name         string
	VectorField  string
	OutputFields []string
	Dimension    int
}

// CollectionInfo summarizes a described collection.
type CollectionInfo struct {
	Name      string
	Fields    []string
	Dimension int
	Loaded    bool
}

// CollectionInspector verifies that the patent collection can be searched.
// It never creates or alters collections.
type CollectionInspector struct {
	client *Client
	logger logging.Logger
}

func NewCollectionInspector(c *Client, logger logging.Logger) *CollectionInspector {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CollectionInspector{client: c, logger: logger}
}

// Describe returns the field names, vector dimension and load state of name.
func (ci *CollectionInspector) Describe(ctx context.Context, name, vectorField string) (*CollectionInfo, error) {
	mc := ci.client.SDK()
	if mc == nil {
		return nil, ErrClientClosed
	}

	exists, err := mc.HasCollection(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVectorConnection, "check collection").WithDetail(name)
	}
	if !exists {
		return nil, ErrCollectionNotFound.WithDetail(name)
	}

	coll, err := mc.DescribeCollection(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVectorConnection, "describe collection").WithDetail(name)
	}

	info := &CollectionInfo{Name: name, Loaded: coll.Loaded}
	if coll.Schema != nil {
		for _, f := range coll.Schema.Fields {
			info.Fields = append(info.Fields, f.Name)
			if f.Name == vectorField {
				if dim, err := strconv.Atoi(f.TypeParams[entity.TypeParamDim]); err == nil {
					info.Dimension = dim
				}
			}
		}
	}
	return info, nil
}

// Verify checks that the collection exists, is loaded and exposes the
// vector field and every output field.
func (ci *CollectionInspector) Verify(ctx context.Context, want CollectionExpectation) error {
	info, err := ci.Describe(ctx, want.Name, want.VectorField)
	if err != nil {
		return err
	}
	if !info.Loaded {
		return ErrCollectionNotLoaded.WithDetail(want.Name)
	}

	have := make(map[string]struct{}, len(info.Fields))
	for _, f := range info.Fields {
		have[f] = struct{}{}
	}
	required := append([]string{want.VectorField}, want.OutputFields...)
	for _, f := range required {
		if _, ok := have[f]; !ok {
			return ErrSchemaMismatch.WithDetailf("collection %s has no field %q", want.Name, f)
		}
	}
	if want.Dimension > 0 && info.Dimension > 0 && info.Dimension != want.Dimension {
		return ErrSchemaMismatch.WithDetailf("vector dimension %d, embedder produces %d", info.Dimension, want.Dimension)
	}

	ci.logger.Debug("collection verified",
		logging.String("collection", want.Name),
		logging.Int("dimension", info.Dimension))
	return nil
}
