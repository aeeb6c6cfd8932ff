package milvus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-PriorArt/internal/testutil"
	apperrors "github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// mockMilvusClient overrides the SDK methods the package uses. Calling any
// other method panics on the nil embedded interface.
type mockMilvusClient struct {
	client.Client

	checkHealthFunc        func(ctx context.Context) (*entity.MilvusState, error)
	getVersionFunc         func(ctx context.Context) (string, error)
	closeFunc              func() error
	searchFunc             func(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	hasCollectionFunc      func(ctx context.Context, name string) (bool, error)
	describeCollectionFunc func(ctx context.Context, name string) (*entity.Collection, error)

	closeCalls atomic.Int32
}

func (m *mockMilvusClient) CheckHealth(ctx context.Context) (*entity.MilvusState, error) {
	if m.checkHealthFunc != nil {
		return m.checkHealthFunc(ctx)
	}
	return &entity.MilvusState{IsHealthy: true}, nil
}

func (m *mockMilvusClient) GetVersion(ctx context.Context) (string, error) {
	if m.getVersionFunc != nil {
		return m.getVersionFunc(ctx)
	}
	return "v2.4.1", nil
}

func (m *mockMilvusClient) Close() error {
	m.closeCalls.Add(1)
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockMilvusClient) Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, collName, partitions, expr, outputFields, vectors, vectorField, metricType, topK, sp, opts...)
	}
	return []client.SearchResult{}, nil
}

func (m *mockMilvusClient) HasCollection(ctx context.Context, name string) (bool, error) {
	if m.hasCollectionFunc != nil {
		return m.hasCollectionFunc(ctx, name)
	}
	return true, nil
}

func (m *mockMilvusClient) DescribeCollection(ctx context.Context, name string) (*entity.Collection, error) {
	if m.describeCollectionFunc != nil {
		return m.describeCollectionFunc(ctx, name)
	}
	return &entity.Collection{Name: name, Loaded: true}, nil
}

func withFactory(t *testing.T, f MilvusClientFactory) {
	t.Helper()
	orig := milvusNewClient
	milvusNewClient = f
	t.Cleanup(func() { milvusNewClient = orig })
}

func newTestMilvusConfig() ClientConfig {
	return ClientConfig{
		Address:             "localhost:19530",
		ConnectTimeout:      time.Second,
		HealthCheckInterval: time.Hour,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr bool
	}{
		{"valid", func(*ClientConfig) {}, false},
		{"empty address", func(c *ClientConfig) { c.Address = "" }, true},
		{"negative timeout", func(c *ClientConfig) { c.ConnectTimeout = -time.Second }, true},
		{"negative reconnect", func(c *ClientConfig) { c.ReconnectAfter = -1 }, true},
		{"tls without cert", func(c *ClientConfig) { c.TLSEnabled = true }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestMilvusConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr {
				assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClient_Success(t *testing.T) {
	var got client.Config
	withFactory(t, func(ctx context.Context, conf client.Config) (client.Client, error) {
		got = conf
		return &mockMilvusClient{}, nil
	})

	c, err := NewClient(newTestMilvusConfig(), testutil.NewMockLogger())
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.IsHealthy())
	assert.Equal(t, "localhost:19530", got.Address)
	assert.Equal(t, "default", got.DBName)
	assert.NotEmpty(t, got.DialOptions)
}

func TestNewClient_DialFailure(t *testing.T) {
	withFactory(t, func(ctx context.Context, conf client.Config) (client.Client, error) {
		return nil, errors.New("dial failed")
	})

	c, err := NewClient(newTestMilvusConfig(), testutil.NewMockLogger())
	assert.Nil(t, c)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeVectorConnection))
	assert.Contains(t, err.Error(), "dial failed")
}

func TestNewClient_UnhealthyOnStartup(t *testing.T) {
	mock := &mockMilvusClient{
		checkHealthFunc: func(ctx context.Context) (*entity.MilvusState, error) {
			return &entity.MilvusState{IsHealthy: false, Reasons: []string{"querynode down"}}, nil
		},
	}
	withFactory(t, func(ctx context.Context, conf client.Config) (client.Client, error) {
		return mock, nil
	})

	c, err := NewClient(newTestMilvusConfig(), testutil.NewMockLogger())
	assert.Nil(t, c)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeVectorConnection))
	assert.Equal(t, int32(1), mock.closeCalls.Load())
}

func TestClient_CheckHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		c := NewClientFromSDK(&mockMilvusClient{}, testutil.NewMockLogger())
		assert.NoError(t, c.CheckHealth(context.Background()))
		assert.True(t, c.IsHealthy())
	})

	t.Run("rpc error", func(t *testing.T) {
		log := testutil.NewMockLogger()
		c := NewClientFromSDK(&mockMilvusClient{
			checkHealthFunc: func(ctx context.Context) (*entity.MilvusState, error) {
				return nil, errors.New("unavailable")
			},
		}, log)
		err := c.CheckHealth(context.Background())
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeVectorUnhealthy))
		assert.False(t, c.IsHealthy())
		assert.True(t, log.HasMessage("warn", "milvus health check failed"))
	})

	t.Run("closed", func(t *testing.T) {
		c := NewClientFromSDK(&mockMilvusClient{}, nil)
		require.NoError(t, c.Close())
		assert.ErrorIs(t, c.CheckHealth(context.Background()), ErrClientClosed)
	})
}

func TestClient_ServerVersion(t *testing.T) {
	c := NewClientFromSDK(&mockMilvusClient{}, nil)
	v, err := c.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2.4.1", v)

	c = NewClientFromSDK(&mockMilvusClient{
		getVersionFunc: func(ctx context.Context) (string, error) { return "", errors.New("boom") },
	}, nil)
	_, err = c.ServerVersion(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeVectorConnection))
}

func TestClient_Close_Idempotent(t *testing.T) {
	mock := &mockMilvusClient{}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClientFromSDK(mock, nil)
	c.cancel = cancel

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.Error(t, ctx.Err())
	assert.Equal(t, int32(1), mock.closeCalls.Load())
	assert.False(t, c.IsHealthy())
}

func TestClient_ProbeReconnectsAfterConsecutiveFailures(t *testing.T) {
	failing := &mockMilvusClient{
		checkHealthFunc: func(ctx context.Context) (*entity.MilvusState, error) {
			return nil, errors.New("down")
		},
	}
	fresh := &mockMilvusClient{}
	withFactory(t, func(ctx context.Context, conf client.Config) (client.Client, error) {
		return fresh, nil
	})

	c := NewClientFromSDK(failing, testutil.NewMockLogger())
	c.config = newTestMilvusConfig()
	applyClientDefaults(&c.config)
	c.config.ReconnectAfter = 2

	ctx := context.Background()
	c.probeOnce(ctx)
	assert.Same(t, failing, c.SDK())
	c.probeOnce(ctx)
	assert.Same(t, fresh, c.SDK())
	assert.Equal(t, int32(1), failing.closeCalls.Load())
	assert.Equal(t, 0, c.failures)

	c.probeOnce(ctx)
	assert.True(t, c.IsHealthy())
}
