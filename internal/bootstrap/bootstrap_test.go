package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-PriorArt/internal/config"
	"github.com/turtacn/KeyIP-PriorArt/internal/testutil"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Completion.APIKey = "test-key"
	return cfg
}

func TestBuild_UnsupportedEmbeddingProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.Embedding.Provider = "word2vec"

	c, err := Build(context.Background(), cfg, nil, nil)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "embedding")
}

func TestBuild_RedisUnreachable(t *testing.T) {
	cfg := baseConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := Build(context.Background(), cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestBuild_ClosesRedisWhenMilvusFails(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := baseConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Embedding.CacheEnabled = true
	cfg.Milvus.Addr = ""

	log := testutil.NewMockLogger()
	_, err = Build(context.Background(), cfg, nil, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "milvus")
	assert.False(t, log.HasMessage("warn", "close failed"))
}

func TestFlushEmbeddingCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	require.NoError(t, mr.Set("priorart:emb:abc", "[0.1]"))
	require.NoError(t, mr.Set("priorart:emb:def", "[0.2]"))
	require.NoError(t, mr.Set("priorart:session", "keep"))

	cfg := baseConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	n, err := FlushEmbeddingCache(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"priorart:session"}, mr.Keys())
}

func TestFlushEmbeddingCache_RedisDisabled(t *testing.T) {
	_, err := FlushEmbeddingCache(context.Background(), baseConfig(), nil)
	assert.ErrorIs(t, err, ErrCacheDisabled)
}
