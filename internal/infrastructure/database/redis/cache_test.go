package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
)

type CacheTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *Client
	cache  Cache
}

func (s *CacheTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	require.NoError(s.T(), err)
	s.mr = mr
	s.client = NewClientFromUniversal(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), logging.NewNopLogger())
	s.cache = NewRedisCache(s.client, logging.NewNopLogger(), WithPrefix("test:"), WithDefaultTTL(time.Hour))
}

func (s *CacheTestSuite) TearDownTest() {
	_ = s.client.Close()
	s.mr.Close()
}

type vector struct {
	Model  string    `json:"model"`
	Values []float32 `json:"values"`
}

func (s *CacheTestSuite) TestSetThenGet() {
	ctx := context.Background()
	in := vector{Model: "m", Values: []float32{0.1, 0.2}}
	require.NoError(s.T(), s.cache.Set(ctx, "k1", in, 0))

	assert.True(s.T(), s.mr.Exists("test:k1"))
	ttl := s.mr.TTL("test:k1")
	assert.InDelta(s.T(), float64(time.Hour), float64(ttl), float64(7*time.Minute))

	var out vector
	require.NoError(s.T(), s.cache.Get(ctx, "k1", &out))
	assert.Equal(s.T(), in, out)
}

func (s *CacheTestSuite) TestGet_Miss() {
	var out vector
	assert.Equal(s.T(), ErrCacheMiss, s.cache.Get(context.Background(), "absent", &out))
}

func (s *CacheTestSuite) TestGet_CorruptValue() {
	require.NoError(s.T(), s.mr.Set("test:bad", "{not json"))
	var out vector
	assert.Error(s.T(), s.cache.Get(context.Background(), "bad", &out))
}

func (s *CacheTestSuite) TestGetOrSet_LoadsOnceThenHits() {
	ctx := context.Background()
	var calls int32
	loader := func(context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return vector{Model: "m", Values: []float32{1}}, nil
	}

	var first, second vector
	require.NoError(s.T(), s.cache.GetOrSet(ctx, "q", &first, time.Minute, loader))
	require.NoError(s.T(), s.cache.GetOrSet(ctx, "q", &second, time.Minute, loader))

	assert.Equal(s.T(), int32(1), atomic.LoadInt32(&calls))
	assert.Equal(s.T(), first, second)
}

func (s *CacheTestSuite) TestGetOrSet_ConcurrentCallersShareLoad() {
	ctx := context.Background()
	var calls int32
	release := make(chan struct{})
	loader := func(context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return vector{Model: "m"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var v vector
			assert.NoError(s.T(), s.cache.GetOrSet(ctx, "shared", &v, time.Minute, loader))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(s.T(), atomic.LoadInt32(&calls), int32(5))
	assert.GreaterOrEqual(s.T(), atomic.LoadInt32(&calls), int32(1))
}

func (s *CacheTestSuite) TestGetOrSet_CacheDownStillLoads() {
	s.mr.Close()
	var v vector
	err := s.cache.GetOrSet(context.Background(), "q", &v, time.Minute, func(context.Context) (interface{}, error) {
		return vector{Model: "direct"}, nil
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "direct", v.Model)
}

func (s *CacheTestSuite) TestDeleteByPrefix() {
	ctx := context.Background()
	for _, k := range []string{"emb:a", "emb:b", "other"} {
		require.NoError(s.T(), s.cache.Set(ctx, k, 1, 0))
	}
	n, err := s.cache.DeleteByPrefix(ctx, "emb:")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), n)
	assert.False(s.T(), s.mr.Exists("test:emb:a"))
	assert.True(s.T(), s.mr.Exists("test:other"))

	n, err = s.cache.DeleteByPrefix(ctx, "emb:")
	require.NoError(s.T(), err)
	assert.Zero(s.T(), n)
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
