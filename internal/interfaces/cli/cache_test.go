package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-PriorArt/internal/config"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
)

func TestCacheFlush(t *testing.T) {
	var got *config.Config
	deps := Dependencies{FlushCache: func(_ context.Context, cfg *config.Config, _ logging.Logger) (int64, error) {
		got = cfg
		return 7, nil
	}}

	out, _, err := runCLI(t, deps, "cache", "flush")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, out, "7 cached embeddings removed")
}

func TestCacheFlush_Error(t *testing.T) {
	deps := Dependencies{FlushCache: func(context.Context, *config.Config, logging.Logger) (int64, error) {
		return 0, errors.New("redis: connection refused")
	}}
	_, _, err := runCLI(t, deps, "cache", "flush")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache flush failed")
}

func TestCacheFlush_NotConfigured(t *testing.T) {
	_, _, err := runCLI(t, Dependencies{}, "cache", "flush")
	assert.Error(t, err)
}
