package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digisafe/internal/platform/config"
)

func TestNewValidation(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{})
	assert.ErrorContains(t, err, "redis URL is required")

	_, err = New(context.Background(), config.RedisConfig{URL: "://nope"})
	assert.ErrorContains(t, err, "parse redis URL")
}

func TestOptions(t *testing.T) {
	t.Run("config overrides the url", func(t *testing.T) {
		opts, err := options(config.RedisConfig{
			URL:          "redis://localhost:6379/2",
			PoolSize:     4,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 4, opts.PoolSize)
		assert.Equal(t, 1, opts.MinIdleConns)
		assert.Equal(t, 5*time.Second, opts.DialTimeout)
		assert.Equal(t, 3*time.Second, opts.ReadTimeout)
		assert.Equal(t, 2*time.Second, opts.WriteTimeout)
		assert.True(t, opts.ContextTimeoutEnabled)
		assert.Equal(t, clientName, opts.ClientName)
	})

	t.Run("unset fields keep url parameters", func(t *testing.T) {
		opts, err := options(config.RedisConfig{
			URL: "redis://localhost:6379/0?pool_size=9&client_name=bench",
		})
		require.NoError(t, err)
		assert.Equal(t, 9, opts.PoolSize)
		assert.Equal(t, "bench", opts.ClientName)
	})
}
