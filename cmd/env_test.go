//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legalpub/internal/cache"
	"github.com/sells-group/legalpub/internal/config"
)

func TestPipelineEnv_Close_Nil(t *testing.T) {
	pe := &pipelineEnv{}
	assert.NotPanics(t, func() {
		pe.Close()
	})
}

func TestPipelineEnv_Close_WithStore(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test_close.db"),
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)

	closed := false
	pe := &pipelineEnv{
		Store:   st,
		closers: []func() error{func() error { closed = true; return nil }},
	}

	assert.NotPanics(t, func() {
		pe.Close()
	})
	assert.True(t, closed)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_PostgresRequiresURL(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "postgres"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestInitPipeline_FailsOnBadDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	env, err := initPipeline(context.Background(), true)
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitPipeline_PreviewSkipsStore(t *testing.T) {
	cfg = &config.Config{
		Store:      config.StoreConfig{Driver: "mysql"},
		Enrichment: config.EnrichmentConfig{Enabled: true, BaseURL: "http://localhost:1"},
	}

	env, err := initPipeline(context.Background(), false)
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Store)
	assert.NotNil(t, env.Pipeline)
	assert.True(t, env.Pipeline.EnrichmentEnabled())
	assert.IsType(t, &cache.Memory{}, env.Cache)
}

func TestInitPipeline_EnrichmentWithoutBaseURL(t *testing.T) {
	cfg = &config.Config{Enrichment: config.EnrichmentConfig{Enabled: true}}

	env, err := initPipeline(context.Background(), false)
	require.NoError(t, err)
	defer env.Close()

	assert.False(t, env.Pipeline.EnrichmentEnabled())
}

func TestInitPipeline_MigratesSQLite(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test_pipe.db"),
		},
	}

	env, err := initPipeline(context.Background(), true)
	require.NoError(t, err)
	defer env.Close()

	require.NotNil(t, env.Store)
	assert.NoError(t, env.Store.Ping(context.Background()))
}

func TestInitCache_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg = &config.Config{Cache: config.CacheConfig{Driver: "redis", RedisURL: "redis://" + mr.Addr()}}

	c, closer, err := initCache(context.Background())
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer() //nolint:errcheck

	assert.IsType(t, &cache.Redis{}, c)
}

func TestInitCache_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Cache: config.CacheConfig{Driver: "memcached"}}

	_, _, err := initCache(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported cache driver")
}
