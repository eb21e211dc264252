package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legalpub/internal/cache"
	"github.com/sells-group/legalpub/internal/metrics"
	"github.com/sells-group/legalpub/internal/pipeline"
	"github.com/sells-group/legalpub/internal/store"
	"github.com/sells-group/legalpub/pkg/enrichment"
	"github.com/sells-group/legalpub/pkg/publications"
)

// pipelineEnv holds the initialized store, cache and pipeline used by the
// ingest and serve commands.
type pipelineEnv struct {
	Store    store.Store // nil for preview-only runs
	Cache    cache.Cache
	Pipeline *pipeline.Pipeline
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	closers  []func() error
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	for _, c := range pe.closers {
		if err := c(); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline builds the store (when withStore is set), the enrichment
// cache, provider clients and the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, withStore bool) (*pipelineEnv, error) {
	env := &pipelineEnv{Registry: prometheus.NewRegistry()}
	env.Metrics = metrics.New(env.Registry)

	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
		if err := st.Migrate(ctx); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}

	c, closer, err := initCache(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Cache = c
	if closer != nil {
		env.closers = append(env.closers, closer)
	}

	pubOpts := []publications.Option{
		publications.WithBaseURL(cfg.Publications.BaseURL),
		publications.WithRateLimit(cfg.Publications.RatePerSec),
	}
	if cfg.Publications.TimeoutSecs > 0 {
		pubOpts = append(pubOpts, publications.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Publications.TimeoutSecs)}))
	}
	pubClient := publications.NewClient(cfg.Publications.Token, cfg.Publications.OfficeID, pubOpts...)

	var enrichClient enrichment.Client
	switch {
	case !cfg.Enrichment.Enabled:
		zap.L().Info("enrichment disabled by configuration")
	case cfg.Enrichment.BaseURL == "":
		zap.L().Warn("enrichment.base_url not set, enrichment disabled")
	default:
		enrichOpts := []enrichment.Option{
			enrichment.WithBaseURL(cfg.Enrichment.BaseURL),
			enrichment.WithRateLimit(cfg.Enrichment.RatePerSec),
		}
		if cfg.Enrichment.TimeoutSecs > 0 {
			enrichOpts = append(enrichOpts, enrichment.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Enrichment.TimeoutSecs)}))
		}
		enrichClient = enrichment.NewClient(cfg.Enrichment.Token, enrichOpts...)
	}

	env.Pipeline = pipeline.New(cfg, env.Store, pubClient, enrichClient, env.Cache,
		pipeline.WithPipelineMetrics(env.Metrics),
	)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "legalpub.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver (LEGALPUB_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCache returns the enrichment cache and an optional closer.
func initCache(ctx context.Context) (cache.Cache, func() error, error) {
	switch cfg.Cache.Driver {
	case "", "memory":
		return cache.NewMemory(), nil, nil
	case "redis":
		r, err := cache.DialRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.KeyPrefix)
		if err != nil {
			return nil, nil, eris.Wrap(err, "init redis cache")
		}
		return r, r.Close, nil
	default:
		return nil, nil, eris.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
