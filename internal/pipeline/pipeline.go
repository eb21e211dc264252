// Package pipeline turns an attorney's publications into a persisted graph
// of processes, clients and publications.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legalpub/internal/cache"
	"github.com/sells-group/legalpub/internal/config"
	"github.com/sells-group/legalpub/internal/cost"
	"github.com/sells-group/legalpub/internal/metrics"
	"github.com/sells-group/legalpub/internal/model"
	"github.com/sells-group/legalpub/internal/resilience"
	"github.com/sells-group/legalpub/internal/store"
	"github.com/sells-group/legalpub/pkg/enrichment"
	"github.com/sells-group/legalpub/pkg/publications"
)

// Request describes one sync.
type Request struct {
	OABNumber string
	UF        string
	Name      string
	// Persist writes the graph. When false the run is a preview.
	Persist bool
	// Publications, when non-nil, replaces the provider fetch.
	Publications []model.Publication
}

// Pipeline runs syncs. It is safe for concurrent use; the cache and the
// enrichment limiter are shared by every run.
type Pipeline struct {
	cfg          *config.Config
	store        store.Store
	publications publications.Client
	enrichment   enrichment.Client
	merger       *Merger
	limiter      *resilience.Limiter
	breaker      *resilience.CircuitBreaker
	metrics      *metrics.Metrics
	costCalc     *cost.Calculator
	retryBackoff time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPipelineMetrics records run and enrichment metrics on m.
func WithPipelineMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRetryBackoff overrides the initial retry backoff of provider calls.
func WithRetryBackoff(d time.Duration) Option {
	return func(p *Pipeline) { p.retryBackoff = d }
}

// New creates a Pipeline. enrichClient may be nil, which disables
// enrichment. st may be nil when only preview runs are served.
func New(
	cfg *config.Config,
	st store.Store,
	pubClient publications.Client,
	enrichClient enrichment.Client,
	c cache.Cache,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		cfg:          cfg,
		store:        st,
		publications: pubClient,
		enrichment:   enrichClient,
		costCalc: cost.NewCalculator(cost.Rates{
			Publications: cost.PublicationsRate{PerRequest: cfg.Pricing.Publications.PerRequest},
			Enrichment:   cost.EnrichmentRate{PerQuery: cfg.Pricing.Enrichment.PerQuery},
		}),
	}
	for _, o := range opts {
		o(p)
	}

	p.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		ShouldTrip:    retryable,
		OnStateChange: p.breakerChanged,
	})
	p.limiter = resilience.NewLimiter(cfg.Enrichment.Concurrency, resilience.WithObserver(p.metrics.SetLimiterState))
	if enrichClient != nil && cfg.Enrichment.Enabled {
		p.merger = NewMerger(p.limiter, c, p.fetchEnrichment, cfg.Enrichment.CacheTTL(),
			WithPartial(cfg.Enrichment.Partial),
			WithMetrics(p.metrics),
		)
	}
	return p
}

func (p *Pipeline) breakerChanged(from, to resilience.CircuitState) {
	zap.L().Warn("pipeline: enrichment circuit breaker state changed",
		zap.String("from", from.String()), zap.String("to", to.String()))
	p.metrics.SetBreakerState(int(to))
}

// EnrichmentEnabled reports whether runs consult the enrichment provider.
func (p *Pipeline) EnrichmentEnabled() bool {
	return p.merger != nil
}

// Sync runs the pipeline for one attorney. Errors are *Error values.
func (p *Pipeline) Sync(ctx context.Context, req Request) (*model.SyncResult, error) {
	start := time.Now()
	res, err := p.sync(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	p.metrics.ObserveRun(outcome, time.Since(start))
	if res != nil {
		res.Stats.DurationMs = time.Since(start).Milliseconds()
	}
	return res, err
}

func (p *Pipeline) sync(ctx context.Context, req Request) (*model.SyncResult, error) {
	lawyer := model.Lawyer{
		OABNumber: strings.TrimSpace(req.OABNumber),
		UF:        strings.ToUpper(strings.TrimSpace(req.UF)),
		Name:      strings.TrimSpace(req.Name),
		Active:    true,
	}
	if lawyer.OABNumber == "" || lawyer.UF == "" {
		return nil, newError(KindInvalid, 0, eris.New("pipeline: oab number and uf are required"))
	}
	if req.Persist && p.store == nil {
		return nil, newError(KindConfig, 0, eris.New("pipeline: persistence requested without a store"))
	}

	log := zap.L().With(zap.String("oab", lawyer.OABNumber), zap.String("uf", lawyer.UF))
	log.Info("pipeline: starting sync", zap.Bool("persist", req.Persist))

	pubs := req.Publications
	pubRequests := 0
	if pubs == nil {
		if err := p.cfg.Validate(); err != nil {
			return nil, newError(KindConfig, 0, err)
		}
		q := publications.Query{OABNumber: lawyer.OABNumber, UF: lawyer.UF, Name: lawyer.Name}
		p.register(ctx, log, q)

		fetched, err := p.fetchPublications(ctx, q)
		pubRequests = 1
		if err != nil {
			return nil, classifyFetchError(err)
		}
		pubs = fetched
	}
	log.Info("pipeline: publications loaded", zap.Int("count", len(pubs)))

	procs, skipped := Materialize(pubs, lawyer)
	stats := model.Stats{
		TotalPublications:   len(pubs),
		SkippedPublications: skipped,
	}

	if p.merger != nil && len(procs) > 0 {
		es, err := p.merger.Enrich(ctx, procs)
		stats.EnrichmentUsed = true
		stats.EnrichmentCalls, stats.CacheHits, stats.EnrichmentFailures = es.Calls, es.CacheHits, es.Failures
		if err != nil {
			return nil, newError(KindEnrichment, enrichmentStatus(err), err)
		}
		log.Info("pipeline: enrichment complete",
			zap.Int("calls", es.Calls), zap.Int("cache_hits", es.CacheHits), zap.Int("failures", es.Failures))
	} else {
		for i := range procs {
			procs[i].EnrichmentStatus = model.EnrichmentSkipped
		}
	}

	clients, links := Reconcile(procs)
	stats.TotalProcesses = len(procs)
	stats.TotalClients = len(clients)

	if req.Persist {
		usage := model.UsageRecord{
			Provider:        "publications",
			Operation:       "sync",
			OABNumber:       lawyer.OABNumber,
			UF:              lawyer.UF,
			Publications:    len(pubs),
			Processes:       len(procs),
			Clients:         len(clients),
			EnrichmentCalls: stats.EnrichmentCalls,
			CacheHits:       stats.CacheHits,
			CostUSD: p.costCalc.Total(cost.Usage{
				PublicationRequests: pubRequests,
				EnrichmentQueries:   stats.EnrichmentCalls,
			}),
		}
		if stats.EnrichmentUsed {
			usage.Provider = "publications+enrichment"
		}
		ps, err := persist(ctx, p.store, &graph{
			lawyer:       &lawyer,
			processes:    procs,
			clients:      clients,
			links:        links,
			publications: pubs,
			usage:        usage,
		})
		if err != nil {
			return nil, newError(KindPersistence, 0, err)
		}
		stats.Persistence = ps
		log.Info("pipeline: persisted",
			zap.Int("processes", ps.Processes), zap.Int("clients", ps.Clients),
			zap.Int("links", ps.Links), zap.Int("publications", ps.Publications))
	}

	return &model.SyncResult{
		Lawyer:    lawyer,
		Processes: procs,
		Clients:   clients,
		Stats:     stats,
	}, nil
}

// register runs the idempotent provider handshakes. Failures only warn.
func (p *Pipeline) register(ctx context.Context, log *zap.Logger, q publications.Query) {
	if err := p.publications.RegisterOffice(ctx); err != nil {
		log.Warn("pipeline: register office failed", zap.Error(err))
	}
	if err := p.publications.RegisterSearchTerm(ctx, q); err != nil {
		log.Warn("pipeline: register search term failed", zap.Error(err))
	}
}

func classifyFetchError(err error) *Error {
	var se *publications.StatusError
	if errors.As(err, &se) {
		if se.IsAuth() {
			return newError(KindAuth, se.StatusCode, err)
		}
		return newError(KindUpstream, se.StatusCode, err)
	}
	return newError(KindUpstream, 0, err)
}

func enrichmentStatus(err error) int {
	var se *enrichment.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return http.StatusServiceUnavailable
	}
	return 0
}
