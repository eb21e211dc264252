package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legalpub/internal/cache"
	"github.com/sells-group/legalpub/internal/metrics"
	"github.com/sells-group/legalpub/internal/model"
	"github.com/sells-group/legalpub/internal/resilience"
)

// Placeholders used in derived titles when one side has no names.
const (
	PlaintiffPlaceholder = "Autor"
	DefendantPlaceholder = "Réu"
)

// FetchFunc looks up the enrichment payload for one process number. A nil
// payload with a nil error means the provider has nothing for it.
type FetchFunc func(ctx context.Context, number string) (*model.EnrichmentPayload, error)

// EnrichStats counts what an enrichment pass did.
type EnrichStats struct {
	Calls     int
	CacheHits int
	Failures  int
}

// Merger enriches materialized processes through a Limiter and a Cache.
type Merger struct {
	limiter *resilience.Limiter
	cache   cache.Cache
	fetch   FetchFunc
	ttl     time.Duration
	partial bool
	metrics *metrics.Metrics
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithPartial keeps going when individual lookups fail, marking those
// processes as failed instead of aborting the pass.
func WithPartial(partial bool) MergerOption {
	return func(m *Merger) { m.partial = partial }
}

// WithMetrics records lookups and provider calls on mt.
func WithMetrics(mt *metrics.Metrics) MergerOption {
	return func(m *Merger) { m.metrics = mt }
}

// NewMerger creates a Merger. A nil cache disables caching.
func NewMerger(limiter *resilience.Limiter, c cache.Cache, fetch FetchFunc, ttl time.Duration, opts ...MergerOption) *Merger {
	m := &Merger{limiter: limiter, cache: c, fetch: fetch, ttl: ttl}
	for _, o := range opts {
		o(m)
	}
	return m
}

type lookup struct {
	payload *model.EnrichmentPayload
	err     error
}

// Enrich fetches a payload for every distinct process number and merges it
// into procs in place. Unless the Merger is partial, the first failed
// lookup aborts the pass and procs are left untouched.
func (m *Merger) Enrich(ctx context.Context, procs []model.Process) (EnrichStats, error) {
	var stats EnrichStats
	log := zap.L().With(zap.String("component", "pipeline.enrich"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numbers := distinctNumbers(procs)
	results := make(map[string]lookup, len(numbers))
	futures := make(map[string]*resilience.Future[*model.EnrichmentPayload], len(numbers))

	for _, number := range numbers {
		if payload, ok := m.cached(ctx, number); ok {
			stats.CacheHits++
			results[number] = lookup{payload: payload}
			continue
		}
		stats.Calls++
		futures[number] = resilience.Submit(ctx, m.limiter, m.fetchAndStore(number))
	}

	// Handle lookups in completion order so a fast failure cancels the
	// calls still in flight.
	done := make(chan string, len(futures))
	for number, f := range futures {
		go func() {
			select {
			case <-f.Done():
				done <- number
			case <-ctx.Done():
			}
		}()
	}

	for range len(futures) {
		var number string
		select {
		case number = <-done:
		case <-ctx.Done():
			return stats, eris.Wrap(ctx.Err(), "pipeline: enrichment interrupted")
		}
		payload, err := futures[number].Wait(ctx)
		if err != nil {
			stats.Failures++
			if !m.partial {
				return stats, eris.Wrapf(err, "pipeline: enrich process %s", number)
			}
			log.Warn("pipeline: enrichment failed, keeping publication data",
				zap.String("process", number), zap.Error(err))
		}
		results[number] = lookup{payload: payload, err: err}
	}

	for i := range procs {
		res, ok := results[procs[i].Number]
		switch {
		case !ok:
			continue
		case res.err != nil:
			procs[i].EnrichmentStatus = model.EnrichmentFailed
		case res.payload == nil:
			procs[i].EnrichmentStatus = model.EnrichmentUnavailable
		default:
			ApplyPayload(&procs[i], res.payload)
			procs[i].EnrichmentStatus = model.EnrichmentEnriched
		}
	}
	return stats, nil
}

// cached returns a cached payload. Cache errors are logged and treated as
// misses.
func (m *Merger) cached(ctx context.Context, number string) (*model.EnrichmentPayload, bool) {
	if m.cache == nil {
		return nil, false
	}
	payload, ok, err := m.cache.Get(ctx, number)
	if err != nil {
		zap.L().Warn("pipeline: enrichment cache get failed", zap.String("process", number), zap.Error(err))
		ok = false
	}
	m.metrics.CacheLookup(ok)
	return payload, ok
}

func (m *Merger) fetchAndStore(number string) func(ctx context.Context) (*model.EnrichmentPayload, error) {
	return func(ctx context.Context) (*model.EnrichmentPayload, error) {
		start := time.Now()
		payload, err := m.fetch(ctx, number)
		switch {
		case err != nil:
			m.metrics.ObserveEnrichment("error", time.Since(start))
			return nil, err
		case payload == nil:
			m.metrics.ObserveEnrichment("empty", time.Since(start))
			return nil, nil
		}
		m.metrics.ObserveEnrichment("ok", time.Since(start))

		if m.cache != nil {
			if err := m.cache.Put(ctx, number, payload, m.ttl); err != nil {
				zap.L().Warn("pipeline: enrichment cache put failed", zap.String("process", number), zap.Error(err))
			}
		}
		return payload, nil
	}
}

// ApplyPayload merges an enrichment payload into p. Empty payload fields
// never erase materialized values, attorneys are only appended, and the
// party lists are replaced by the payload's.
func ApplyPayload(p *model.Process, pl *model.EnrichmentPayload) {
	if v := strings.TrimSpace(pl.Court); v != "" {
		p.Court = v
	}
	if v := strings.TrimSpace(pl.CaseClass); v != "" {
		p.CaseClass = v
	}
	if v := strings.TrimSpace(pl.Subject); v != "" {
		p.Subject = v
	}
	if pl.FiledAt != nil {
		p.FiledAt = pl.FiledAt
	}
	if pl.ClaimValue != nil {
		p.ClaimValue = pl.ClaimValue
	}
	if v := strings.TrimSpace(pl.Status); v != "" {
		p.Status = v
	}

	p.Parties.Plaintiffs = naturalParties(pl.Plaintiffs)
	p.Parties.Defendants = naturalParties(pl.Defendants)
	p.Parties.Attorneys = appendAttorneys(p.Parties.Attorneys, pl.Attorneys)

	if len(p.Parties.Plaintiffs) > 0 || len(p.Parties.Defendants) > 0 {
		p.Title = sideLabel(p.Parties.Plaintiffs, PlaintiffPlaceholder) + " x " +
			sideLabel(p.Parties.Defendants, DefendantPlaceholder)
		if len(p.Parties.Plaintiffs) > 0 {
			p.ClientName, p.ClientRole = p.Parties.Plaintiffs[0].Name, model.RolePlaintiff
		} else {
			p.ClientName, p.ClientRole = p.Parties.Defendants[0].Name, model.RoleDefendant
		}
	}

	if len(pl.Raw) > 0 {
		p.Provenance.Enrichment = pl.Raw
	}
}

// naturalParties turns provider names into parties. The provider does not
// tell natural from legal persons, so every party is natural.
func naturalParties(names []string) []model.Party {
	out := make([]model.Party, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, model.Party{Name: n, PersonType: model.PersonNatural})
		}
	}
	return out
}

// appendAttorneys extends existing with extra, skipping exact repeats.
func appendAttorneys(existing, extra []model.Attorney) []model.Attorney {
	seen := make(map[model.Attorney]bool, len(existing)+len(extra))
	for _, a := range existing {
		seen[a] = true
	}
	for _, a := range extra {
		a.Name, a.OAB = strings.TrimSpace(a.Name), strings.TrimSpace(a.OAB)
		if a.Name == "" || seen[a] {
			continue
		}
		seen[a] = true
		existing = append(existing, a)
	}
	return existing
}

func sideLabel(parties []model.Party, placeholder string) string {
	if len(parties) == 0 {
		return placeholder
	}
	names := make([]string, len(parties))
	for i, p := range parties {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

func distinctNumbers(procs []model.Process) []string {
	seen := make(map[string]bool, len(procs))
	out := make([]string, 0, len(procs))
	for _, p := range procs {
		if p.Number == "" || seen[p.Number] {
			continue
		}
		seen[p.Number] = true
		out = append(out, p.Number)
	}
	return out
}
