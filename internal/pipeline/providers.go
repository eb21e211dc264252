package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/sells-group/legalpub/internal/model"
	"github.com/sells-group/legalpub/internal/resilience"
	"github.com/sells-group/legalpub/pkg/enrichment"
	"github.com/sells-group/legalpub/pkg/publications"
)

// retryable treats transient provider statuses and network errors as worth
// retrying. Auth failures and other 4xx answers are final.
func retryable(err error) bool {
	var pe *publications.StatusError
	if errors.As(err, &pe) {
		return resilience.IsTransientHTTPStatus(pe.StatusCode)
	}
	var ee *enrichment.StatusError
	if errors.As(err, &ee) {
		return resilience.IsTransientHTTPStatus(ee.StatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return resilience.IsTransient(err)
}

func (p *Pipeline) retryConfig(provider, operation string, maxAttempts int) resilience.RetryConfig {
	cfg := resilience.NewRetryConfig(maxAttempts, 0)
	cfg.ShouldRetry = retryable
	cfg.OnRetry = resilience.RetryLogger(provider, operation)
	if p.retryBackoff > 0 {
		cfg.InitialBackoff = p.retryBackoff
	}
	return cfg
}

func (p *Pipeline) fetchPublications(ctx context.Context, q publications.Query) ([]model.Publication, error) {
	cfg := p.retryConfig("publications", "fetch", p.cfg.Publications.MaxRetries)
	items, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]publications.Item, error) {
		return p.publications.FetchPublications(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Publication, 0, len(items))
	for _, it := range items {
		out = append(out, publicationFromItem(it))
	}
	return out, nil
}

// fetchEnrichment is the FetchFunc handed to the Merger. Calls go through
// the circuit breaker so a failing provider is not hammered by every
// queued lookup.
func (p *Pipeline) fetchEnrichment(ctx context.Context, number string) (*model.EnrichmentPayload, error) {
	cfg := p.retryConfig("enrichment", "fetch_process", p.cfg.Enrichment.MaxRetries)
	proc, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (*enrichment.Process, error) {
		return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*enrichment.Process, error) {
			return p.enrichment.FetchProcess(ctx, number)
		})
	})
	if err != nil || proc == nil {
		return nil, err
	}
	return payloadFromProcess(number, proc), nil
}

func publicationFromItem(it publications.Item) model.Publication {
	return model.Publication{
		ExternalID:    strings.TrimSpace(it.ID),
		ProcessNumber: strings.TrimSpace(it.ProcessNumber),
		PublishedAt:   it.PublishedTime(),
		Content:       it.Content,
		Court:         strings.TrimSpace(it.Court),
		Diary:         it.Diary,
		Page:          it.Page,
		OABNumber:     it.OAB,
		Raw:           it.Raw,
	}
}

func payloadFromProcess(number string, proc *enrichment.Process) *model.EnrichmentPayload {
	pl := &model.EnrichmentPayload{
		ProcessNumber: firstNonEmpty(proc.Number, number),
		Court:         proc.Court,
		CaseClass:     proc.Class,
		Subject:       proc.Subject,
		Status:        proc.Status,
		FiledAt:       proc.FiledTime(),
		Plaintiffs:    proc.Parties.Plaintiffs,
		Defendants:    proc.Parties.Defendants,
		Raw:           proc.Raw,
	}
	if proc.ClaimValue != nil {
		v := float64(*proc.ClaimValue)
		pl.ClaimValue = &v
	}
	for _, a := range proc.Parties.Attorneys {
		pl.Attorneys = append(pl.Attorneys, model.Attorney{Name: a.Name, OAB: a.OAB})
	}
	return pl
}
