// Package cost prices provider usage for the telemetry written after each
// pipeline run.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Publications PublicationsRate `yaml:"publications" mapstructure:"publications"`
	Enrichment   EnrichmentRate   `yaml:"enrichment" mapstructure:"enrichment"`
}

// PublicationsRate prices the publication search provider per request.
type PublicationsRate struct {
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// EnrichmentRate prices the enrichment provider per process lookup.
type EnrichmentRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Usage counts billable provider calls for one run.
type Usage struct {
	PublicationRequests int
	EnrichmentQueries   int
}

// Calculator computes costs for provider usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Publications returns the cost of n publication search requests.
func (c *Calculator) Publications(n int) float64 {
	return float64(n) * c.rates.Publications.PerRequest
}

// Enrichment returns the cost of n enrichment lookups. Cache hits are not
// billed and must not be counted in n.
func (c *Calculator) Enrichment(n int) float64 {
	return float64(n) * c.rates.Enrichment.PerQuery
}

// Total prices a run's usage.
func (c *Calculator) Total(u Usage) float64 {
	return c.Publications(u.PublicationRequests) + c.Enrichment(u.EnrichmentQueries)
}
