package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Publications: PublicationsRate{PerRequest: 0.05},
		Enrichment:   EnrichmentRate{PerQuery: 0.01},
	}
}

func TestCalculator(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name  string
		usage Usage
		want  float64
	}{
		{name: "empty", usage: Usage{}, want: 0},
		{name: "publications only", usage: Usage{PublicationRequests: 2}, want: 0.10},
		{name: "enrichment only", usage: Usage{EnrichmentQueries: 30}, want: 0.30},
		{name: "both", usage: Usage{PublicationRequests: 1, EnrichmentQueries: 5}, want: 0.10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Total(tt.usage), 1e-9)
		})
	}
}

func TestZeroRatesAreFree(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(Rates{})
	assert.Zero(t, calc.Total(Usage{PublicationRequests: 10, EnrichmentQueries: 10}))
}
