package model

import "time"

// SyncResult is the response payload of a pipeline run.
type SyncResult struct {
	Lawyer    Lawyer    `json:"lawyer"`
	Processes []Process `json:"processes"`
	Clients   []Client  `json:"clients"`
	Stats     Stats     `json:"stats"`
}

// Stats summarizes a pipeline run.
type Stats struct {
	TotalPublications   int           `json:"total_publications"`
	SkippedPublications int           `json:"skipped_publications"`
	TotalProcesses      int           `json:"total_processes"`
	TotalClients        int           `json:"total_clients"`
	EnrichmentUsed      bool          `json:"enrichment_used"`
	EnrichmentCalls     int           `json:"enrichment_calls"`
	CacheHits           int           `json:"cache_hits"`
	EnrichmentFailures  int           `json:"enrichment_failures"`
	DurationMs          int64         `json:"duration_ms"`
	Persistence         *PersistStats `json:"persistence,omitempty"`
}

// PersistStats counts rows written by the persistence phase.
type PersistStats struct {
	Processes            int `json:"processes"`
	Clients              int `json:"clients"`
	Links                int `json:"links"`
	Publications         int `json:"publications"`
	UnlinkedPublications int `json:"unlinked_publications"`
	DroppedLinks         int `json:"dropped_links"`
}

// UsageRecord is the cost and usage telemetry written after persistence.
type UsageRecord struct {
	Provider        string    `json:"provider"`
	Operation       string    `json:"operation"`
	OABNumber       string    `json:"oab_number"`
	UF              string    `json:"uf"`
	Publications    int       `json:"publications"`
	Processes       int       `json:"processes"`
	Clients         int       `json:"clients"`
	EnrichmentCalls int       `json:"enrichment_calls"`
	CacheHits       int       `json:"cache_hits"`
	CostUSD         float64   `json:"cost_usd"`
	CreatedAt       time.Time `json:"created_at"`
}
