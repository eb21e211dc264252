package model

import (
	"encoding/json"
	"time"
)

// PersonType distinguishes natural from legal persons.
type PersonType string

const (
	PersonNatural PersonType = "natural"
	PersonLegal   PersonType = "legal"
)

// Role is a party's participation in a process.
type Role string

const (
	RolePlaintiff Role = "plaintiff"
	RoleDefendant Role = "defendant"
)

// ProcessStatusActive is the status assigned at materialization.
const ProcessStatusActive = "active"

// EnrichmentStatus records what happened to a process during enrichment.
type EnrichmentStatus string

const (
	EnrichmentPending     EnrichmentStatus = "pending"
	EnrichmentEnriched    EnrichmentStatus = "enriched"
	EnrichmentUnavailable EnrichmentStatus = "unavailable"
	EnrichmentFailed      EnrichmentStatus = "failed"
	EnrichmentSkipped     EnrichmentStatus = "skipped"
)

// Party is a natural or legal person named in a process.
type Party struct {
	Name       string     `json:"name"`
	Document   string     `json:"document,omitempty"`
	PersonType PersonType `json:"person_type,omitempty"`
}

// Attorney is a lawyer representing one of the parties.
type Attorney struct {
	Name string `json:"name"`
	OAB  string `json:"oab,omitempty"`
}

// Parties groups the sides of a process and the attorneys on record.
type Parties struct {
	Plaintiffs []Party    `json:"plaintiffs"`
	Defendants []Party    `json:"defendants"`
	Attorneys  []Attorney `json:"attorneys"`
}

// Provenance keeps the raw provider payloads a process was built from.
type Provenance struct {
	Publication json.RawMessage `json:"publication,omitempty"`
	Enrichment  json.RawMessage `json:"enrichment,omitempty"`
}

// Process is a legal case keyed by its court-issued number.
type Process struct {
	ID               string           `json:"id,omitempty"`
	Number           string           `json:"number"`
	Title            string           `json:"title"`
	Court            string           `json:"court"`
	CaseClass        string           `json:"case_class,omitempty"`
	Subject          string           `json:"subject,omitempty"`
	Status           string           `json:"status"`
	FiledAt          *time.Time       `json:"filed_at,omitempty"`
	ClaimValue       *float64         `json:"claim_value,omitempty"`
	Parties          Parties          `json:"parties"`
	ClientName       string           `json:"client_name,omitempty"`
	ClientRole       Role             `json:"client_role,omitempty"`
	EnrichmentStatus EnrichmentStatus `json:"enrichment_status"`
	Provenance       Provenance       `json:"-"`
}

// EnrichmentPayload is the typed subset of the enrichment provider's
// response that reconciliation consumes. Empty strings and nil pointers mean
// the provider did not supply the field.
type EnrichmentPayload struct {
	ProcessNumber string          `json:"process_number"`
	Court         string          `json:"court,omitempty"`
	CaseClass     string          `json:"case_class,omitempty"`
	Subject       string          `json:"subject,omitempty"`
	Status        string          `json:"status,omitempty"`
	FiledAt       *time.Time      `json:"filed_at,omitempty"`
	ClaimValue    *float64        `json:"claim_value,omitempty"`
	Plaintiffs    []string        `json:"plaintiffs,omitempty"`
	Defendants    []string        `json:"defendants,omitempty"`
	Attorneys     []Attorney      `json:"attorneys,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}
