// Package store persists the lawyer, process, client and publication graph.
package store

import (
	"context"

	"github.com/sells-group/legalpub/internal/model"
)

// Link is a resolved process-client relationship ready to be written.
type Link struct {
	ClientID  string
	ProcessID string
	Role      model.Role
}

// Store defines the persistence contract for pipeline runs. Every write is
// an upsert on the entity's natural key so re-running a sync is safe.
type Store interface {
	// UpsertLawyer writes the lawyer keyed by (oab_number, uf) and sets l.ID.
	UpsertLawyer(ctx context.Context, l *model.Lawyer) error
	// UpsertProcesses writes processes keyed by number and returns number -> id.
	UpsertProcesses(ctx context.Context, lawyerID string, procs []model.Process) (map[string]string, error)
	// UpsertClients writes clients keyed by identity key and returns key -> id.
	UpsertClients(ctx context.Context, clients []model.Client) (map[string]string, error)
	// LinkClients inserts process-client links, ignoring ones already present.
	LinkClients(ctx context.Context, links []Link) (int, error)
	// UpsertPublication writes a publication keyed by Publication.Key.
	// processID is nil when no persisted process matches.
	UpsertPublication(ctx context.Context, lawyerID string, pub model.Publication, processID *string) error
	// TrackAPICost appends a usage telemetry record.
	TrackAPICost(ctx context.Context, rec model.UsageRecord) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
