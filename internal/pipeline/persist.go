package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/legalpub/internal/model"
	"github.com/sells-group/legalpub/internal/store"
)

const publicationWriteConcurrency = 4

// graph is everything a run writes.
type graph struct {
	lawyer       *model.Lawyer
	processes    []model.Process
	clients      []model.Client
	links        []model.ClientLink
	publications []model.Publication
	usage        model.UsageRecord
}

// persist writes g in order: lawyer, processes, clients, links,
// publications, usage. Steps are not wrapped in a transaction; every write
// is an upsert, so a failed run is recovered by running it again. IDs are
// set on g's lawyer, processes and clients.
func persist(ctx context.Context, st store.Store, g *graph) (*model.PersistStats, error) {
	log := zap.L().With(zap.String("oab", g.lawyer.OABNumber), zap.String("uf", g.lawyer.UF))
	stats := &model.PersistStats{}

	if err := st.UpsertLawyer(ctx, g.lawyer); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist lawyer")
	}

	procIDs, err := st.UpsertProcesses(ctx, g.lawyer.ID, g.processes)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: persist processes")
	}
	for i := range g.processes {
		g.processes[i].ID = procIDs[g.processes[i].Number]
	}
	stats.Processes = len(procIDs)

	clientIDs, err := st.UpsertClients(ctx, g.clients)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: persist clients")
	}
	for i := range g.clients {
		g.clients[i].ID = clientIDs[g.clients[i].Key]
	}
	stats.Clients = len(clientIDs)

	rows := make([]store.Link, 0, len(g.links))
	for _, l := range g.links {
		clientID, procID := clientIDs[l.ClientKey], procIDs[l.ProcessNumber]
		if clientID == "" || procID == "" {
			stats.DroppedLinks++
			continue
		}
		rows = append(rows, store.Link{ClientID: clientID, ProcessID: procID, Role: l.Role})
	}
	if stats.DroppedLinks > 0 {
		log.Warn("pipeline: dropped unresolved client links", zap.Int("dropped", stats.DroppedLinks))
	}
	if len(rows) > 0 {
		if _, err := st.LinkClients(ctx, rows); err != nil {
			return nil, eris.Wrap(err, "pipeline: persist client links")
		}
	}
	stats.Links = len(rows)

	var unlinked atomic.Int64
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(publicationWriteConcurrency)
	for _, pub := range g.publications {
		eg.Go(func() error {
			var procID *string
			if id, ok := procIDs[strings.TrimSpace(pub.ProcessNumber)]; ok {
				procID = &id
			} else {
				unlinked.Add(1)
			}
			return st.UpsertPublication(gctx, g.lawyer.ID, pub, procID)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist publications")
	}
	stats.Publications = len(g.publications)
	stats.UnlinkedPublications = int(unlinked.Load())

	usage := g.usage
	usage.CreatedAt = time.Now().UTC()
	if err := st.TrackAPICost(ctx, usage); err != nil {
		log.Warn("pipeline: failed to record usage", zap.Error(err))
	}
	return stats, nil
}
