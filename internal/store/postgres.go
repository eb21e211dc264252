package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/legalpub/internal/db"
	"github.com/sells-group/legalpub/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertLawyer(ctx context.Context, l *model.Lawyer) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO lawyers (oab_number, uf, name, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (oab_number, uf) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), lawyers.name),
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING id`,
		l.OABNumber, l.UF, l.Name, l.Active,
	).Scan(&l.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert lawyer %s/%s", l.OABNumber, l.UF)
	}
	return nil
}

const upsertProcessSQL = `INSERT INTO processes (
	number, lawyer_id, title, court, case_class, subject, status, filed_at,
	claim_value, parties, client_name, client_role, enrichment_status, provenance
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (number) DO UPDATE SET
	lawyer_id = EXCLUDED.lawyer_id,
	title = EXCLUDED.title,
	court = EXCLUDED.court,
	case_class = EXCLUDED.case_class,
	subject = EXCLUDED.subject,
	status = EXCLUDED.status,
	filed_at = EXCLUDED.filed_at,
	claim_value = EXCLUDED.claim_value,
	parties = EXCLUDED.parties,
	client_name = EXCLUDED.client_name,
	client_role = EXCLUDED.client_role,
	enrichment_status = EXCLUDED.enrichment_status,
	provenance = EXCLUDED.provenance,
	updated_at = now()
RETURNING id`

// UpsertProcesses writes all processes in one transaction.
func (s *PostgresStore) UpsertProcesses(ctx context.Context, lawyerID string, procs []model.Process) (map[string]string, error) {
	ids := make(map[string]string, len(procs))
	if len(procs) == 0 {
		return ids, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert processes: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, p := range procs {
		args, err := processArgs(lawyerID, p)
		if err != nil {
			return nil, err
		}
		var id string
		if err := tx.QueryRow(ctx, upsertProcessSQL, args...).Scan(&id); err != nil {
			return nil, eris.Wrapf(err, "postgres: upsert process %s", p.Number)
		}
		ids[p.Number] = id
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: upsert processes: commit tx")
	}
	return ids, nil
}

const upsertClientSQL = `INSERT INTO clients (identity_key, name, document, person_type)
VALUES ($1, $2, $3, $4)
ON CONFLICT (identity_key) DO UPDATE SET
	name = EXCLUDED.name,
	document = EXCLUDED.document,
	person_type = EXCLUDED.person_type,
	updated_at = now()
RETURNING id`

// UpsertClients writes all clients in one transaction.
func (s *PostgresStore) UpsertClients(ctx context.Context, clients []model.Client) (map[string]string, error) {
	ids := make(map[string]string, len(clients))
	if len(clients) == 0 {
		return ids, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert clients: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, c := range clients {
		var id string
		err := tx.QueryRow(ctx, upsertClientSQL, c.Key, c.Name, c.Document, string(personTypeOrDefault(c.PersonType))).Scan(&id)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: upsert client %s", c.Key)
		}
		ids[c.Key] = id
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: upsert clients: commit tx")
	}
	return ids, nil
}

// LinkClients stages links with COPY and inserts the ones not yet present.
func (s *PostgresStore) LinkClients(ctx context.Context, links []Link) (int, error) {
	rows := make([][]any, 0, len(links))
	for _, l := range links {
		rows = append(rows, []any{l.ClientID, l.ProcessID, string(l.Role)})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "process_clients",
		Columns:      []string{"client_id", "process_id", "role"},
		ConflictKeys: []string{"client_id", "process_id"},
		DoNothing:    true,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: link clients")
	}
	return int(n), nil
}

func (s *PostgresStore) UpsertPublication(ctx context.Context, lawyerID string, pub model.Publication, processID *string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO publications (
			pub_key, lawyer_id, process_id, process_number, published_at,
			content, court, diary, page, oab_number, raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (pub_key) DO UPDATE SET
			process_id = COALESCE(EXCLUDED.process_id, publications.process_id),
			lawyer_id = EXCLUDED.lawyer_id,
			updated_at = now()`,
		pub.Key(), lawyerID, processID, pub.ProcessNumber, pub.PublishedAt,
		pub.Content, pub.Court, pub.Diary, pub.Page, pub.OABNumber, rawOrNil(pub.Raw),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert publication %s", pub.Key())
	}
	return nil
}

func (s *PostgresStore) TrackAPICost(ctx context.Context, rec model.UsageRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_costs (
			provider, operation, oab_number, uf, publications, processes,
			clients, enrichment_calls, cache_hits, cost_usd, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.Provider, rec.Operation, rec.OABNumber, rec.UF, rec.Publications, rec.Processes,
		rec.Clients, rec.EnrichmentCalls, rec.CacheHits, rec.CostUSD, createdAt,
	)
	return eris.Wrap(err, "postgres: track api cost")
}

// processArgs renders the positional arguments of upsertProcessSQL.
func processArgs(lawyerID string, p model.Process) ([]any, error) {
	parties, err := json.Marshal(p.Parties)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal parties for %s", p.Number)
	}
	provenance, err := json.Marshal(p.Provenance)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal provenance for %s", p.Number)
	}
	return []any{
		p.Number, lawyerID, p.Title, p.Court, p.CaseClass, p.Subject, p.Status, p.FiledAt,
		p.ClaimValue, string(parties), p.ClientName, string(p.ClientRole),
		string(enrichmentStatusOrDefault(p.EnrichmentStatus)), string(provenance),
	}, nil
}

func personTypeOrDefault(pt model.PersonType) model.PersonType {
	if pt == "" {
		return model.PersonNatural
	}
	return pt
}

func enrichmentStatusOrDefault(s model.EnrichmentStatus) model.EnrichmentStatus {
	if s == "" {
		return model.EnrichmentPending
	}
	return s
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
