package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/legalpub/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// sqliteDSN appends the connection pragmas to dsn. A database/sql pool
// opens connections lazily, so a PRAGMA run through db.Exec would only
// reach one of them.
func sqliteDSN(dsn string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lawyers (
	id         TEXT PRIMARY KEY,
	oab_number TEXT NOT NULL,
	uf         TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (oab_number, uf)
);

CREATE TABLE IF NOT EXISTS processes (
	id                TEXT PRIMARY KEY,
	number            TEXT NOT NULL UNIQUE,
	lawyer_id         TEXT NOT NULL REFERENCES lawyers(id),
	title             TEXT NOT NULL,
	court             TEXT NOT NULL,
	case_class        TEXT NOT NULL DEFAULT '',
	subject           TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	filed_at          DATETIME,
	claim_value       REAL,
	parties           TEXT NOT NULL,
	client_name       TEXT NOT NULL DEFAULT '',
	client_role       TEXT NOT NULL DEFAULT '',
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	provenance        TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS clients (
	id           TEXT PRIMARY KEY,
	identity_key TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	document     TEXT NOT NULL DEFAULT '',
	person_type  TEXT NOT NULL DEFAULT 'natural',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS process_clients (
	client_id  TEXT NOT NULL REFERENCES clients(id),
	process_id TEXT NOT NULL REFERENCES processes(id),
	role       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (client_id, process_id)
);

CREATE TABLE IF NOT EXISTS publications (
	id             TEXT PRIMARY KEY,
	pub_key        TEXT NOT NULL UNIQUE,
	lawyer_id      TEXT NOT NULL REFERENCES lawyers(id),
	process_id     TEXT REFERENCES processes(id),
	process_number TEXT NOT NULL DEFAULT '',
	published_at   DATETIME,
	content        TEXT NOT NULL DEFAULT '',
	court          TEXT NOT NULL DEFAULT '',
	diary          TEXT NOT NULL DEFAULT '',
	page           TEXT NOT NULL DEFAULT '',
	oab_number     TEXT NOT NULL DEFAULT '',
	raw            TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS api_costs (
	id               TEXT PRIMARY KEY,
	provider         TEXT NOT NULL,
	operation        TEXT NOT NULL,
	oab_number       TEXT NOT NULL,
	uf               TEXT NOT NULL,
	publications     INTEGER NOT NULL DEFAULT 0,
	processes        INTEGER NOT NULL DEFAULT 0,
	clients          INTEGER NOT NULL DEFAULT 0,
	enrichment_calls INTEGER NOT NULL DEFAULT 0,
	cache_hits       INTEGER NOT NULL DEFAULT 0,
	cost_usd         REAL NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_processes_lawyer_id ON processes(lawyer_id);
CREATE INDEX IF NOT EXISTS idx_publications_process_id ON publications(process_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertLawyer(ctx context.Context, l *model.Lawyer) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO lawyers (id, oab_number, uf, name, active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (oab_number, uf) DO UPDATE SET
			name = COALESCE(NULLIF(excluded.name, ''), lawyers.name),
			active = excluded.active,
			updated_at = datetime('now')
		RETURNING id`,
		uuid.New().String(), l.OABNumber, l.UF, l.Name, l.Active,
	).Scan(&l.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert lawyer %s/%s", l.OABNumber, l.UF)
	}
	return nil
}

func (s *SQLiteStore) UpsertProcesses(ctx context.Context, lawyerID string, procs []model.Process) (map[string]string, error) {
	ids := make(map[string]string, len(procs))
	if len(procs) == 0 {
		return ids, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert processes: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, p := range procs {
		args, err := processArgs(lawyerID, p)
		if err != nil {
			return nil, err
		}
		var id string
		err = tx.QueryRowContext(ctx,
			`INSERT INTO processes (
				id, number, lawyer_id, title, court, case_class, subject, status, filed_at,
				claim_value, parties, client_name, client_role, enrichment_status, provenance
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (number) DO UPDATE SET
				lawyer_id = excluded.lawyer_id,
				title = excluded.title,
				court = excluded.court,
				case_class = excluded.case_class,
				subject = excluded.subject,
				status = excluded.status,
				filed_at = excluded.filed_at,
				claim_value = excluded.claim_value,
				parties = excluded.parties,
				client_name = excluded.client_name,
				client_role = excluded.client_role,
				enrichment_status = excluded.enrichment_status,
				provenance = excluded.provenance,
				updated_at = datetime('now')
			RETURNING id`,
			append([]any{uuid.New().String()}, args...)...,
		).Scan(&id)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: upsert process %s", p.Number)
		}
		ids[p.Number] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert processes: commit tx")
	}
	return ids, nil
}

func (s *SQLiteStore) UpsertClients(ctx context.Context, clients []model.Client) (map[string]string, error) {
	ids := make(map[string]string, len(clients))
	if len(clients) == 0 {
		return ids, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert clients: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range clients {
		var id string
		err := tx.QueryRowContext(ctx,
			`INSERT INTO clients (id, identity_key, name, document, person_type) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (identity_key) DO UPDATE SET
				name = excluded.name,
				document = excluded.document,
				person_type = excluded.person_type,
				updated_at = datetime('now')
			RETURNING id`,
			uuid.New().String(), c.Key, c.Name, c.Document, string(personTypeOrDefault(c.PersonType)),
		).Scan(&id)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: upsert client %s", c.Key)
		}
		ids[c.Key] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert clients: commit tx")
	}
	return ids, nil
}

func (s *SQLiteStore) LinkClients(ctx context.Context, links []Link) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: link clients: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	inserted := 0
	for _, l := range links {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO process_clients (client_id, process_id, role) VALUES (?, ?, ?)
			ON CONFLICT (client_id, process_id) DO NOTHING`,
			l.ClientID, l.ProcessID, string(l.Role),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: link client %s to process %s", l.ClientID, l.ProcessID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: link clients: rows affected")
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: link clients: commit tx")
	}
	return inserted, nil
}

func (s *SQLiteStore) UpsertPublication(ctx context.Context, lawyerID string, pub model.Publication, processID *string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publications (
			id, pub_key, lawyer_id, process_id, process_number, published_at,
			content, court, diary, page, oab_number, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pub_key) DO UPDATE SET
			process_id = COALESCE(excluded.process_id, publications.process_id),
			lawyer_id = excluded.lawyer_id,
			updated_at = datetime('now')`,
		uuid.New().String(), pub.Key(), lawyerID, processID, pub.ProcessNumber, pub.PublishedAt,
		pub.Content, pub.Court, pub.Diary, pub.Page, pub.OABNumber, rawOrNil(pub.Raw),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert publication %s", pub.Key())
	}
	return nil
}

func (s *SQLiteStore) TrackAPICost(ctx context.Context, rec model.UsageRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_costs (
			id, provider, operation, oab_number, uf, publications, processes,
			clients, enrichment_calls, cache_hits, cost_usd, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.Provider, rec.Operation, rec.OABNumber, rec.UF, rec.Publications,
		rec.Processes, rec.Clients, rec.EnrichmentCalls, rec.CacheHits, rec.CostUSD, createdAt,
	)
	return eris.Wrap(err, "sqlite: track api cost")
}
