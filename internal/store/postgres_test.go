package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legalpub/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_UpsertLawyer(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO lawyers .* ON CONFLICT \(oab_number, uf\) DO UPDATE`).
		WithArgs("123456", "SP", "Maria Souza", true).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("lawyer-1"))

	l := &model.Lawyer{OABNumber: "123456", UF: "SP", Name: "Maria Souza", Active: true}
	require.NoError(t, s.UpsertLawyer(context.Background(), l))
	assert.Equal(t, "lawyer-1", l.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertLawyer_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO lawyers`).WillReturnError(errors.New("connection refused"))

	err := s.UpsertLawyer(context.Background(), &model.Lawyer{OABNumber: "1", UF: "RJ"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert lawyer 1/RJ")
}

func TestPostgresStore_UpsertProcesses(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO processes .* ON CONFLICT \(number\) DO UPDATE`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("p-100"))
	mock.ExpectQuery(`INSERT INTO processes`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("p-200"))
	mock.ExpectCommit()

	ids, err := s.UpsertProcesses(context.Background(), "lawyer-1", []model.Process{
		{Number: "100", Title: "Process 100", Court: "TJSP", Status: model.ProcessStatusActive},
		{Number: "200", Title: "Process 200", Court: "TJRJ", Status: model.ProcessStatusActive},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"100": "p-100", "200": "p-200"}, ids)
}

func TestPostgresStore_UpsertProcesses_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO processes`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := s.UpsertProcesses(context.Background(), "lawyer-1", []model.Process{{Number: "100"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert process 100")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProcesses_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ids, err := s.UpsertProcesses(context.Background(), "lawyer-1", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertClients(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO clients .* ON CONFLICT \(identity_key\)`).
		WithArgs("12345678900", "Ana Silva", "12345678900", "natural").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("c-1"))
	mock.ExpectCommit()

	ids, err := s.UpsertClients(context.Background(), []model.Client{
		{Key: "12345678900", Name: "Ana Silva", Document: "12345678900"},
	})
	require.NoError(t, err)
	assert.Equal(t, "c-1", ids["12345678900"])
}

func TestPostgresStore_LinkClients(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_process_clients"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_process_clients"}, []string{"client_id", "process_id", "role"}).
		WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("client_id", "process_id"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.LinkClients(context.Background(), []Link{
		{ClientID: "c-1", ProcessID: "p-100", Role: model.RolePlaintiff},
		{ClientID: "c-2", ProcessID: "p-100", Role: model.RoleDefendant},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgresStore_UpsertPublication_Unlinked(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	pub := model.Publication{ExternalID: "pub-9", ProcessNumber: "300", Content: "Intime-se."}
	mock.ExpectExec(`INSERT INTO publications .* ON CONFLICT \(pub_key\)`).
		WithArgs("pub-9", "lawyer-1", (*string)(nil), "300", (*time.Time)(nil),
			"Intime-se.", "", "", "", "", nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertPublication(context.Background(), "lawyer-1", pub, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TrackAPICost(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO api_costs`).
		WithArgs("publications", "sync", "123456", "SP", 3, 2, 1, 2, 0, 0.05, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.TrackAPICost(context.Background(), model.UsageRecord{
		Provider: "publications", Operation: "sync", OABNumber: "123456", UF: "SP",
		Publications: 3, Processes: 2, Clients: 1, EnrichmentCalls: 2, CostUSD: 0.05,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_AppliesPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS lawyers`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("001_init.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_FailureRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS lawyers`).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 001_init.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_SkipsApplied(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_init.sql"))
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
