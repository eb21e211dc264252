package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "process_clients",
		Columns:      []string{"client_id", "process_id"},
		ConflictKeys: []string{"client_id", "process_id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_Validation(t *testing.T) {
	rows := [][]any{{"c1", "p1"}}
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "t", ConflictKeys: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Table: "t", Columns: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{
		Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"},
	}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")
}

func TestBulkUpsert_UpdatesOnConflict(t *testing.T) {
	mock := newMockPool(t)
	rows := [][]any{{"c1", "p1", "plaintiff"}, {"c2", "p1", "defendant"}}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_process_clients" \(LIKE "process_clients" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_process_clients"}, []string{"client_id", "process_id", "role"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "process_clients" .* ON CONFLICT \("client_id", "process_id"\) DO UPDATE SET "role" = EXCLUDED."role"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "process_clients",
		Columns:      []string{"client_id", "process_id", "role"},
		ConflictKeys: []string{"client_id", "process_id"},
	}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBulkUpsert_DoNothing(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_links"}, []string{"a", "b"}).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("a", "b"\) DO NOTHING`).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table: "links", Columns: []string{"a", "b"}, ConflictKeys: []string{"a", "b"}, DoNothing: true,
	}, [][]any{{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_links"}, []string{"a", "b"}).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table: "links", Columns: []string{"a", "b"}, ConflictKeys: []string{"a"},
	}, [][]any{{1, 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for links")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"simple"`, SanitizeTable("simple"))
	assert.Equal(t, `"legal"."processes"`, SanitizeTable("legal.processes"))
	assert.Equal(t, "_tmp_upsert_legal_processes", TempTableName("legal.processes"))
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
