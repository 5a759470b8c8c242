package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "scored_domains",
		Columns:      []string{"domain", "result"},
		ConflictKeys: []string{"domain"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "scored_domains",
		ConflictKeys: []string{"domain"},
	}, [][]any{{"a.com", "{}"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "scored_domains",
		Columns: []string{"domain", "result"},
	}, [][]any{{"a.com", "{}"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_scored_domains"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_scored_domains"}, []string{"domain", "result"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "scored_domains" .+ ON CONFLICT \("domain"\) DO UPDATE SET "result" = EXCLUDED\."result"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{{"a.com", "{}"}, {"b.com", "{}"}}
	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "scored_domains",
		Columns:      []string{"domain", "result"},
		ConflictKeys: []string{"domain"},
	}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"domain", "score", "grade"})
	assert.Equal(t, `"domain", "score", "grade"`, result)
}
