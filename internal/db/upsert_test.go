package db

import (
	"context"
	"fmt"
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
	t.Parallel()
	mock := newMockPool(t)

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "brand_urls",
		Columns:      []string{"brand_id", "url"},
		ConflictKeys: []string{"brand_id", "url"},
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_MissingConfig(t *testing.T) {
	t.Parallel()
	mock := newMockPool(t)
	rows := [][]any{{"b1", "https://acme.com/about"}}

	_, err := BulkUpsert(context.Background(), mock, UpsertConfig{Table: "brand_urls"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:   "brand_urls",
		Columns: []string{"brand_id", "url"},
	}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkUpsert_SmallBatchUsesInsert(t *testing.T) {
	t.Parallel()
	mock := newMockPool(t)

	mock.ExpectExec(`INSERT INTO "brand_urls" \("brand_id", "url", "category"\) VALUES \(\$1, \$2, \$3\), \(\$4, \$5, \$6\) ON CONFLICT \("brand_id", "url"\) DO UPDATE SET "category" = EXCLUDED\."category"`).
		WithArgs("b1", "https://acme.com/about", "about", "b1", "https://acme.com/blog", "news").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "brand_urls",
		Columns:      []string{"brand_id", "url", "category"},
		ConflictKeys: []string{"brand_id", "url"},
	}, [][]any{
		{"b1", "https://acme.com/about", "about"},
		{"b1", "https://acme.com/blog", "news"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_RaggedRowRejected(t *testing.T) {
	t.Parallel()
	mock := newMockPool(t)

	_, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "brand_urls",
		Columns:      []string{"brand_id", "url", "category"},
		ConflictKeys: []string{"brand_id", "url"},
	}, [][]any{{"b1", "https://acme.com/about"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0 has 2 values, want 3")
}

func TestBulkUpsert_LargeBatchUsesCopy(t *testing.T) {
	t.Parallel()
	mock := newMockPool(t)

	rows := make([][]any, copyThreshold+1)
	for i := range rows {
		rows[i] = []any{"b1", fmt.Sprintf("https://acme.com/page-%d", i), "pages"}
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_brand_urls"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_brand_urls"}, []string{"brand_id", "url", "category"}).
		WillReturnResult(int64(len(rows)))
	mock.ExpectExec(`INSERT INTO "brand_urls" .* SELECT .* FROM "_tmp_upsert_brand_urls" ON CONFLICT \("brand_id", "url"\) DO UPDATE SET "category" = EXCLUDED\."category"`).
		WillReturnResult(pgxmock.NewResult("INSERT", int64(len(rows))))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "brand_urls",
		Columns:      []string{"brand_id", "url", "category"},
		ConflictKeys: []string{"brand_id", "url"},
	}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(len(rows)), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
