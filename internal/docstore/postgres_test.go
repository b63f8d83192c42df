package docstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewPostgres(PostgresConfig{DB: sqlx.NewDb(db, "postgres")})
	require.NoError(t, err)
	return store, mock
}

func TestPostgres_Get(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE path = $1`)).
		WithArgs("items/a").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"name":"a","count":2}`)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE path = $1`)).
		WithArgs("items/b").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	var got testDoc
	require.NoError(t, store.Get(ctx, "items/a", &got))
	assert.Equal(t, testDoc{Name: "a", Count: 2}, got)

	assert.ErrorIs(t, store.Get(ctx, "items/b", &got), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SetAndDelete(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents (path, parent, id, data, updated_at)`)).
		WithArgs("users/u1/items/a", "users/u1/items", "a", `{"name":"a","count":1}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE path = $1`)).
		WithArgs("users/u1/items/a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Set(ctx, "users/u1/items/a", testDoc{Name: "a", Count: 1}))
	require.NoError(t, store.Delete(ctx, "users/u1/items/a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateMissing(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE documents SET data = data \|\| \$2::jsonb`).
		WithArgs("items/a", `{"count":3}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE documents SET data = data \|\| \$2::jsonb`).
		WithArgs("items/b", `{"count":3}`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Update(ctx, "items/a", map[string]any{"count": 3}))
	assert.ErrorIs(t, store.Update(ctx, "items/b", map[string]any{"count": 3}), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QueryBuildsFilters(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT path, data FROM documents WHERE parent = $1 AND data->($2::text) = $3::jsonb ORDER BY path LIMIT $4`)).
		WithArgs("items", "tag", `"red"`, 2).
		WillReturnRows(sqlmock.NewRows([]string{"path", "data"}).
			AddRow("items/a", []byte(`{"name":"a","tag":"red"}`)).
			AddRow("items/b", []byte(`{"name":"b","tag":"red"}`)))

	docs, err := store.Query(ctx, Query{Collection: "items", Where: []Filter{{Field: "tag", Value: "red"}}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[1].ID)
	var d testDoc
	require.NoError(t, docs[0].DataTo(&d))
	assert.Equal(t, "a", d.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CountAndExists(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM documents WHERE parent = $1`)).
		WithArgs("items").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM documents WHERE path = $1)`)).
		WithArgs("items/a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	n, err := store.Count(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	ok, err := store.Exists(ctx, "items/a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BatchCommitAndRollback(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Batch().Set("items/a", testDoc{Name: "a"}).Delete("items/b").Commit(ctx))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := store.Batch().Set("items/a", testDoc{}).Set("items/c", testDoc{}).Commit(ctx)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_WatchNeedsListener(t *testing.T) {
	store, _ := newMockPostgres(t)
	_, err := store.Watch(context.Background(), "items", func([]Document, error) {})
	assert.ErrorIs(t, err, ErrWatchUnavailable)
}

func TestPostgres_WatchSignalledByRegistry(t *testing.T) {
	store, mock := newMockPostgres(t)
	// stand in for the listener: signal the registry directly
	store.listener = nil
	mock.MatchExpectationsInOrder(false)

	rows := func(paths ...string) *sqlmock.Rows {
		r := sqlmock.NewRows([]string{"path", "data"})
		for _, p := range paths {
			r.AddRow(p, []byte(`{}`))
		}
		return r
	}
	mock.ExpectQuery(`SELECT path, data FROM documents WHERE parent`).WithArgs("items").WillReturnRows(rows("items/a"))
	mock.ExpectQuery(`SELECT path, data FROM documents WHERE parent`).WithArgs("items").WillReturnRows(rows("items/a", "items/b"))

	rec := newRecorder()
	sub := startNotifySub(context.Background(), "items", func(ctx context.Context) ([]Document, error) {
		return store.List(ctx, "items")
	}, rec.fn, store.subs)
	defer sub.Stop()

	rec.waitFor(t, 1)
	store.subs.signal("items")
	rec.waitFor(t, 2)
}

func TestPostgres_Close(t *testing.T) {
	store, _ := newMockPostgres(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	_, err := store.Watch(context.Background(), "items", func([]Document, error) {})
	assert.Error(t, err)
}
