package docstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestFirestoreErr(t *testing.T) {
	assert.ErrorIs(t, firestoreErr("get", "a/b", status.Error(codes.NotFound, "missing")), ErrNotFound)

	err := firestoreErr("get", "a/b", errors.New("boom"))
	assert.EqualError(t, err, "get a/b: boom")
}

func TestFirestoreIntegration(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set; skipping firestore integration test")
	}
	ctx := context.Background()
	store, err := OpenFirestore(ctx, FirestoreConfig{ProjectID: "mynews-test"})
	require.NoError(t, err)
	defer store.Close()

	coll := Join("it", "run", "items")
	_, _ = DeleteCollection(ctx, store, coll)

	rec := newRecorder()
	sub, err := store.Watch(ctx, coll, rec.fn)
	require.NoError(t, err)
	defer sub.Stop()
	rec.waitFor(t, 0)

	require.NoError(t, store.Set(ctx, Join(coll, "a"), map[string]any{"name": "a", "tag": "red"}))
	require.NoError(t, store.Set(ctx, Join(coll, "b"), map[string]any{"name": "b", "tag": "blue"}))
	rec.waitFor(t, 2)

	assert.ErrorIs(t, store.Update(ctx, Join(coll, "zz"), map[string]any{"tag": "x"}), ErrNotFound)
	require.NoError(t, store.Update(ctx, Join(coll, "b"), map[string]any{"tag": "red"}))

	docs, err := store.Query(ctx, Query{Collection: coll, Where: []Filter{{Field: "tag", Value: "red"}}})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	n, err := store.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Batch().Delete(Join(coll, "a")).Delete(Join(coll, "b")).Commit(ctx))
	rec.waitFor(t, 0)
}
