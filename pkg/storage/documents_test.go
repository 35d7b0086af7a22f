package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digiklausur/data-gateway/pkg/dataset"
	"github.com/digiklausur/data-gateway/pkg/observability"
)

func newTestStore() *Store {
	s := NewStore(NewMemoryBackend(), observability.NewLogger(observability.ErrorLevel, io.Discard))
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	s.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}
	return s
}

func TestStoreSetCreatesTimestamps(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ds := dataset.New(dataset.StringKey("alice"))
	ds["role"] = "student"

	key, err := store.Set(ctx, "users", ds)
	require.NoError(t, err)
	assert.Equal(t, "alice", key.StorageID())

	got, err := store.Get(ctx, "users", key)
	require.NoError(t, err)
	assert.Equal(t, "student", got.String("role"))
	assert.NotEmpty(t, got.String(dataset.FieldCreatedAt))
	assert.Equal(t, got.String(dataset.FieldCreatedAt), got.String(dataset.FieldUpdatedAt))
}

func TestStoreSetUpdatePreservesCreatedAt(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ds := dataset.New(dataset.StringKey("alice"))
	ds["role"] = "student"
	_, err := store.Set(ctx, "users", ds)
	require.NoError(t, err)

	first, err := store.Get(ctx, "users", dataset.StringKey("alice"))
	require.NoError(t, err)

	update := dataset.New(dataset.StringKey("alice"))
	update["role"] = "grader"
	_, err = store.Set(ctx, "users", update)
	require.NoError(t, err)

	got, err := store.Get(ctx, "users", dataset.StringKey("alice"))
	require.NoError(t, err)
	assert.Equal(t, "grader", got.String("role"))
	assert.Equal(t, first.String(dataset.FieldCreatedAt), got.String(dataset.FieldCreatedAt))
	assert.NotEqual(t, got.String(dataset.FieldCreatedAt), got.String(dataset.FieldUpdatedAt))
}

func TestStoreSetRemovesEmptyStringFields(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ds := dataset.New(dataset.StringKey("alice"))
	ds["nickname"] = "al"
	_, err := store.Set(ctx, "users", ds)
	require.NoError(t, err)

	update := dataset.New(dataset.StringKey("alice"))
	update["nickname"] = ""
	_, err = store.Set(ctx, "users", update)
	require.NoError(t, err)

	got, err := store.Get(ctx, "users", dataset.StringKey("alice"))
	require.NoError(t, err)
	_, present := got["nickname"]
	assert.False(t, present, "empty-string field must be removed, not stored")
}

func TestStoreGetNotFound(t *testing.T) {
	store := newTestStore()
	_, err := store.Get(context.Background(), "users", dataset.StringKey("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreQuery(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		ds := dataset.New(dataset.StringKey(name))
		ds["kind"] = "person"
		_, err := store.Set(ctx, "things", ds)
		require.NoError(t, err)
	}
	other := dataset.New(dataset.StringKey("rock"))
	other["kind"] = "mineral"
	_, err := store.Set(ctx, "things", other)
	require.NoError(t, err)

	results, err := store.Query(ctx, "things", map[string]interface{}{"kind": "person"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestStoreDeleteReturnsPriorDataset(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ds := dataset.New(dataset.StringKey("alice"))
	ds["role"] = "student"
	_, err := store.Set(ctx, "users", ds)
	require.NoError(t, err)

	prior, err := store.Delete(ctx, "users", dataset.StringKey("alice"))
	require.NoError(t, err)
	assert.Equal(t, "student", prior.String("role"))

	_, err = store.Get(ctx, "users", dataset.StringKey("alice"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Delete(ctx, "users", dataset.StringKey("alice"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCreateIfAbsent(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ds := dataset.New(dataset.StringKey("alice"))
	created, err := store.CreateIfAbsent(ctx, "users", ds)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateIfAbsent(ctx, "users", ds)
	require.NoError(t, err)
	assert.False(t, created, "second insert under the same key must be rejected")

	n, err := store.Count(ctx, "users", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStoreListKeyRoundTrip(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ds := dataset.New(dataset.ListKey("course1", "week2"))
	ds["topic"] = "sorting"
	_, err := store.Set(ctx, "notes", ds)
	require.NoError(t, err)

	got, err := store.Get(ctx, "notes", dataset.ListKey("course1", "week2"))
	require.NoError(t, err)

	key, err := got.Key()
	require.NoError(t, err)
	assert.True(t, key.IsList())
	assert.Equal(t, []string{"course1", "week2"}, key.Tokens())
}
