package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Absent(t *testing.T) {
	s := openTestStore(t)

	_, found, err := s.Get(context.Background(), "tasks")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPut_IncrementsVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	v1, err := s.Put(ctx, "tasks", []byte(`[]`), "tab-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	v2, err := s.Put(ctx, "tasks", []byte(`[{"id":"a"}]`), "tab-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	e, found, err := s.Get(ctx, "tasks")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "tasks", e.Key)
	assert.JSONEq(t, `[{"id":"a"}]`, string(e.Value))
	assert.Equal(t, int64(2), e.Version)
	assert.Equal(t, "tab-2", e.Origin)
	assert.True(t, e.UpdatedAt.Equal(fixed))
}

func TestPut_RejectsInvalidJSON(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Put(context.Background(), "tasks", []byte(`{not json`), "tab-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestCompareAndPut(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Expected 0 means "must not exist".
	v, err := s.CompareAndPut(ctx, "users", []byte(`[]`), 0, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = s.CompareAndPut(ctx, "users", []byte(`[]`), 0, "tab-1")
	assert.ErrorIs(t, err, ErrVersionConflict)

	v, err = s.CompareAndPut(ctx, "users", []byte(`[1]`), 1, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// A stale writer loses.
	_, err = s.CompareAndPut(ctx, "users", []byte(`[2]`), 1, "tab-2")
	assert.ErrorIs(t, err, ErrVersionConflict)

	e, _, err := s.Get(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "[1]", string(e.Value))
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "user", []byte(`{"id":"u1"}`), "tab-1")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "user", "tab-1"))
	_, found, err := s.Get(ctx, "user")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting again is fine.
	assert.NoError(t, s.Delete(ctx, "user", "tab-1"))

	// Recreating starts from version 1.
	v, err := s.Put(ctx, "user", []byte(`{"id":"u2"}`), "tab-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestKeysAndDump(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)

	_, err = s.Put(ctx, "users", []byte(`[]`), "o")
	require.NoError(t, err)
	_, err = s.Put(ctx, "tasks", []byte(`[{"id":"t1"}]`), "o")
	require.NoError(t, err)

	// Bypass validation to simulate a hand-edited row.
	_, err = s.db.Exec(`INSERT INTO kv (key, value, version, origin, updated_at) VALUES ('junk', 'oops', 1, 'o', '2025-01-01T00:00:00Z')`)
	require.NoError(t, err)

	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"junk", "tasks", "users"}, keys)

	dump, err := s.Dump(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"t1"}]`, string(dump["tasks"]))
	assert.JSONEq(t, `[]`, string(dump["users"]))

	var junk string
	require.NoError(t, json.Unmarshal(dump["junk"], &junk))
	assert.Equal(t, "oops", junk)
}
