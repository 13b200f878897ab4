package tokencache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, BackendFile, filepath.Join(dir, "c.json"), "client", nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(ctx, "", filepath.Join(dir, "c.json"), "client", nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(ctx, BackendSQLite, filepath.Join(dir, "c.db"), "client", nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "redis", "x", "client", nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestCacheThroughStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "token_cache.json"))

	c := New()
	c.Store(testEntry())

	blob, gen, err := c.Snapshot()
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, blob))
	c.MarkSaved(gen)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)

	fresh := New()
	require.NoError(t, fresh.Unmarshal(loaded))
	assert.Len(t, fresh.Accounts("client-1", "tenant-1"), 1)
}
