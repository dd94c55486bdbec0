package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalStore(t *testing.T) {
	store, err := NewLocalStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NotNil(t, store.GetDB())

	stats, err := store.GetStats()
	require.NoError(t, err)
	for _, table := range []string{"kv", "assets"} {
		_, ok := stats[table]
		assert.True(t, ok, "stats missing table %s", table)
	}
	assert.Equal(t, CurrentSchemaVersion, GetSchemaVersion(store.GetDB()))
	assert.True(t, columnExists(store.GetDB(), "assets", "etag"))
}

func TestLocalStore_KV(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get(ctx, KeyTSVCache)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutMany(ctx, map[string]string{
		KeyTSVCache:   "_id\tNombre\npkm_1\tMew",
		KeyTSVCacheAt: "1700000000000",
	}))
	v, ok, err := store.Get(ctx, KeyTSVCache)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "_id\tNombre\npkm_1\tMew", v)

	require.NoError(t, store.Put(ctx, KeyTSVCacheAt, "1700000000001"))
	v, _, _ = store.Get(ctx, KeyTSVCacheAt)
	assert.Equal(t, "1700000000001", v)

	require.NoError(t, store.Put(ctx, "pkm_list_tipo_v1", `["Pokémon"]`))
	keys, err := store.Keys(ctx, "pkm_list_")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkm_list_tipo_v1"}, keys)

	require.NoError(t, store.Delete(ctx, "pkm_list_tipo_v1"))
	_, ok, _ = store.Get(ctx, "pkm_list_tipo_v1")
	assert.False(t, ok)
}

func TestLocalStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "cardcat.db")

	store, err := NewLocalStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "k", "v"))
	require.NoError(t, store.Close())

	store, err = NewLocalStore(path)
	require.NoError(t, err)
	defer store.Close()

	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, CurrentSchemaVersion, GetSchemaVersion(store.GetDB()))
}

func TestLocalStore_Assets(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	at := time.UnixMilli(1700000000000)
	require.NoError(t, store.PutAsset(ctx, Asset{
		URL: "http://app/index.html", Status: 200, ContentType: "text/html", Body: []byte("<html>"), StoredAt: at,
	}))

	a, ok, err := store.GetAsset(ctx, "http://app/index.html")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<html>", string(a.Body))
	assert.Equal(t, "text/html", a.ContentType)
	assert.True(t, a.StoredAt.Equal(at))

	_, ok, err = store.GetAsset(ctx, "http://app/missing.css")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStore_Closed(t *testing.T) {
	store, err := NewLocalStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, _, err = store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.Put(context.Background(), "k", "v"), ErrClosed)
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	require.NoError(t, m.Put(ctx, "a", "1"))
	v, ok, _ := m.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	body := []byte("x")
	require.NoError(t, m.PutAsset(ctx, Asset{URL: "u", Body: body}))
	body[0] = 'y'
	a, _, _ := m.GetAsset(ctx, "u")
	assert.Equal(t, "x", string(a.Body))

	var _ KV = m
	var _ AssetCache = m
	var _ KV = (*LocalStore)(nil)
	var _ AssetCache = (*LocalStore)(nil)
}
