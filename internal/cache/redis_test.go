package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, DefaultRedisConfig())
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNewRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	store, err := NewRedisStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestNewRedisStore_ConnectionError(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "localhost:99999"

	_, err := NewRedisStore(context.Background(), cfg)
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, SchemaKey("orders"), []byte(`{"primaryKey":"orders_id"}`), 0))
	assert.True(t, mr.Exists("tabula:schema:orders"))

	got, err := store.Get(ctx, SchemaKey("orders"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"primaryKey":"orders_id"}`, string(got))

	require.NoError(t, store.Delete(ctx, SchemaKey("orders")))
	_, err = store.Get(ctx, SchemaKey("orders"))
	assert.True(t, errs.IsNotFound(err))
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "k")
	assert.True(t, errs.IsNotFound(err))
}

func TestRedisStore_ClearOnlyTouchesPrefix(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("other:key", "keep"))
	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists("tabula:a"))
	assert.False(t, mr.Exists("tabula:b"))
	assert.True(t, mr.Exists("other:key"))
}
